package gsat

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/embeddedgo/gsat/internal/logging"
)

// receiverLoop copies bytes received from the module into the receive buffer.
// It does not parse anything. Read errors stop the loop and are reported by
// Poll.
func receiverLoop(d *Device, r io.Reader) {
	var buf [64]byte
	for {
		n, err := r.Read(buf[:])
		if n > 0 {
			if ce := d.log.Check(zapcore.DebugLevel, "rx"); ce != nil {
				ce.Write(logging.Bytes("data", buf[:n]))
			}
			if _, e := d.rx.Write(buf[:n]); e != nil {
				d.log.Warn("receive buffer overrun", zap.Uint64("dropped", d.rx.Dropped()))
			}
		}
		if err != nil {
			d.log.Error("receiver stopped", zap.Error(err))
			d.rerr.Store(err)
			return
		}
	}
}
