package gsat

import (
	"context"
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"
)

func writeCmd(w io.Writer, buf *[MaxTxBuffer]byte, name string, args []any) error {
	buf[0] = 'A'
	buf[1] = 'T'
	n := 2
	n += copy(buf[n:], name)
	insert := func(c byte) {
		if n < len(buf) {
			buf[n] = c
			n++
		}
	}
	comma := false
	for _, arg := range args {
		if comma {
			insert(',')
		} else {
			comma = true
		}
		switch a := arg.(type) {
		case string:
			for k := 0; k < len(a); k++ {
				c := a[k]
				if c < ' ' || c == 0x7f {
					return ErrArg // the module has no escaping rules
				}
				insert(c)
			}
		case int:
			if a < 0 {
				insert('-')
				a = -a
			}
			switch {
			case a < 10:
				insert(byte(a + '0')) // fast path
			default:
				f := n
				for a != 0 {
					r := a % 10
					a /= 10
					insert(byte(r + '0'))
				}
				l := n - 1
				for f < l {
					buf[f], buf[l] = buf[l], buf[f]
					f++
					l--
				}
			}
		case CID:
			if a == InvalidCID {
				return ErrArg
			}
			n = len(AppendHex(buf[:n], uint32(a), 1))
		default:
			if arg != nil {
				return ErrArgType
			}
		}
	}
	if n > len(buf)-2 {
		return errors.New("Tx buffer overflow")
	}
	buf[n] = '\r'
	buf[n+1] = '\n'
	n += 2
	_, err := w.Write(buf[:n])
	return err
}

// Cmd executes an AT command using the default poll budget. Name should be a
// command name without the AT prefix (e.g. "+WD" instead of "AT+WD"). Args
// may be of type nil, string, int or CID. Strings are sent verbatim, CIDs as
// hexadecimal numbers. The returned response contains the intermediate lines
// received before OK, separated by '\n'.
func (d *Device) Cmd(ctx context.Context, name string, args ...any) (string, error) {
	return d.exec(ctx, d.cfg.MaxPolls, name, args)
}

// CmdPolls works like Cmd but waits for the final response at most polls
// polling intervals.
func (d *Device) CmdPolls(ctx context.Context, polls int, name string, args ...any) (string, error) {
	return d.exec(ctx, polls, name, args)
}

// SendCommand sends a complete command line (e.g. "AT+WD") and classifies the
// result.
func (d *Device) SendCommand(ctx context.Context, text string) Outcome {
	_, err := d.exec(ctx, d.cfg.MaxPolls, strings.TrimPrefix(text, "AT"), nil)
	if err != nil {
		d.log.Debug("command failed", zap.String("cmd", text), zap.Error(err))
	}
	return OutcomeOf(err)
}

func (d *Device) checkCmdMode(op string) error {
	switch d.mode {
	case DataMode:
		return &Error{d.name, op, ErrInvalidState}
	case DataRxMode:
		return &Error{d.name, op, ErrDataPending}
	}
	return nil
}

func (d *Device) exec(ctx context.Context, polls int, name string, args []any) (string, error) {
	if err := d.checkCmdMode(name); err != nil {
		return "", err
	}
	if d.stale {
		d.drain()
		if err := d.checkCmdMode(name); err != nil {
			return "", err
		}
	}
	if err := writeCmd(d.w, &d.txbuf, name, args); err != nil {
		return "", &Error{d.name, name, err}
	}
	var (
		sb       strings.Builder
		interval = millis(d.cfg.PollInterval)
		budget   = uint32(polls) * interval
		start    = d.clock.Millis()
	)
	for i := 0; ; i++ {
		for {
			tok, ok, err := d.next()
			if err != nil {
				d.log.Warn("discarding response token", zap.String("cmd", name), zap.Error(err))
				continue
			}
			if !ok {
				break
			}
			switch tok.kind {
			case tokOK:
				return sb.String(), nil
			case tokError:
				return "", &Error{d.name, name, &ProtocolError{tok.text}}
			case tokInfo:
				if sb.Len() != 0 {
					sb.WriteByte('\n')
				}
				sb.WriteString(tok.text)
			default:
				d.dispatch(tok)
				if d.mode == DataRxMode && d.withData != NoSocketWithData {
					d.stale = true
					return "", &Error{d.name, name, ErrDataPending}
				}
			}
		}
		if err := ctx.Err(); err != nil {
			d.stale = true
			return "", &Error{d.name, name, err}
		}
		if i >= polls || d.clock.Millis()-start >= budget {
			break
		}
		d.clock.Delay(interval)
	}
	d.stale = true
	return "", &Error{d.name, name, ErrTimeout}
}

// drain processes all complete tokens in the receive buffer. Notifications are
// dispatched, final responses of abandoned commands are discarded.
func (d *Device) drain() {
	for {
		tok, ok, err := d.next()
		if err != nil {
			d.log.Warn("discarding token", zap.Error(err))
			continue
		}
		if !ok {
			break
		}
		switch tok.kind {
		case tokOK, tokError, tokInfo:
			d.log.Debug("discarding late response", zap.String("token", tok.String()))
		default:
			d.dispatch(tok)
		}
	}
	d.stale = false
}

// Poll processes all complete notifications waiting in the receive buffer and
// confirms the closing of sockets that stayed in CLOSE_WAIT longer than
// Config.CloseWait. It never blocks. The returned error is the error that
// stopped the receiver goroutine, if any.
func (d *Device) Poll() error {
	if d.mode == CommandMode || d.mode == DataRxMode {
		d.drain()
	}
	d.expireCloseWait()
	if err := d.rerr.Load(); err != nil {
		return &Error{d.name, "receive", err}
	}
	return nil
}
