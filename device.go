package gsat

import (
	"io"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

//go:generate go tool mockgen -destination=mock_writer_test.go -package=gsat io Writer

const (
	// MaxSockets is the number of socket table slots.
	MaxSockets = 4

	NoActiveSocket   = -1
	NoSocketWithData = -1

	// MaxTxBuffer is the size of the command buffer and the maximum size of a
	// single data write to the module UART.
	MaxTxBuffer = 128

	DefaultRingSize     = 256
	DefaultPollInterval = 5 * time.Millisecond
	DefaultMaxPolls     = 60
	DefaultCloseWait    = time.Second

	maxLine = 128
)

// Mode is the operation mode of the module UART.
type Mode uint8

const (
	CommandMode Mode = iota // the module interprets AT commands
	DataMode                // the host streams payload to the active socket
	DataRxMode              // the module pushed a data block that was not read yet
)

func (m Mode) String() string {
	switch m {
	case CommandMode:
		return "command"
	case DataMode:
		return "data"
	case DataRxMode:
		return "data-rx"
	}
	return "unknown"
}

// ConnStatus describes the wireless association.
type ConnStatus uint8

const (
	Disconnected ConnStatus = iota
	Connected
	ConnectedWithErrors
)

func (s ConnStatus) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case ConnectedWithErrors:
		return "connected with errors"
	}
	return "unknown"
}

// Config contains the Device parameters. The zero value of any field selects
// its default.
type Config struct {
	Baud         int           // UART speed, informational
	RingSize     int           // receive buffer size
	PollInterval time.Duration // command response polling interval
	MaxPolls     int           // default poll budget of a command
	CloseWait    time.Duration // how long a peer closed socket stays in CLOSE_WAIT
	Clock        Clock
	Logger       *zap.Logger

	Wireless WirelessProfile
	Network  *NetworkProfile // nil means DHCP
	WebAuth  WebAuthProfile
}

// Stats contains the receive path counters.
type Stats struct {
	Dropped   uint64 // bytes dropped because the receive buffer was full
	Malformed uint64 // discarded unparsable tokens
}

// Device is a driver for a GainSpan S2W module connected over UART. All
// methods except Feed must be called from one goroutine.
type Device struct {
	name  string
	w     io.Writer
	cfg   Config
	clock Clock
	log   *zap.Logger
	rx    *Ring
	rerr  atomic.Error

	mode     Mode
	active   int
	withData int
	rxLeft   int // bytes left in the pending bulk block, -1 for a stream block
	conn     ConnStatus
	pending  int  // slot waiting for the CONNECT reply of its command
	stale    bool // an abandoned exchange may have left its response behind

	pendingOpen bool

	wireless WirelessProfile
	network  *NetworkProfile
	webAuth  WebAuthProfile

	sockets   [MaxSockets]socket
	malformed uint64

	txbuf [MaxTxBuffer]byte
	line  [maxLine]byte
}

// NewDevice returns a driver for the module available via r and w. If r is
// not nil a background goroutine copies the received bytes into the receive
// buffer. Otherwise the caller is responsible for calling Feed. Cfg may be
// nil.
func NewDevice(name string, r io.Reader, w io.Writer, cfg *Config) *Device {
	d := &Device{name: name, w: w}
	if cfg != nil {
		d.cfg = *cfg
	}
	if d.cfg.RingSize <= 0 {
		d.cfg.RingSize = DefaultRingSize
	}
	switch {
	case d.cfg.PollInterval <= 0:
		d.cfg.PollInterval = DefaultPollInterval
	case d.cfg.PollInterval < time.Millisecond:
		d.cfg.PollInterval = time.Millisecond // Clock resolution
	}
	if d.cfg.MaxPolls <= 0 {
		d.cfg.MaxPolls = DefaultMaxPolls
	}
	if d.cfg.CloseWait <= 0 {
		d.cfg.CloseWait = DefaultCloseWait
	}
	d.clock = d.cfg.Clock
	if d.clock == nil {
		d.clock = SystemClock()
	}
	d.log = d.cfg.Logger
	if d.log == nil {
		d.log = zap.NewNop()
	}
	d.log = d.log.With(zap.String("dev", name))
	d.wireless = d.cfg.Wireless
	if d.cfg.Network != nil {
		n := *d.cfg.Network
		d.network = &n
	}
	d.webAuth = d.cfg.WebAuth
	d.rx = NewRing(d.cfg.RingSize)
	for i := range d.sockets {
		d.sockets[i].init(d, i)
	}
	d.Reset()
	if r != nil {
		go receiverLoop(d, r)
	}
	return d
}

// Reset forcibly reinitializes the receive buffer, the socket table and the
// device mode. It does not send anything to the module.
func (d *Device) Reset() {
	d.rx.Reset()
	d.malformed = 0
	for i := range d.sockets {
		d.sockets[i].reset()
	}
	d.mode = CommandMode
	d.active = NoActiveSocket
	d.withData = NoSocketWithData
	d.rxLeft = 0
	d.pending = -1
	d.stale = false
	d.conn = Disconnected
}

// Feed pushes bytes received from the module into the receive buffer. It may
// be called concurrently with other methods (for example from a UART
// interrupt handler) but not concurrently with itself. Bytes that do not fit
// are dropped and counted.
func (d *Device) Feed(p []byte) (int, error) {
	return d.rx.Write(p)
}

// Name returns the device name.
func (d *Device) Name() string { return d.name }

// Baud returns the configured UART speed.
func (d *Device) Baud() int { return d.cfg.Baud }

// Mode returns the current UART operation mode.
func (d *Device) Mode() Mode { return d.mode }

// ConnStatus returns the wireless connection status.
func (d *Device) ConnStatus() ConnStatus { return d.conn }

// Wireless returns the current wireless profile.
func (d *Device) Wireless() WirelessProfile { return d.wireless }

// Network returns a copy of the static network profile or nil if DHCP is
// used.
func (d *Device) Network() *NetworkProfile {
	if d.network == nil {
		return nil
	}
	n := *d.network
	return &n
}

// WebAuth returns the web server credentials.
func (d *Device) WebAuth() WebAuthProfile { return d.webAuth }

// Stats returns the receive path counters.
func (d *Device) Stats() Stats {
	return Stats{Dropped: d.rx.Dropped(), Malformed: d.malformed}
}

// Logger returns the device logger.
func (d *Device) Logger() *zap.Logger { return d.log }

// Clock returns the clock used to measure command timeouts.
func (d *Device) Clock() Clock { return d.clock }

// PollInterval returns the receive buffer polling interval.
func (d *Device) PollInterval() time.Duration { return d.cfg.PollInterval }

func millis(t time.Duration) uint32 {
	return uint32(t / time.Millisecond)
}
