// Package gsnet provides net.Conn and net.Listener implementations on top of
// the gsat socket table.
package gsnet

import (
	"context"
	"io"
	"net"
	"os"
	"time"

	"github.com/embeddedgo/gsat"
)

// Conn is an implementation of the net.Conn interface for TCP and UDP network
// connections. Like the gsat.Device it must be used from one goroutine.
type Conn struct {
	d       *gsat.Device
	slot    int
	gen     uint32
	release bool // the slot was allocated by Dial
	closed  bool
	laddr   netAddr
	raddr   netAddr
	rdl     time.Time
}

// Dial works like net.Dial. Supported networks are "tcp", "tcp4", "udp" and
// "udp4". Host names are resolved by the module.
func Dial(ctx context.Context, d *gsat.Device, network, address string) (*Conn, error) {
	var proto gsat.Protocol
	switch network {
	case "tcp", "tcp4":
		proto = gsat.TCP
	case "udp", "udp4":
		proto = gsat.UDP
	default:
		return nil, net.UnknownNetworkError(network)
	}
	host, port, err := parseAddress(address)
	if err != nil {
		return nil, err
	}
	if ip := net.ParseIP(host); ip == nil || ip.To4() == nil {
		if host, err = d.LookupHost(ctx, host); err != nil {
			return nil, err
		}
	}
	slot := d.FreeSlot()
	if slot < 0 {
		return nil, &gsat.Error{Dev: d.Name(), Cmd: "dial", Err: gsat.ErrNoSlot}
	}
	if err := d.Configure(slot, proto, port); err != nil {
		return nil, err
	}
	if err := d.Connect(ctx, slot, host); err != nil {
		d.Release(slot)
		return nil, err
	}
	c := newConn(d, slot)
	c.release = true
	return c, nil
}

func newConn(d *gsat.Device, slot int) *Conn {
	s, _ := d.Socket(slot)
	c := &Conn{d: d, slot: slot, gen: s.Gen}
	c.laddr.net = protoNet(s.Protocol)
	c.raddr.net = c.laddr.net
	if s.RemotePort != 0 {
		// accepted connection
		c.laddr.str = hostPort(localIP(d), s.Port)
		c.raddr.str = hostPort(s.IP, s.RemotePort)
	} else {
		c.laddr.str = hostPort(localIP(d), 0)
		c.raddr.str = hostPort(s.IP, s.Port)
	}
	return c
}

// Slot returns the socket table slot of the connection.
func (c *Conn) Slot() int { return c.slot }

// alive reports whether the slot still carries this connection.
func (c *Conn) alive() (gsat.Socket, bool) {
	s, _ := c.d.Socket(c.slot)
	return s, !c.closed && s.Gen == c.gen && s.Status != gsat.Invalid
}

// ReadAvailable works like Read but never waits. It returns 0, nil if no data
// has been received yet.
func (c *Conn) ReadAvailable(p []byte) (int, error) {
	if c.closed {
		return 0, netOpError(c, "read", net.ErrClosed)
	}
	if err := c.d.Poll(); err != nil {
		return 0, netOpError(c, "read", err)
	}
	s, ok := c.alive()
	if !ok {
		return 0, io.EOF
	}
	if c.d.SocketWithData() == c.slot {
		n, err := c.d.ReadDataFromSocket(c.slot, p)
		if err != nil {
			err = netOpError(c, "read", err)
		}
		return n, err
	}
	if s.Status != gsat.Established {
		return 0, io.EOF
	}
	return 0, nil
}

// Read implements the net.Conn Read method. It polls the device until some
// data arrive, the peer closes the connection or the read deadline expires.
func (c *Conn) Read(p []byte) (n int, err error) {
	if len(p) == 0 {
		return
	}
	clk := c.d.Clock()
	interval := uint32(c.d.PollInterval() / time.Millisecond)
	for {
		if n, err = c.ReadAvailable(p); n != 0 || err != nil {
			return
		}
		if !c.rdl.IsZero() && !time.Now().Before(c.rdl) {
			return 0, netOpError(c, "read", os.ErrDeadlineExceeded)
		}
		clk.Delay(interval)
	}
}

// Write implements the net.Conn Write method.
func (c *Conn) Write(p []byte) (n int, err error) {
	if _, ok := c.alive(); !ok {
		return 0, netOpError(c, "write", net.ErrClosed)
	}
	n, err = c.d.WriteDataToSocket(c.slot, p)
	if err != nil {
		err = netOpError(c, "write", err)
	}
	return
}

// WriteString implements io.StringWriter interface.
func (c *Conn) WriteString(s string) (int, error) {
	return c.Write([]byte(s))
}

// Close implements the net.Conn Close method.
func (c *Conn) Close() error {
	if _, ok := c.alive(); !ok {
		if c.closed {
			return netOpError(c, "close", net.ErrClosed)
		}
		c.closed = true
		return nil // already closed by the peer and reclaimed
	}
	c.closed = true
	err := c.d.Close(context.Background(), c.slot)
	if err == nil && c.release {
		err = c.d.Release(c.slot)
	}
	if err != nil {
		err = netOpError(c, "close", err)
	}
	return err
}

// SetReadDeadline implements the net.Conn SetReadDeadline method.
func (c *Conn) SetReadDeadline(t time.Time) error {
	c.rdl = t
	return nil
}

// SetWriteDeadline implements the net.Conn SetWriteDeadline method. Writes
// to the module UART are synchronous so the deadline is ignored.
func (c *Conn) SetWriteDeadline(t time.Time) error {
	return nil
}

// SetDeadline implements the net.Conn SetDeadline method.
func (c *Conn) SetDeadline(t time.Time) error {
	c.SetReadDeadline(t)
	c.SetWriteDeadline(t)
	return nil
}

// LocalAddr implements the net.Conn LocalAddr method.
func (c *Conn) LocalAddr() net.Addr {
	return &c.laddr
}

// RemoteAddr implements the net.Conn RemoteAddr method.
func (c *Conn) RemoteAddr() net.Addr {
	return &c.raddr
}
