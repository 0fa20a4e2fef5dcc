package gsnet

import (
	"context"
	"net"

	"github.com/embeddedgo/gsat"
)

// Listener is a TCP or UDP server running on the module.
type Listener struct {
	d    *gsat.Device
	slot int
	a    netAddr
}

// Listen starts a server on port. Network must be "tcp", "tcp4", "udp" or
// "udp4".
func Listen(ctx context.Context, d *gsat.Device, network string, port uint16) (*Listener, error) {
	var proto gsat.Protocol
	switch network {
	case "tcp", "tcp4":
		proto = gsat.TCP
	case "udp", "udp4":
		proto = gsat.UDP
	default:
		return nil, net.UnknownNetworkError(network)
	}
	if port == 0 {
		return nil, &net.AddrError{Err: "unknown port", Addr: "0"}
	}
	slot := d.FreeSlot()
	if slot < 0 {
		return nil, &gsat.Error{Dev: d.Name(), Cmd: "listen", Err: gsat.ErrNoSlot}
	}
	if err := d.Configure(slot, proto, port); err != nil {
		return nil, err
	}
	if err := d.ActivateListen(ctx, slot); err != nil {
		d.Release(slot)
		return nil, err
	}
	return &Listener{d, slot, netAddr{protoNet(proto), hostPort(localIP(d), port)}}, nil
}

// Accept works like the net.Listener Accept method but does not wait. It
// returns ErrNoConn if no connection is waiting.
func (ls *Listener) Accept() (net.Conn, error) {
	c, err := ls.AcceptConn()
	if err != nil {
		return nil, err
	}
	return c, nil
}

// AcceptConn works like Accept but returns *Conn.
func (ls *Listener) AcceptConn() (*Conn, error) {
	if err := ls.d.Poll(); err != nil {
		return nil, &net.OpError{Op: "accept", Net: ls.a.net, Addr: &ls.a, Err: err}
	}
	i := ls.d.Accept(ls.slot)
	if i < 0 {
		return nil, ErrNoConn
	}
	return newConn(ls.d, i), nil
}

// Close stops the server and frees its slot. A connection carried by the
// server slot itself is closed first.
func (ls *Listener) Close() error {
	for {
		s, _ := ls.d.Socket(ls.slot)
		if s.Status == gsat.Closed || s.Status == gsat.Invalid {
			break
		}
		if err := ls.d.Close(context.Background(), ls.slot); err != nil {
			return &net.OpError{Op: "close", Net: ls.a.net, Addr: &ls.a, Err: err}
		}
	}
	return ls.d.Release(ls.slot)
}

// Addr works like the net.Listener Addr method.
func (ls *Listener) Addr() net.Addr {
	return &ls.a
}

// Slot returns the socket table slot of the server.
func (ls *Listener) Slot() int { return ls.slot }
