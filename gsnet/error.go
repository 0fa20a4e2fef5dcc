package gsnet

import (
	"io"
	"net"
)

// ErrNoConn is returned by Listener.Accept if there is no incoming
// connection waiting. It is a temporary net.Error so the standard accept
// loops retry.
var ErrNoConn net.Error = noConnError{}

type noConnError struct{}

func (noConnError) Error() string   { return "no incoming connection" }
func (noConnError) Timeout() bool   { return true }
func (noConnError) Temporary() bool { return true }

func netOpError(c *Conn, op string, err error) error {
	if err != nil && err != io.EOF {
		local := c.LocalAddr()
		remote := c.RemoteAddr()
		err = &net.OpError{
			Op:     op,
			Net:    local.Network(),
			Source: local,
			Addr:   remote,
			Err:    err,
		}
	}
	return err
}
