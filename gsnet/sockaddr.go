package gsnet

import (
	"net"
	"strconv"

	"github.com/embeddedgo/gsat"
)

type netAddr struct {
	net, str string
}

func (a *netAddr) Network() string { return a.net }
func (a *netAddr) String() string  { return a.str }

func protoNet(p gsat.Protocol) string {
	if p == gsat.TCP {
		return "tcp"
	}
	return "udp"
}

func hostPort(host string, port uint16) string {
	return net.JoinHostPort(host, strconv.Itoa(int(port)))
}

// localIP returns the static address of the module or an empty string if it
// is obtained using DHCP.
func localIP(d *gsat.Device) string {
	if n := d.Network(); n != nil {
		return n.IP
	}
	return ""
}

// parseAddress splits address into host and port. The host is resolved by
// the module if it is not an IPv4 address.
func parseAddress(address string) (host string, port uint16, err error) {
	if address == "" {
		return "", 0, &net.AddrError{Err: "empty address"}
	}
	host, p, err := net.SplitHostPort(address)
	if err != nil {
		return "", 0, err
	}
	pn, err := strconv.ParseUint(p, 10, 16)
	if err != nil || pn == 0 {
		return "", 0, &net.AddrError{Err: "unknown port", Addr: p}
	}
	return host, uint16(pn), nil
}
