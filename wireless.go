package gsat

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// Activation is the result of Associate.
type Activation uint8

const (
	ActivationFalse          Activation = iota // association failed
	ActivationTrue                             // all commands succeeded
	ActivationTrueWithErrors                   // associated but some setup commands failed
)

func (a Activation) String() string {
	switch a {
	case ActivationFalse:
		return "false"
	case ActivationTrue:
		return "true"
	case ActivationTrueWithErrors:
		return "true with errors"
	}
	return "unknown"
}

// Poll budgets of the slow commands (in polling intervals).
const (
	AssociatePolls = 300  // AT+WA
	PSKPolls       = 3000 // AT+WPAPSK computes the PSK
	LookupPolls    = 600  // AT+DNSLOOKUP
)

type step struct {
	name  string
	args  []any
	polls int
	must  bool // failure aborts the sequence
}

func (d *Device) run(ctx context.Context, steps []step) (failed int, err error) {
	for _, s := range steps {
		polls := s.polls
		if polls == 0 {
			polls = d.cfg.MaxPolls
		}
		if _, e := d.exec(ctx, polls, s.name, s.args); e != nil {
			if s.must || ctx.Err() != nil {
				return failed, e
			}
			d.log.Warn("setup command failed", zap.String("cmd", s.name), zap.Error(e))
			failed++
		}
	}
	return failed, nil
}

func securitySteps(p *WirelessProfile) []step {
	steps := []step{
		{name: "+WAUTH=", args: []any{int(p.Auth)}},
		{name: "+WSEC=", args: []any{int(p.Security)}},
	}
	switch {
	case p.Security.psk():
		steps = append(steps, step{name: "+WPAPSK=", args: []any{p.SSID, p.Key}, polls: PSKPolls})
	case p.Key != "" && (p.Security == SecWEP || p.Auth != AuthNone):
		steps = append(steps, step{name: "+WWEP1=", args: []any{p.Key}})
	}
	return steps
}

// Associate brings the module to a known state and associates it using the
// wireless and network profiles:
//
//	AT (twice, the first response is ignored)
//	ATE0
//	AT+DHCPSRVR=0
//	AT+WD
//	AT+NDHCP=0
//
// followed by the mode specific configuration and AT+WA. In the limited AP
// mode the module DHCP server is started at the end. Failures of the
// configuration commands are tolerated and reported as
// ActivationTrueWithErrors.
func (d *Device) Associate(ctx context.Context) (Activation, error) {
	p := d.wireless
	if err := p.Validate(); err != nil {
		return ActivationFalse, &Error{d.name, "associate", err}
	}
	d.Cmd(ctx, "") // wakes up the module UART, the response does not matter
	if _, err := d.Cmd(ctx, ""); err != nil {
		d.conn = Disconnected
		return ActivationFalse, err
	}
	steps := []step{
		{name: "E0"},
		{name: "+DHCPSRVR=", args: []any{0}},
		{name: "+WD"},
		{name: "+NDHCP=", args: []any{0}},
	}
	wa := step{name: "+WA=", args: []any{p.SSID, nil, int(p.Channel)}, polls: AssociatePolls, must: true}
	n := d.network
	switch p.Mode {
	case LimitedAP:
		if n == nil {
			return ActivationFalse, &Error{d.name, "associate", invalid("limited AP mode requires a static network profile")}
		}
		steps = append(steps,
			step{name: "+NSET=", args: []any{n.IP, n.Subnet, n.Gateway}},
			step{name: "+WM=", args: []any{int(LimitedAP)}},
			wa,
			step{name: "+DHCPSRVR=", args: []any{1}},
		)
	default:
		steps = append(steps, step{name: "+WM=", args: []any{int(p.Mode)}})
		steps = append(steps, securitySteps(&p)...)
		if p.Rate != RateAuto {
			steps = append(steps, step{name: "+WRATE=", args: []any{int(p.Rate)}})
		}
		if n != nil {
			steps = append(steps, step{name: "+NSET=", args: []any{n.IP, n.Subnet, n.Gateway}})
		} else {
			steps = append(steps, step{name: "+NDHCP=", args: []any{1}})
		}
		steps = append(steps, wa)
	}
	failed, err := d.run(ctx, steps)
	if err != nil {
		d.conn = Disconnected
		return ActivationFalse, err
	}
	if failed != 0 {
		d.conn = ConnectedWithErrors
		return ActivationTrueWithErrors, nil
	}
	d.conn = Connected
	return ActivationTrue, nil
}

// Reconfigure disassociates the module and associates it again using p. The
// device profile is replaced only if all commands succeed. An invalid profile
// is rejected before anything is sent to the module.
func (d *Device) Reconfigure(ctx context.Context, p WirelessProfile) error {
	if err := p.Validate(); err != nil {
		return &Error{d.name, "reconfigure", err}
	}
	steps := []step{
		{name: "+WD", must: true},
		{name: "+WM=", args: []any{int(p.Mode)}, must: true},
	}
	for _, s := range securitySteps(&p) {
		s.must = true
		steps = append(steps, s)
	}
	steps = append(steps,
		step{name: "+WRATE=", args: []any{int(p.Rate)}, must: true},
		step{name: "+WA=", args: []any{p.SSID, nil, int(p.Channel)}, polls: AssociatePolls, must: true},
	)
	if _, err := d.run(ctx, steps); err != nil {
		d.conn = Disconnected
		return err
	}
	d.wireless = p
	d.conn = Connected
	d.log.Info("wireless reconfigured", zap.String("ssid", p.SSID),
		zap.Stringer("mode", p.Mode), zap.Uint8("channel", uint8(p.Channel)))
	return nil
}

// SetNetwork applies a static network configuration or enables the DHCP
// client if n is nil.
func (d *Device) SetNetwork(ctx context.Context, n *NetworkProfile) error {
	if n == nil {
		if _, err := d.Cmd(ctx, "+NDHCP=", 1); err != nil {
			return err
		}
		d.network = nil
		return nil
	}
	if err := n.Validate(); err != nil {
		return &Error{d.name, "network", err}
	}
	if _, err := d.Cmd(ctx, "+NDHCP=", 0); err != nil {
		return err
	}
	if _, err := d.Cmd(ctx, "+NSET=", n.IP, n.Subnet, n.Gateway); err != nil {
		return err
	}
	c := *n
	d.network = &c
	return nil
}

// LookupHost resolves name using the module DNS client.
func (d *Device) LookupHost(ctx context.Context, name string) (string, error) {
	resp, err := d.CmdPolls(ctx, LookupPolls, "+DNSLOOKUP=", name)
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(resp, "\n") {
		if ip, ok := strings.CutPrefix(strings.TrimSpace(line), "IP:"); ok {
			return ip, nil
		}
	}
	return "", &Error{d.name, "+DNSLOOKUP=", ErrMalformedResponse}
}

// EnableModuleWebServer starts or stops the web server built into the module
// firmware using the WebAuth credentials.
func (d *Device) EnableModuleWebServer(ctx context.Context, on bool) error {
	a := d.webAuth
	if !on {
		_, err := d.Cmd(ctx, "+WEBSERVER=", 0, a.Username, a.Password)
		return err
	}
	if a.Username == "" {
		return &Error{d.name, "+WEBSERVER=", errors.New("no credentials")}
	}
	_, err := d.Cmd(ctx, "+WEBSERVER=", 1, a.Username, a.Password)
	return err
}

// SetBaud changes the module UART speed (8N1). The host UART must be
// reconfigured by the caller after the command succeeds.
func (d *Device) SetBaud(ctx context.Context, baud int) error {
	switch baud {
	case 9600, 19200, 38400, 57600, 115200, 230400, 460800, 921600:
	default:
		return &Error{d.name, "B=", ErrArg}
	}
	if _, err := d.Cmd(ctx, "B=", baud, 8, "n", 1); err != nil {
		return err
	}
	d.cfg.Baud = baud
	return nil
}
