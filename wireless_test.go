package gsat

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestAssociateLimitedAP(t *testing.T) {
	d, m, _ := newTestDevice()
	m.def = "OK\r\n"
	a, err := d.Associate(context.Background())
	if err != nil || a != ActivationTrue {
		t.Fatalf("Associate = %v, %v", a, err)
	}
	want := []string{
		"AT",
		"AT",
		"ATE0",
		"AT+DHCPSRVR=0",
		"AT+WD",
		"AT+NDHCP=0",
		"AT+NSET=192.168.3.1,255.255.255.0,192.168.3.1",
		"AT+WM=2",
		"AT+WA=GAINSPAN,,11",
		"AT+DHCPSRVR=1",
	}
	if got := m.commands(); !reflect.DeepEqual(got, want) {
		t.Errorf("commands:\n%q\nwant:\n%q", got, want)
	}
	if d.ConnStatus() != Connected {
		t.Errorf("ConnStatus() = %v", d.ConnStatus())
	}
}

func TestAssociateInfrastructure(t *testing.T) {
	d, m, _ := newTestDevice()
	m.def = "OK\r\n"
	d.wireless = WirelessProfile{
		SSID:     "home",
		Security: SecWPA2PSK,
		Key:      "secret123",
		Channel:  6,
		Rate:     Rate11M,
		Mode:     Infrastructure,
	}
	d.network = nil
	if a, err := d.Associate(context.Background()); err != nil || a != ActivationTrue {
		t.Fatalf("Associate = %v, %v", a, err)
	}
	want := []string{
		"AT",
		"AT",
		"ATE0",
		"AT+DHCPSRVR=0",
		"AT+WD",
		"AT+NDHCP=0",
		"AT+WM=0",
		"AT+WAUTH=0",
		"AT+WSEC=8",
		"AT+WPAPSK=home,secret123",
		"AT+WRATE=22",
		"AT+NDHCP=1",
		"AT+WA=home,,6",
	}
	if got := m.commands(); !reflect.DeepEqual(got, want) {
		t.Errorf("commands:\n%q\nwant:\n%q", got, want)
	}
}

func TestAssociateOutcomes(t *testing.T) {
	for _, test := range []struct {
		name    string
		replies map[string]string
		def     string
		out     Activation
		conn    ConnStatus
		err     error
	}{
		{"all ok", nil, "OK\r\n", ActivationTrue, Connected, nil},
		{
			"setup error",
			map[string]string{"AT+WD": "ERROR\r\n"},
			"OK\r\n", ActivationTrueWithErrors, ConnectedWithErrors, nil,
		},
		{
			"association error",
			map[string]string{"AT+WA=GAINSPAN,,11": "ERROR: INVALID INPUT\r\n"},
			"OK\r\n", ActivationFalse, Disconnected, ErrProtocol,
		},
		{"no module", nil, "", ActivationFalse, Disconnected, ErrTimeout},
	} {
		d, m, _ := newTestDevice()
		m.def = test.def
		for k, v := range test.replies {
			m.replies[k] = v
		}
		a, err := d.Associate(context.Background())
		if a != test.out || !errors.Is(err, test.err) {
			t.Errorf("%s: Associate = %v, %v; want %v, %v", test.name, a, err, test.out, test.err)
		}
		if d.ConnStatus() != test.conn {
			t.Errorf("%s: ConnStatus() = %v", test.name, d.ConnStatus())
		}
	}
}

func TestAssociateLimitedAPNeedsNetwork(t *testing.T) {
	d, m, _ := newTestDevice()
	m.def = "OK\r\n"
	d.network = nil
	if _, err := d.Associate(context.Background()); !errors.Is(err, ErrInvalidProfile) {
		t.Errorf("err = %v", err)
	}
}

func TestReconfigure(t *testing.T) {
	d, m, _ := newTestDevice()
	m.def = "OK\r\n"
	p := d.Wireless()
	p.SSID = "NEWNET"
	p.Channel = 6
	if err := d.Reconfigure(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"AT+WD",
		"AT+WM=2",
		"AT+WAUTH=0",
		"AT+WSEC=0",
		"AT+WRATE=0",
		"AT+WA=NEWNET,,6",
	}
	if got := m.commands(); !reflect.DeepEqual(got, want) {
		t.Errorf("commands:\n%q\nwant:\n%q", got, want)
	}
	if d.Wireless() != p {
		t.Errorf("profile not stored: %+v", d.Wireless())
	}
}

// An invalid profile never reaches the module.
func TestReconfigureInvalid(t *testing.T) {
	d, m, _ := newTestDevice()
	m.def = "OK\r\n"
	old := d.Wireless()
	for _, mod := range []func(*WirelessProfile){
		func(p *WirelessProfile) { p.Channel = 12 },
		func(p *WirelessProfile) { p.SSID = "" },
		func(p *WirelessProfile) { p.Mode = 7 },
		func(p *WirelessProfile) { p.Security = SecWPAPSK; p.Key = "short" },
	} {
		p := old
		mod(&p)
		if err := d.Reconfigure(context.Background(), p); !errors.Is(err, ErrInvalidProfile) {
			t.Errorf("%+v: err = %v", p, err)
		}
	}
	if len(m.writes) != 0 {
		t.Errorf("writes %q", m.writes)
	}
	if d.Wireless() != old {
		t.Errorf("profile changed: %+v", d.Wireless())
	}
}

func TestReconfigureFailure(t *testing.T) {
	d, m, _ := newTestDevice()
	m.def = "OK\r\n"
	m.replies["AT+WA=NEWNET,,11"] = "ERROR\r\n"
	old := d.Wireless()
	p := old
	p.SSID = "NEWNET"
	if err := d.Reconfigure(context.Background(), p); !errors.Is(err, ErrProtocol) {
		t.Fatalf("err = %v", err)
	}
	if d.Wireless() != old {
		t.Errorf("profile changed: %+v", d.Wireless())
	}
	if d.ConnStatus() != Disconnected {
		t.Errorf("ConnStatus() = %v", d.ConnStatus())
	}
}

func TestLookupHost(t *testing.T) {
	d, m, _ := newTestDevice()
	m.replies["AT+DNSLOOKUP=example.com"] = "\r\nIP:93.184.216.34\r\n\r\nOK\r\n"
	m.replies["AT+DNSLOOKUP=nothing"] = "\r\nOK\r\n"
	ip, err := d.LookupHost(context.Background(), "example.com")
	if err != nil || ip != "93.184.216.34" {
		t.Errorf("LookupHost = %q, %v", ip, err)
	}
	if _, err := d.LookupHost(context.Background(), "nothing"); !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("err = %v", err)
	}
}

func TestModuleSettings(t *testing.T) {
	d, m, _ := newTestDevice()
	m.def = "OK\r\n"
	ctx := context.Background()
	if err := d.SetBaud(ctx, 12345); !errors.Is(err, ErrArg) {
		t.Errorf("SetBaud(12345): %v", err)
	}
	if err := d.SetBaud(ctx, 9600); err != nil || d.Baud() != 9600 {
		t.Errorf("SetBaud(9600): %v, baud %d", err, d.Baud())
	}
	if err := d.EnableModuleWebServer(ctx, true); err != nil {
		t.Error(err)
	}
	if err := d.SetNetwork(ctx, nil); err != nil || d.Network() != nil {
		t.Errorf("SetNetwork(nil): %v, %+v", err, d.Network())
	}
	if err := d.SetNetwork(ctx, &NetworkProfile{"10.0.0.300", "255.0.0.0", "10.0.0.1"}); !errors.Is(err, ErrInvalidProfile) {
		t.Errorf("SetNetwork(bad): %v", err)
	}
	want := []string{
		"ATB=9600,8,n,1",
		"AT+WEBSERVER=1,admin,nimda",
		"AT+NDHCP=1",
	}
	if got := m.commands(); !reflect.DeepEqual(got, want) {
		t.Errorf("commands %q, want %q", got, want)
	}
}
