package gsweb

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/embeddedgo/gsat"
)

type fakeClock struct{ now uint32 }

func (c *fakeClock) Millis() uint32   { return c.now }
func (c *fakeClock) Delay(ms uint32) { c.now += ms }

// fakeModule answers every AT command with OK unless a reply is scripted and
// collects the data sent to the sockets.
type fakeModule struct {
	d        *gsat.Device
	replies  map[string]string
	cmds     []string
	data     strings.Builder
	dataMode bool
}

func (m *fakeModule) Write(p []byte) (int, error) {
	s := string(p)
	switch {
	case strings.HasPrefix(s, "\x1bS"):
		m.dataMode = true
	case s == "\x1bE":
		m.dataMode = false
	case m.dataMode:
		m.data.WriteString(s)
	default:
		cmd := strings.TrimSuffix(s, "\r\n")
		m.cmds = append(m.cmds, cmd)
		r, ok := m.replies[cmd]
		if !ok {
			r = "OK\r\n"
		}
		m.d.Feed([]byte(r))
	}
	return len(p), nil
}

func (m *fakeModule) sent(prefix string) bool {
	for _, c := range m.cmds {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func newTestServer(t *testing.T, page *Page) (*Server, *gsat.Device, *fakeModule) {
	t.Helper()
	m := &fakeModule{replies: map[string]string{"AT+NSTCP=80": "CONNECT 0\r\nOK\r\n"}}
	d := gsat.NewDevice("gs0", nil, m, &gsat.Config{
		Clock:    &fakeClock{},
		RingSize: 2048,
		MaxPolls: 10,
		Wireless: gsat.WirelessProfile{SSID: "GAINSPAN", Key: "napsniag", Channel: 11, Mode: gsat.LimitedAP},
		Network:  &gsat.NetworkProfile{IP: "192.168.3.1", Subnet: "255.255.255.0", Gateway: "192.168.3.1"},
		WebAuth:  gsat.WebAuthProfile{Username: "admin", Password: "nimda"},
	})
	m.d = d
	if page == nil {
		page = ProvisioningPage(d.Wireless())
	}
	srv := NewServer(d, page, nil)
	if err := srv.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	m.cmds = nil
	return srv, d, m
}

var authHeader = "Authorization: Basic " + base64.StdEncoding.EncodeToString([]byte("admin:nimda")) + "\r\n"

// roundTrip delivers raw as a bulk data block of a new connection and returns
// the parsed response.
func roundTrip(t *testing.T, srv *Server, d *gsat.Device, m *fakeModule, raw string) *http.Response {
	t.Helper()
	m.data.Reset()
	d.Feed([]byte(fmt.Sprintf("CONNECT 0 1 192.168.3.2 50000\r\n\x1bZ1%04X%s", len(raw), raw)))
	if err := srv.ProcessClientRequest(context.Background()); err != nil {
		t.Fatal(err)
	}
	resp, err := http.ReadResponse(bufio.NewReader(strings.NewReader(m.data.String())), nil)
	if err != nil {
		t.Fatalf("bad response %q: %v", m.data.String(), err)
	}
	return resp
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestGetPage(t *testing.T) {
	srv, d, m := newTestServer(t, nil)
	resp := roundTrip(t, srv, d, m, "GET / HTTP/1.1\r\nHost: 192.168.3.1\r\n"+authHeader+"\r\n")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %s", resp.Status)
	}
	b := body(t, resp)
	for _, s := range []string{
		"<title>Wireless setup</title>",
		`<form method="post" action="/">`,
		`<select name="channel">`,
		`<option value="11" selected>11</option>`,
		`<option value="limited-ap" selected>limited-ap</option>`,
		`<input type="radio" name="auth" value="none" checked>none`,
		`name="ssid" maxlength="32" value="GAINSPAN"`,
	} {
		if !strings.Contains(b, s) {
			t.Errorf("page does not contain %s", s)
		}
	}
	if !m.sent("AT+NCLOSE=1") {
		t.Error("connection not closed")
	}
	if d.FreeSlot() != 1 {
		t.Errorf("client slot not reclaimed")
	}
}

func TestErrorResponses(t *testing.T) {
	srv, d, m := newTestServer(t, nil)
	for _, test := range []struct {
		raw  string
		code int
	}{
		{"GET / HTTP/1.1\r\nHost: x\r\n\r\n", http.StatusUnauthorized},
		{"GET / HTTP/1.1\r\nHost: x\r\nAuthorization: Basic YWRtaW46eA==\r\n\r\n", http.StatusUnauthorized},
		{"GET /admin HTTP/1.1\r\nHost: x\r\n" + authHeader + "\r\n", http.StatusNotFound},
		{"DELETE / HTTP/1.1\r\nHost: x\r\n" + authHeader + "\r\n", http.StatusNotFound},
		{"BLAH\r\n\r\n", http.StatusBadRequest},
	} {
		resp := roundTrip(t, srv, d, m, test.raw)
		if resp.StatusCode != test.code {
			t.Errorf("%q: status %s, want %d", test.raw, resp.Status, test.code)
		}
		if test.code == http.StatusUnauthorized && resp.Header.Get("WWW-Authenticate") == "" {
			t.Errorf("%q: no WWW-Authenticate header", test.raw)
		}
	}
}

func post(form string) string {
	return "POST / HTTP/1.1\r\nHost: 192.168.3.1\r\n" + authHeader +
		"Content-Type: application/x-www-form-urlencoded\r\n" +
		fmt.Sprintf("Content-Length: %d\r\n\r\n", len(form)) + form
}

// An out of range channel is rejected before any command is sent.
func TestPostInvalidChannel(t *testing.T) {
	srv, d, m := newTestServer(t, nil)
	old := d.Wireless()
	resp := roundTrip(t, srv, d, m, post("mode=limited-ap&channel=12&ssid=NEWNET"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status %s", resp.Status)
	}
	if !strings.Contains(body(t, resp), "channel") {
		t.Error("no error message")
	}
	for _, c := range []string{"AT+WD", "AT+WM", "AT+WA"} {
		if m.sent(c) {
			t.Errorf("%s sent", c)
		}
	}
	if d.Wireless() != old {
		t.Errorf("profile changed: %+v", d.Wireless())
	}
}

func TestPostReconfigures(t *testing.T) {
	srv, d, m := newTestServer(t, nil)
	resp := roundTrip(t, srv, d, m, post("mode=limited-ap&security=open&channel=6&rate=auto&ssid=NEWNET&key="))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %s", resp.Status)
	}
	b := body(t, resp)
	if !strings.Contains(b, "Configuration applied") || !strings.Contains(b, `<option value="6" selected>`) {
		t.Errorf("page:\n%s", b)
	}
	for _, c := range []string{"AT+WD", "AT+WM=2", "AT+WSEC=1", "AT+WA=NEWNET,,6"} {
		if !m.sent(c) {
			t.Errorf("%s not sent", c)
		}
	}
	p := d.Wireless()
	if p.SSID != "NEWNET" || p.Channel != 6 || p.Security != gsat.SecOpen || p.Key != "napsniag" {
		t.Errorf("profile %+v", p)
	}
}

func TestPostModuleError(t *testing.T) {
	srv, d, m := newTestServer(t, nil)
	m.replies["AT+WA=NEWNET,,11"] = "ERROR\r\n"
	resp := roundTrip(t, srv, d, m, post("ssid=NEWNET"))
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status %s", resp.Status)
	}
	if d.Wireless().SSID != "GAINSPAN" {
		t.Errorf("profile %+v", d.Wireless())
	}
}

func choicePage(t *testing.T) *Page {
	p := NewPage("Chico: The Robot", "! Control Interface !")
	for _, c := range []struct {
		v byte
		l string
	}{{'F', "Forward"}, {'R', "Reverse"}, {'S', "Stop"}} {
		if err := p.AddChoice("l", Dropdown, c.v, c.l); err != nil {
			t.Fatal(err)
		}
	}
	return p
}

func TestChoices(t *testing.T) {
	srv, d, m := newTestServer(t, choicePage(t))
	for _, q := range []string{"l=F", "l=X", "l=R&l=S", "other=F"} {
		resp := roundTrip(t, srv, d, m, "GET /?"+q+" HTTP/1.0\r\n"+authHeader+"\r\n")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: status %s", q, resp.Status)
		}
		if b := body(t, resp); !strings.Contains(b, `<form method="get" action="/">`) {
			t.Errorf("%s: page:\n%s", q, b)
		}
	}
	var got []byte
	for {
		c, ok := srv.NextChoice()
		if !ok {
			break
		}
		got = append(got, c)
	}
	if string(got) != "FRS" {
		t.Errorf("choices %q", got)
	}
	if len(m.cmds) != 4 {
		t.Errorf("commands %q", m.cmds) // one NCLOSE per request
	}
}

func TestChoiceQueueOverflow(t *testing.T) {
	srv, _, _ := newTestServer(t, choicePage(t))
	for i := 0; i < ChoiceQueueSize+3; i++ {
		srv.pushChoice(byte('a' + i))
	}
	c, _ := srv.NextChoice()
	if c != 'd' {
		t.Errorf("oldest choice %q", c)
	}
}

// Requests are collected across several steps until complete.
func TestPartialRequest(t *testing.T) {
	srv, d, m := newTestServer(t, nil)
	raw := "GET / HTTP/1.1\r\nHost: x\r\n" + authHeader + "\r\n"
	d.Feed([]byte(fmt.Sprintf("CONNECT 0 1 192.168.3.2 50000\r\n\x1bZ1%04X%s", len(raw), raw[:10])))
	if err := srv.ProcessClientRequest(context.Background()); err != nil {
		t.Fatal(err)
	}
	if m.data.Len() != 0 || len(srv.clients) != 1 {
		t.Fatalf("answered %q, %d clients", m.data.String(), len(srv.clients))
	}
	d.Feed([]byte(raw[10:]))
	if err := srv.ProcessClientRequest(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(m.data.String(), "HTTP/1.0 200 OK\r\n") {
		t.Errorf("response %q", m.data.String())
	}
	if len(srv.clients) != 0 {
		t.Errorf("%d clients left", len(srv.clients))
	}
}

// The response waits until the module delivered the whole data block that
// carried the request.
func TestResponseAfterBlockEnd(t *testing.T) {
	srv, d, m := newTestServer(t, nil)
	raw := "GET / HTTP/1.1\r\nHost: x\r\n" + authHeader + "\r\n"
	d.Feed([]byte(fmt.Sprintf("CONNECT 0 1 192.168.3.2 50000\r\n\x1bZ1%04X%s", len(raw)+4, raw)))
	for i := 0; i < 2; i++ {
		if err := srv.ProcessClientRequest(context.Background()); err != nil {
			t.Fatal(err)
		}
		if m.data.Len() != 0 || len(srv.clients) != 1 || m.sent("AT+NCLOSE") {
			t.Fatalf("answered %q, %d clients, cmds %q", m.data.String(), len(srv.clients), m.cmds)
		}
	}
	if s, _ := d.Socket(1); s.Status != gsat.Established {
		t.Fatalf("client slot %+v", s)
	}
	d.Feed([]byte("\r\n\r\n"))
	if err := srv.ProcessClientRequest(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(m.data.String(), "HTTP/1.0 200 OK\r\n") {
		t.Errorf("response %q", m.data.String())
	}
	if !m.sent("AT+NCLOSE=1") || len(srv.clients) != 0 {
		t.Errorf("connection not closed: cmds %q, %d clients", m.cmds, len(srv.clients))
	}
}

func TestRequestTooLarge(t *testing.T) {
	srv, d, m := newTestServer(t, nil)
	raw := "GET / HTTP/1.1\r\nX-Junk: " + strings.Repeat("j", MaxRequest) + "\r\n\r\n"
	resp := roundTrip(t, srv, d, m, raw[:MaxRequest+10])
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status %s", resp.Status)
	}
}

func TestStartStop(t *testing.T) {
	srv, d, _ := newTestServer(t, nil)
	if err := srv.Stop(); err != nil {
		t.Fatal(err)
	}
	if s, _ := d.Socket(0); s.Status != gsat.Invalid {
		t.Errorf("server slot %+v", s)
	}
	if err := srv.ProcessClientRequest(context.Background()); err != ErrNotStarted {
		t.Errorf("err = %v", err)
	}
	empty := NewServer(d, NewPage("", ""), nil)
	if err := empty.Start(context.Background()); err != ErrEmptyPage {
		t.Errorf("err = %v", err)
	}
}
