package gsat

import (
	"strings"
	"time"
)

type fakeClock struct {
	now uint32
}

func (c *fakeClock) Millis() uint32   { return c.now }
func (c *fakeClock) Delay(ms uint32) { c.now += ms }

// fakeModule answers AT commands written by the device by feeding scripted
// responses back into its receive buffer.
type fakeModule struct {
	d       *Device
	replies map[string]string // command line without CRLF -> response
	def     string            // response to commands missing in replies
	writes  []string
}

func (m *fakeModule) Write(p []byte) (int, error) {
	s := string(p)
	m.writes = append(m.writes, s)
	if !strings.HasPrefix(s, "AT") || !strings.HasSuffix(s, "\r\n") {
		return len(p), nil // data mode
	}
	cmd := strings.TrimSuffix(s, "\r\n")
	r, ok := m.replies[cmd]
	if !ok {
		r = m.def
	}
	if r != "" {
		m.d.Feed([]byte(r))
	}
	return len(p), nil
}

func (m *fakeModule) commands() []string {
	var cmds []string
	for _, w := range m.writes {
		if strings.HasPrefix(w, "AT") {
			cmds = append(cmds, strings.TrimSuffix(w, "\r\n"))
		}
	}
	return cmds
}

func newTestDevice() (*Device, *fakeModule, *fakeClock) {
	m := &fakeModule{replies: map[string]string{}}
	clk := &fakeClock{}
	d := NewDevice("gs0", nil, m, &Config{
		Clock:        clk,
		PollInterval: 5 * time.Millisecond,
		MaxPolls:     10,
		CloseWait:    100 * time.Millisecond,
		Wireless: WirelessProfile{
			SSID:    "GAINSPAN",
			Key:     "napsniag",
			Channel: 11,
			Mode:    LimitedAP,
		},
		Network: &NetworkProfile{
			IP:      "192.168.3.1",
			Subnet:  "255.255.255.0",
			Gateway: "192.168.3.1",
		},
		WebAuth: WebAuthProfile{Username: "admin", Password: "nimda"},
	})
	m.d = d
	return d, m, clk
}
