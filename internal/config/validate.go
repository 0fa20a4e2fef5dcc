package config

import (
	"fmt"

	"github.com/embeddedgo/gsat"
)

// Validate checks configuration correctness. It does not modify cfg.
func Validate(cfg *Config) error {
	if cfg.Serial.Port == "" {
		return fmt.Errorf("serial: port must be set")
	}
	if cfg.Serial.Baud <= 0 {
		return fmt.Errorf("serial: invalid baud rate %d", cfg.Serial.Baud)
	}

	wp, err := cfg.WirelessProfile()
	if err != nil {
		return fmt.Errorf("wireless: %w", err)
	}
	if _, err := cfg.NetworkProfile(); err != nil {
		return fmt.Errorf("network: %w", err)
	}
	// the module runs the DHCP server for its clients
	if wp.Mode == gsat.LimitedAP && cfg.Network.DHCP {
		return fmt.Errorf("network: limited-ap mode requires a static address")
	}

	if cfg.Web.Port == 0 {
		return fmt.Errorf("web: port must be set")
	}
	if !cfg.Web.NoAuth && (cfg.Web.Username == "" || cfg.Web.Password == "") {
		return fmt.Errorf("web: username and password required unless no_auth is set")
	}

	d := &cfg.Driver
	for _, f := range []struct {
		name string
		v    int
	}{
		{"ring_size", d.RingSize},
		{"poll_interval_ms", d.PollIntervalMs},
		{"max_polls", d.MaxPolls},
		{"close_wait_ms", d.CloseWaitMs},
	} {
		if f.v < 0 {
			return fmt.Errorf("driver: %s cannot be negative", f.name)
		}
	}
	if d.RingSize > 1<<20 {
		return fmt.Errorf("driver: ring_size too large: %d", d.RingSize)
	}

	switch cfg.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", cfg.LogLevel)
	}
	return nil
}
