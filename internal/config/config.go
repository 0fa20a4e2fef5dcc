// Package config loads the gsprov configuration file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/embeddedgo/gsat"
)

// DefaultPath is used when no configuration file is given.
const DefaultPath = "gsprov.yaml"

// Config holds the whole gsprov configuration.
type Config struct {
	Serial   SerialConfig   `yaml:"serial"`
	Wireless WirelessConfig `yaml:"wireless"`
	Network  NetworkConfig  `yaml:"network"`
	Web      WebConfig      `yaml:"web"`
	Driver   DriverConfig   `yaml:"driver"`
	LogLevel string         `yaml:"log_level"` // debug, info, warn, error or empty
}

type SerialConfig struct {
	Port string `yaml:"port"` // e.g. /dev/ttyUSB0
	Baud int    `yaml:"baud"`
}

// WirelessConfig uses the names accepted by the gsat Parse* functions.
type WirelessConfig struct {
	SSID     string `yaml:"ssid"`
	Key      string `yaml:"key"`
	Mode     string `yaml:"mode"`     // infrastructure, adhoc, limited-ap
	Auth     string `yaml:"auth"`     // none, wep-open, wep-shared
	Security string `yaml:"security"` // auto, open, wep, wpa-psk, wpa2-psk, ...
	Channel  int    `yaml:"channel"`
	Rate     string `yaml:"rate"` // auto, 1M, 2M, 5.5M, 11M
}

type NetworkConfig struct {
	DHCP    bool   `yaml:"dhcp"`
	IP      string `yaml:"ip"`
	Subnet  string `yaml:"subnet"`
	Gateway string `yaml:"gateway"`
}

type WebConfig struct {
	Port     uint16 `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	NoAuth   bool   `yaml:"no_auth"`
}

type DriverConfig struct {
	RingSize       int `yaml:"ring_size"`
	PollIntervalMs int `yaml:"poll_interval_ms"`
	MaxPolls       int `yaml:"max_polls"`
	CloseWaitMs    int `yaml:"close_wait_ms"`
}

// DefaultConfig returns the factory settings of the module: a limited AP
// named GAINSPAN on channel 11 serving the provisioning page at 192.168.3.1.
func DefaultConfig() *Config {
	return &Config{
		Serial: SerialConfig{
			Port: "/dev/ttyUSB0",
			Baud: 115200,
		},
		Wireless: WirelessConfig{
			SSID:     "GAINSPAN",
			Key:      "napsniag",
			Mode:     "limited-ap",
			Auth:     "none",
			Security: "auto",
			Channel:  11,
			Rate:     "auto",
		},
		Network: NetworkConfig{
			IP:      "192.168.3.1",
			Subnet:  "255.255.255.0",
			Gateway: "192.168.3.1",
		},
		Web: WebConfig{
			Port:     80,
			Username: "admin",
			Password: "nimda",
		},
		Driver: DriverConfig{
			RingSize:       gsat.DefaultRingSize,
			PollIntervalMs: int(gsat.DefaultPollInterval / time.Millisecond),
			MaxPolls:       gsat.DefaultMaxPolls,
			CloseWaitMs:    int(gsat.DefaultCloseWait / time.Millisecond),
		},
	}
}

// Load reads the configuration from path and applies the environment
// overrides. A missing file is not an error: the defaults are used instead.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides supports GSAT_PORT, GSAT_BAUD, GSAT_SSID and GSAT_KEY.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("GSAT_PORT"); v != "" {
		c.Serial.Port = v
	}
	if v := os.Getenv("GSAT_BAUD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: GSAT_BAUD: %w", err)
		}
		c.Serial.Baud = n
	}
	if v := os.Getenv("GSAT_SSID"); v != "" {
		c.Wireless.SSID = v
	}
	if v := os.Getenv("GSAT_KEY"); v != "" {
		c.Wireless.Key = v
	}
	return nil
}

// Save writes c to path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// WirelessProfile converts the wireless section.
func (c *Config) WirelessProfile() (gsat.WirelessProfile, error) {
	w := &c.Wireless
	p := gsat.WirelessProfile{SSID: w.SSID, Key: w.Key}
	var err error
	if p.Mode, err = gsat.ParseWirelessMode(w.Mode); err != nil {
		return p, err
	}
	if p.Auth, err = gsat.ParseAuthMode(w.Auth); err != nil {
		return p, err
	}
	if p.Security, err = gsat.ParseSecurity(w.Security); err != nil {
		return p, err
	}
	if p.Rate, err = gsat.ParseTxRate(w.Rate); err != nil {
		return p, err
	}
	if p.Channel, err = gsat.ParseChannel(strconv.Itoa(w.Channel)); err != nil {
		return p, err
	}
	return p, p.Validate()
}

// SetWireless replaces the wireless section with p.
func (c *Config) SetWireless(p gsat.WirelessProfile) {
	c.Wireless = WirelessConfig{
		SSID:     p.SSID,
		Key:      p.Key,
		Mode:     p.Mode.String(),
		Auth:     p.Auth.String(),
		Security: p.Security.String(),
		Channel:  int(p.Channel),
		Rate:     p.Rate.String(),
	}
}

// NetworkProfile converts the network section. It returns nil if DHCP is
// enabled.
func (c *Config) NetworkProfile() (*gsat.NetworkProfile, error) {
	if c.Network.DHCP {
		return nil, nil
	}
	p := &gsat.NetworkProfile{IP: c.Network.IP, Subnet: c.Network.Subnet, Gateway: c.Network.Gateway}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Device returns the gsat.Device parameters described by c.
func (c *Config) Device(log *zap.Logger) (*gsat.Config, error) {
	wp, err := c.WirelessProfile()
	if err != nil {
		return nil, err
	}
	np, err := c.NetworkProfile()
	if err != nil {
		return nil, err
	}
	d := &c.Driver
	return &gsat.Config{
		Baud:         c.Serial.Baud,
		RingSize:     d.RingSize,
		PollInterval: time.Duration(d.PollIntervalMs) * time.Millisecond,
		MaxPolls:     d.MaxPolls,
		CloseWait:    time.Duration(d.CloseWaitMs) * time.Millisecond,
		Logger:       log,
		Wireless:     wp,
		Network:      np,
		WebAuth:      gsat.WebAuthProfile{Username: c.Web.Username, Password: c.Web.Password},
	}, nil
}
