package gsat

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// ErrInvalidProfile is wrapped by all profile validation errors.
var ErrInvalidProfile = errors.New("invalid profile")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidProfile}, args...)...)
}

type enumName[T ~uint8] struct {
	v    T
	name string
}

func enumString[T ~uint8](v T, names []enumName[T]) string {
	for _, e := range names {
		if e.v == v {
			return e.name
		}
	}
	return strconv.Itoa(int(v))
}

// parseEnum accepts the name or the numeric module code of a value.
func parseEnum[T ~uint8](kind, s string, names []enumName[T]) (T, error) {
	for _, e := range names {
		if s == e.name || s == strconv.Itoa(int(e.v)) {
			return e.v, nil
		}
	}
	return 0, invalid("%s %q", kind, s)
}

func enumValues[T ~uint8](names []enumName[T]) []T {
	vs := make([]T, len(names))
	for i, e := range names {
		vs[i] = e.v
	}
	return vs
}

// WirelessMode is the argument of AT+WM.
type WirelessMode uint8

const (
	Infrastructure WirelessMode = 0
	AdHoc          WirelessMode = 1
	LimitedAP      WirelessMode = 2
)

var wirelessModeNames = []enumName[WirelessMode]{
	{Infrastructure, "infrastructure"},
	{AdHoc, "adhoc"},
	{LimitedAP, "limited-ap"},
}

func (m WirelessMode) String() string { return enumString(m, wirelessModeNames) }

// ParseWirelessMode parses a mode name or its numeric code.
func ParseWirelessMode(s string) (WirelessMode, error) {
	return parseEnum("wireless mode", s, wirelessModeNames)
}

// WirelessModes returns all valid wireless modes.
func WirelessModes() []WirelessMode { return enumValues(wirelessModeNames) }

// AuthMode is the argument of AT+WAUTH.
type AuthMode uint8

const (
	AuthNone      AuthMode = 0
	AuthWEPOpen   AuthMode = 1
	AuthWEPShared AuthMode = 2
)

var authModeNames = []enumName[AuthMode]{
	{AuthNone, "none"},
	{AuthWEPOpen, "wep-open"},
	{AuthWEPShared, "wep-shared"},
}

func (a AuthMode) String() string { return enumString(a, authModeNames) }

// ParseAuthMode parses an authentication mode name or its numeric code.
func ParseAuthMode(s string) (AuthMode, error) {
	return parseEnum("authentication mode", s, authModeNames)
}

// AuthModes returns all valid authentication modes.
func AuthModes() []AuthMode { return enumValues(authModeNames) }

// Security is the argument of AT+WSEC.
type Security uint8

const (
	SecAuto           Security = 0
	SecOpen           Security = 1
	SecWEP            Security = 2
	SecWPAPSK         Security = 4
	SecWPA2PSK        Security = 8
	SecWPAEnterprise  Security = 16
	SecWPA2Enterprise Security = 32
	SecWPA2AESTKIP    Security = 64
)

var securityNames = []enumName[Security]{
	{SecAuto, "auto"},
	{SecOpen, "open"},
	{SecWEP, "wep"},
	{SecWPAPSK, "wpa-psk"},
	{SecWPA2PSK, "wpa2-psk"},
	{SecWPAEnterprise, "wpa-enterprise"},
	{SecWPA2Enterprise, "wpa2-enterprise"},
	{SecWPA2AESTKIP, "wpa2-aes-tkip"},
}

func (s Security) String() string { return enumString(s, securityNames) }

// ParseSecurity parses a security name or its numeric code.
func ParseSecurity(s string) (Security, error) {
	return parseEnum("security", s, securityNames)
}

// Securities returns all valid security configurations.
func Securities() []Security { return enumValues(securityNames) }

func (s Security) psk() bool {
	return s == SecWPAPSK || s == SecWPA2PSK || s == SecWPA2AESTKIP
}

// TxRate is the argument of AT+WRATE.
type TxRate uint8

const (
	RateAuto TxRate = 0
	Rate1M   TxRate = 2
	Rate2M   TxRate = 4
	Rate5M5  TxRate = 10
	Rate11M  TxRate = 22
)

var txRateNames = []enumName[TxRate]{
	{RateAuto, "auto"},
	{Rate1M, "1M"},
	{Rate2M, "2M"},
	{Rate5M5, "5.5M"},
	{Rate11M, "11M"},
}

func (r TxRate) String() string { return enumString(r, txRateNames) }

// ParseTxRate parses a transmission rate name or its numeric code.
func ParseTxRate(s string) (TxRate, error) {
	return parseEnum("transmission rate", s, txRateNames)
}

// TxRates returns all valid transmission rates.
func TxRates() []TxRate { return enumValues(txRateNames) }

// Channel is a 2.4 GHz Wi-Fi channel.
type Channel uint8

const (
	MinChannel Channel = 1
	MaxChannel Channel = 11
)

// ParseChannel parses a channel number.
func ParseChannel(s string) (Channel, error) {
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil || Channel(n) < MinChannel || Channel(n) > MaxChannel {
		return 0, invalid("channel %q", s)
	}
	return Channel(n), nil
}

// WirelessProfile contains the parameters applied at association time.
type WirelessProfile struct {
	SSID     string
	Auth     AuthMode
	Security Security
	Key      string
	Channel  Channel
	Rate     TxRate
	Mode     WirelessMode
}

func printable(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < ' ' || s[i] > '~' {
			return false
		}
	}
	return true
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		if _, err := HexDigit(s[i]); err != nil {
			return false
		}
	}
	return true
}

// Validate checks all fields of p.
func (p *WirelessProfile) Validate() error {
	if p.SSID == "" {
		return invalid("SSID cannot be empty")
	}
	if len(p.SSID) > 32 {
		return invalid("SSID too long (max 32 chars): %d chars", len(p.SSID))
	}
	if !printable(p.SSID) || !printable(p.Key) {
		return invalid("SSID and key must be printable ASCII")
	}
	if _, err := ParseAuthMode(strconv.Itoa(int(p.Auth))); err != nil {
		return err
	}
	if _, err := ParseSecurity(strconv.Itoa(int(p.Security))); err != nil {
		return err
	}
	if _, err := ParseTxRate(strconv.Itoa(int(p.Rate))); err != nil {
		return err
	}
	if _, err := ParseWirelessMode(strconv.Itoa(int(p.Mode))); err != nil {
		return err
	}
	if p.Channel < MinChannel || p.Channel > MaxChannel {
		return invalid("channel must be %d-%d, got %d", MinChannel, MaxChannel, p.Channel)
	}
	switch {
	case p.Security.psk():
		if len(p.Key) < 8 || len(p.Key) > 63 {
			return invalid("WPA passphrase must be 8-63 chars, got %d", len(p.Key))
		}
	case p.Security == SecWEP || p.Auth != AuthNone:
		if (len(p.Key) != 10 && len(p.Key) != 26) || !isHex(p.Key) {
			return invalid("WEP key must be 10 or 26 hex digits")
		}
	}
	return nil
}

// NetworkProfile is a static IPv4 configuration.
type NetworkProfile struct {
	IP      string
	Subnet  string
	Gateway string
}

// Validate checks that all addresses are dotted decimal IPv4 addresses.
func (p *NetworkProfile) Validate() error {
	for _, a := range [...]struct{ name, addr string }{
		{"IP", p.IP}, {"subnet", p.Subnet}, {"gateway", p.Gateway},
	} {
		if ip := net.ParseIP(a.addr); ip == nil || ip.To4() == nil {
			return invalid("%s address %q", a.name, a.addr)
		}
	}
	return nil
}

// WebAuthProfile contains the credentials of the web servers.
type WebAuthProfile struct {
	Username string
	Password string
}
