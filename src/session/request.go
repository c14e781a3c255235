package session

import (
	"net"
	"net/netip"
	"strings"
	"unicode"
)

const (
	MaxSSIDLength       = 32
	MinPassphraseLength = 8
	MaxPassphraseLength = 63
	MinAutoOffMinutes   = 1
	MaxAutoOffMinutes   = 120
	maxInterfaceName    = 15
)

// ParseBand accepts the CLI spellings of a band.
func ParseBand(s string) (Band, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "g", "bg", "2.4", "2.4ghz":
		return Band24GHz, nil
	case "a", "5", "5ghz":
		return Band5GHz, nil
	}
	return "", Invalidf("invalid_band", "unknown band %q (use g or a)", s)
}

// Normalize fills defaults and canonicalises MAC addresses. The SSID is
// kept byte for byte. It does not validate; call Validate afterwards.
func (r *Request) Normalize() {
	r.HotspotInterface = strings.TrimSpace(r.HotspotInterface)
	r.InternetInterface = strings.TrimSpace(r.InternetInterface)
	r.DNSOverride = strings.TrimSpace(r.DNSOverride)
	if r.Band == "" {
		r.Band = Band24GHz
	}
	if r.Routing == "" {
		r.Routing = RoutingAuto
	}
	if r.MACFilter.Mode == "" {
		r.MACFilter.Mode = MACFilterNone
	}
	seen := make(map[string]bool)
	macs := make([]string, 0, len(r.MACFilter.Addresses))
	for _, m := range r.MACFilter.Addresses {
		m = strings.ToLower(strings.TrimSpace(m))
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		macs = append(macs, m)
	}
	r.MACFilter.Addresses = macs
	if r.MACFilter.Mode == MACFilterBlock && len(macs) == 0 {
		r.MACFilter.Mode = MACFilterNone
	}
}

// Validate checks the request for malformed input. Every failure is an
// InvalidArgument error and is detected before any system change.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.SSID) == "" {
		return Invalidf("invalid_ssid", "SSID must not be empty or blank")
	}
	if len(r.SSID) > MaxSSIDLength {
		return Invalidf("invalid_ssid", "SSID is %d bytes, maximum is %d", len(r.SSID), MaxSSIDLength)
	}

	if r.Open {
		if r.Passphrase != "" {
			return Invalidf("invalid_passphrase", "an open network cannot have a passphrase")
		}
	} else if err := validatePassphrase(r.Passphrase); err != nil {
		return err
	}

	if err := validateInterfaceName("hotspot interface", r.HotspotInterface); err != nil {
		return err
	}
	if err := validateInterfaceName("internet interface", r.InternetInterface); err != nil {
		return err
	}

	switch r.Band {
	case Band24GHz, Band5GHz:
	default:
		return Invalidf("invalid_band", "unknown band %q", r.Band)
	}

	switch r.Routing {
	case RoutingAuto, RoutingVPN, RoutingExcludeVPN:
	default:
		return Invalidf("invalid_routing", "unknown routing mode %q", r.Routing)
	}

	if r.DNSOverride != "" {
		addr, err := netip.ParseAddr(r.DNSOverride)
		if err != nil || !addr.Is4() {
			return Invalidf("invalid_dns", "DNS override %q is not an IPv4 address", r.DNSOverride)
		}
	}

	switch r.MACFilter.Mode {
	case MACFilterNone, MACFilterBlock:
	case MACFilterAllow:
		if len(r.MACFilter.Addresses) == 0 {
			return Invalidf("invalid_mac_filter", "an allow-list needs at least one address")
		}
	default:
		return Invalidf("invalid_mac_filter", "unknown MAC filter mode %q", r.MACFilter.Mode)
	}
	for _, m := range r.MACFilter.Addresses {
		hw, err := net.ParseMAC(m)
		if err != nil || len(hw) != 6 {
			return Invalidf("invalid_mac", "%q is not a MAC address", m)
		}
	}

	if r.AutoOffMinutes != 0 && (r.AutoOffMinutes < MinAutoOffMinutes || r.AutoOffMinutes > MaxAutoOffMinutes) {
		return Invalidf("invalid_timer", "auto-off timer must be between %d and %d minutes, got %d",
			MinAutoOffMinutes, MaxAutoOffMinutes, r.AutoOffMinutes)
	}
	return nil
}

func validatePassphrase(p string) error {
	if p == "" {
		return Invalidf("invalid_passphrase", "a passphrase is required unless --open is given")
	}
	// 64 hex digits is a raw PSK
	if len(p) == 64 && isHex(p) {
		return nil
	}
	if len(p) < MinPassphraseLength || len(p) > MaxPassphraseLength {
		return Invalidf("invalid_passphrase", "passphrase must be %d-%d characters", MinPassphraseLength, MaxPassphraseLength)
	}
	for _, c := range p {
		if c > unicode.MaxASCII || !unicode.IsPrint(c) {
			return Invalidf("invalid_passphrase", "passphrase must contain printable ASCII only")
		}
	}
	return nil
}

func validateInterfaceName(what, name string) error {
	if name == "" {
		return nil
	}
	if len(name) > maxInterfaceName || strings.ContainsAny(name, "/ \t\n:") {
		return Invalidf("invalid_interface", "%s %q is not a valid interface name", what, name)
	}
	return nil
}

func isHex(s string) bool {
	for _, c := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}
