package cli

import (
	"github.com/MintHotspot/hotspot-backend-go/src/config_manager"
	"github.com/MintHotspot/hotspot-backend-go/src/session"
	"github.com/spf13/cobra"
)

// requestFlags are the flags that describe a hotspot.
type requestFlags struct {
	ssid        string
	password    string
	iface       string
	upstream    string
	band        string
	hidden      bool
	open        bool
	dns         string
	vpn         bool
	excludeVPN  bool
	forceSingle bool
	timer       int
	blockedMACs []string
	allowedMACs []string
}

func (f *requestFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.ssid, "ssid", "s", "", "network name (1-32 bytes)")
	fs.StringVarP(&f.password, "password", "p", "", "WPA2 passphrase (8-63 characters)")
	fs.StringVarP(&f.iface, "interface", "i", "", "Wi-Fi interface to host the hotspot on (default: auto-select)")
	fs.StringVarP(&f.upstream, "upstream", "u", "", "interface providing internet access (default: follow the routing table)")
	fs.StringVarP(&f.band, "band", "b", "", "radio band: g (2.4GHz) or a (5GHz)")
	fs.BoolVar(&f.hidden, "hidden", false, "do not broadcast the SSID")
	fs.BoolVar(&f.open, "open", false, "run an open network without a passphrase")
	fs.StringVar(&f.dns, "dns", "", "IPv4 DNS server handed to clients")
	fs.BoolVar(&f.vpn, "vpn", false, "route clients through the active VPN only")
	fs.BoolVar(&f.excludeVPN, "exclude-vpn", false, "route clients around any active VPN")
	fs.BoolVar(&f.forceSingle, "force-single-interface", false, "start even if it disconnects this machine's only internet connection")
	fs.IntVarP(&f.timer, "timer", "t", 0, "stop the hotspot after this many minutes (1-120)")
	fs.StringArrayVar(&f.blockedMACs, "block-mac", nil, "refuse this client MAC address (repeatable)")
	fs.StringArrayVar(&f.allowedMACs, "allow-mac", nil, "admit only this client MAC address (repeatable)")
}

// given returns the name of the first request flag set on cmd.
func (f *requestFlags) given(cmd *cobra.Command) string {
	for _, name := range requestFlagNames {
		if cmd.Flags().Changed(name) {
			return name
		}
	}
	return ""
}

var requestFlagNames = []string{
	"ssid", "password", "interface", "upstream", "band", "hidden", "open", "dns",
	"vpn", "exclude-vpn", "force-single-interface", "timer", "block-mac", "allow-mac",
}

// build overlays the flags that were given on base, the last-used
// request. The upstream and the single-adapter override only ever come
// from the command line.
func (f *requestFlags) build(cmd *cobra.Command, base session.Request) (session.Request, error) {
	changed := cmd.Flags().Changed
	req := base
	req.InternetInterface = ""
	req.ForceSingleInterface = f.forceSingle

	if changed("vpn") && changed("exclude-vpn") {
		return req, session.Invalidf("invalid_routing", "--vpn and --exclude-vpn cannot be combined")
	}
	if changed("block-mac") && changed("allow-mac") {
		return req, session.Invalidf("invalid_mac_filter", "--block-mac and --allow-mac cannot be combined")
	}
	if changed("open") && changed("password") && f.open {
		return req, session.Invalidf("invalid_passphrase", "--open and --password cannot be combined")
	}

	if changed("ssid") {
		req.SSID = f.ssid
	}
	if changed("password") {
		req.Passphrase = f.password
		req.Open = false
	}
	if changed("open") {
		req.Open = f.open
		if f.open {
			req.Passphrase = ""
		}
	}
	if changed("interface") {
		req.HotspotInterface = f.iface
	}
	if changed("upstream") {
		req.InternetInterface = f.upstream
	}
	if changed("band") {
		band, err := session.ParseBand(f.band)
		if err != nil {
			return req, err
		}
		req.Band = band
	}
	if changed("hidden") {
		req.Hidden = f.hidden
	}
	if changed("dns") {
		req.DNSOverride = f.dns
	}
	switch {
	case changed("vpn") && f.vpn:
		req.Routing = session.RoutingVPN
	case changed("exclude-vpn") && f.excludeVPN:
		req.Routing = session.RoutingExcludeVPN
	case changed("vpn") || changed("exclude-vpn"):
		req.Routing = session.RoutingAuto
	}
	if changed("timer") {
		if f.timer < session.MinAutoOffMinutes || f.timer > session.MaxAutoOffMinutes {
			return req, session.Invalidf("invalid_timer", "--timer must be between %d and %d minutes, got %d",
				session.MinAutoOffMinutes, session.MaxAutoOffMinutes, f.timer)
		}
		req.AutoOffMinutes = f.timer
	}
	if changed("block-mac") {
		req.MACFilter = session.MACFilter{Mode: session.MACFilterBlock, Addresses: f.blockedMACs}
	}
	if changed("allow-mac") {
		req.MACFilter = session.MACFilter{Mode: session.MACFilterAllow, Addresses: f.allowedMACs}
	}

	req.Normalize()
	if err := req.Validate(); err != nil {
		return req, err
	}
	return req, nil
}

// lastRequest returns the saved request, or the defaults when there is
// none or it cannot be read.
func lastRequest(cm *config_manager.ConfigManager) session.Request {
	if cm != nil {
		config, err := cm.LoadConfig()
		if err != nil {
			logger.WithError(err).Warn("Ignoring unreadable user config")
		} else if config != nil {
			return config.LastRequest
		}
	}
	return config_manager.NewDefaultConfig().LastRequest
}
