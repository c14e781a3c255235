package safety

import (
	"unicode/utf8"

	"github.com/MintHotspot/hotspot-backend-go/src/inventory"
	"github.com/MintHotspot/hotspot-backend-go/src/session"
)

func checkNetworkManager(t *Target, r *Report) {
	switch t.Inventory.NetworkManager {
	case inventory.CapabilityUnsupported:
		r.block("network_manager", session.ConfigurationError, "network_manager_unavailable", "",
			"NetworkManager is not running")
	case inventory.CapabilityUnknown, "":
		r.warn("network_manager", "network_manager_unknown", "", "could not verify that NetworkManager is running")
	}
}

func checkRFKill(t *Target, r *Report) {
	h := t.Hotspot
	switch {
	case h.RFKill.Hard:
		r.block("rfkill", session.HardwareError, "rfkill_blocked", h.Name,
			"%s is hard-blocked by rfkill (hardware switch)", h.Name)
	case h.RFKill.Soft:
		r.block("rfkill", session.HardwareError, "rfkill_blocked", h.Name,
			"%s is soft-blocked by rfkill (run: rfkill unblock wifi)", h.Name)
	}
}

func checkInterfaceMode(t *Target, r *Report) {
	if t.Hotspot.Mode == "monitor" {
		r.block("interface_mode", session.HardwareError, "monitor_mode", t.Hotspot.Name,
			"%s is in monitor mode", t.Hotspot.Name)
	}
}

func checkAPMode(t *Target, r *Report) {
	switch t.Hotspot.APMode {
	case inventory.CapabilityUnsupported:
		r.block("ap_mode", session.HardwareError, "ap_unsupported", t.Hotspot.Name,
			"the driver of %s does not support access point mode", t.Hotspot.Name)
	case inventory.CapabilityUnknown, "":
		r.warn("ap_mode", "ap_unknown", t.Hotspot.Name,
			"could not verify access point support on %s", t.Hotspot.Name)
	}
}

func checkBand(t *Target, r *Report) {
	if t.Request.Band != session.Band5GHz {
		return
	}
	switch t.Hotspot.Band5GHz {
	case inventory.CapabilityUnsupported:
		r.block("band", session.HardwareError, "band_unsupported", t.Hotspot.Name,
			"%s does not support the 5 GHz band", t.Hotspot.Name)
	case inventory.CapabilityUnknown, "":
		r.warn("band", "band_unknown", t.Hotspot.Name,
			"could not verify 5 GHz support on %s", t.Hotspot.Name)
	}
}

// checkSingleAdapter blocks when hosting the hotspot would take away the
// only internet connection. With an alternate available the start proceeds
// and the upstream moves to the alternate.
func checkSingleAdapter(t *Target, r *Report) {
	h := t.Hotspot.Name
	losing := t.Carrier == h || t.Upstream.Interface == h
	if !losing {
		if t.Hotspot.ConnectedNetwork != "" {
			r.warn("single_adapter", "disconnect", h,
				"%s is connected to %q and will be disconnected", h, t.Hotspot.ConnectedNetwork)
		}
		return
	}

	alt, ok := alternateSource(t)
	if !ok {
		if t.Request.ForceSingleInterface {
			r.warn("single_adapter", "single_adapter_forced", h,
				"%s provides your only internet connection; it will be lost (forced)", h)
			if t.Upstream.Interface == h {
				t.Upstream = inventory.Upstream{}
			}
			return
		}
		r.block("single_adapter", session.SafetyBlock, "single_adapter_lockout", h,
			"%s provides your only internet connection; starting a hotspot on it would disconnect you "+
				"(connect another adapter, or use --force-single-interface)", h)
		return
	}

	r.warn("single_adapter", "upstream_moved", h,
		"%s will be disconnected; internet will continue through %s", h, alt.Interface)
	// a tunnel reconnects over the alternate by itself
	if !t.Upstream.Tunnel() {
		t.Upstream = alt
	}
}

// alternateSource finds a usable internet source other than the hotspot
// adapter. An explicit internet interface counts when usable; otherwise the
// candidate must hold a default route.
func alternateSource(t *Target) (inventory.Upstream, bool) {
	h := t.Hotspot.Name
	if name := t.Request.InternetInterface; name != "" && name != h {
		if iface, ok := t.Inventory.Find(name); ok && iface.Usable() {
			return inventory.Upstream{Interface: name, Type: iface.Type}, true
		}
	}
	for _, route := range t.Inventory.DefaultRoutes {
		if route.Interface == h {
			continue
		}
		iface, ok := t.Inventory.Find(route.Interface)
		if !ok || iface.Type == inventory.TypeVPN || !iface.Usable() {
			continue
		}
		return inventory.Upstream{Interface: iface.Name, Type: iface.Type}, true
	}
	return inventory.Upstream{}, false
}

func checkUpstream(t *Target, r *Report) {
	up := t.Upstream
	if up.Interface == "" {
		if t.Request.Routing == session.RoutingVPN {
			r.warn("upstream", "vpn_unavailable", "",
				"VPN routing requested but no tunnel is active; the start will fail")
			return
		}
		r.warn("upstream", "no_upstream", "",
			"no internet source found; clients will have no internet until one appears")
		return
	}
	if up.Interface == t.Hotspot.Name {
		return
	}
	iface, ok := t.Inventory.Find(up.Interface)
	switch {
	case !ok:
		r.warn("upstream", "upstream_missing", up.Interface,
			"internet source %s does not exist", up.Interface)
	case !iface.Up:
		r.warn("upstream", "upstream_down", up.Interface,
			"internet source %s is down", up.Interface)
	case !iface.HasAddress():
		r.warn("upstream", "upstream_no_address", up.Interface,
			"internet source %s has no IPv4 address", up.Interface)
	}
}

func checkSSID(t *Target, r *Report) {
	ssid := t.Request.SSID
	for i := 0; i < len(ssid); i++ {
		if ssid[i] >= utf8.RuneSelf {
			r.warn("ssid", "ssid_non_ascii", "",
				"SSID contains non-ASCII characters; some clients may not display it correctly")
			return
		}
	}
}
