package config_manager

import (
	"encoding/json"

	"github.com/MintHotspot/hotspot-backend-go/src/session"
)

// guiConfig is the flat layout written by the desktop front end before
// the file was versioned.
type guiConfig struct {
	SSID        string   `json:"ssid"`
	Password    string   `json:"password"`
	Interface   string   `json:"interface"`
	Band        string   `json:"band"`
	AutoOff     int      `json:"auto_off"`
	Hidden      bool     `json:"hidden"`
	DNS         string   `json:"dns"`
	MACMode     string   `json:"mac_mode"`
	BlockedMACs []string `json:"blocked_macs"`
	AllowedMACs []string `json:"allowed_macs"`
	RouteVPN    *bool    `json:"route_vpn"`
}

// migrateGUILayout converts the unversioned layout. Values the backend
// would reject are dropped in favour of defaults.
func migrateGUILayout(data []byte) (*Config, error) {
	var old guiConfig
	if err := json.Unmarshal(data, &old); err != nil {
		return nil, err
	}

	config := NewDefaultConfig()
	req := &config.LastRequest
	if old.SSID != "" {
		req.SSID = old.SSID
	}
	req.Passphrase = old.Password
	req.HotspotInterface = old.Interface
	if band, err := session.ParseBand(old.Band); err == nil {
		req.Band = band
	}
	if old.AutoOff > 0 && old.AutoOff <= session.MaxAutoOffMinutes {
		req.AutoOffMinutes = old.AutoOff
	}
	req.Hidden = old.Hidden
	req.DNSOverride = old.DNS

	// the front end routed through a VPN unless told not to
	req.Routing = session.RoutingAuto
	if old.RouteVPN != nil && !*old.RouteVPN {
		req.Routing = session.RoutingExcludeVPN
	}

	switch old.MACMode {
	case "allow":
		if len(old.AllowedMACs) > 0 {
			req.MACFilter = session.MACFilter{Mode: session.MACFilterAllow, Addresses: old.AllowedMACs}
		}
	case "block":
		req.MACFilter = session.MACFilter{Mode: session.MACFilterBlock, Addresses: old.BlockedMACs}
	}

	req.Normalize()
	return config, nil
}
