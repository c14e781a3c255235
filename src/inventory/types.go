package inventory

import (
	"time"
)

// Type is the classification of a network interface.
type Type string

const (
	TypeBuiltinWiFi     Type = "builtin_wifi"
	TypeUSBWiFi         Type = "usb_wifi"
	TypeEthernet        Type = "ethernet"
	TypeMobileBroadband Type = "mobile_broadband"
	TypePhoneTether     Type = "phone_tether"
	TypeVPN             Type = "vpn"
	TypeBridge          Type = "bridge"
	TypeUnknown         Type = "unknown"
)

// Label is the human readable name of a type.
func (t Type) Label() string {
	switch t {
	case TypeBuiltinWiFi:
		return "Built-in Wi-Fi"
	case TypeUSBWiFi:
		return "USB Wi-Fi"
	case TypeEthernet:
		return "Ethernet"
	case TypeMobileBroadband:
		return "Mobile broadband"
	case TypePhoneTether:
		return "Phone tether"
	case TypeVPN:
		return "VPN tunnel"
	case TypeBridge:
		return "Bridge"
	}
	return "Unknown"
}

// Capability is a tri-state capability flag; Unknown means the query failed
// or was not applicable.
type Capability string

const (
	CapabilityUnknown     Capability = "unknown"
	CapabilitySupported   Capability = "supported"
	CapabilityUnsupported Capability = "unsupported"
)

func capabilityOf(b bool) Capability {
	if b {
		return CapabilitySupported
	}
	return CapabilityUnsupported
}

// RFKill is the radio kill-switch state.
type RFKill struct {
	Soft bool `json:"soft"`
	Hard bool `json:"hard"`
}

// Blocked reports whether either switch blocks the radio.
func (r RFKill) Blocked() bool {
	return r.Soft || r.Hard
}

// Interface is one classified network interface.
type Interface struct {
	Name      string   `json:"name"`
	Type      Type     `json:"type"`
	MAC       string   `json:"mac,omitempty"`
	Driver    string   `json:"driver,omitempty"`
	Bus       string   `json:"bus,omitempty"`
	Phy       string   `json:"phy,omitempty"`
	Up        bool     `json:"up"`
	OperState string   `json:"oper_state,omitempty"`
	Addresses []string `json:"addresses,omitempty"`

	// Wireless only.
	Mode     string     `json:"mode,omitempty"`
	APMode   Capability `json:"ap_mode"`
	Band5GHz Capability `json:"band_5ghz"`
	RFKill   RFKill     `json:"rfkill"`

	// ConnectedNetwork is the NetworkManager connection active on the device.
	ConnectedNetwork string `json:"connected_network,omitempty"`

	// ProbeError holds the reason classification fell back to unknown.
	ProbeError string `json:"probe_error,omitempty"`
}

// Wireless reports whether the interface is a Wi-Fi adapter.
func (i Interface) Wireless() bool {
	return i.Type == TypeBuiltinWiFi || i.Type == TypeUSBWiFi
}

// HasAddress reports whether an IPv4 address is assigned.
func (i Interface) HasAddress() bool {
	return len(i.Addresses) > 0
}

// Usable reports whether the interface can carry traffic right now.
func (i Interface) Usable() bool {
	return i.Up && i.HasAddress()
}

// Route is an IPv4 default route.
type Route struct {
	Interface string `json:"interface"`
	Gateway   string `json:"gateway,omitempty"`
	Metric    int    `json:"metric"`
}

// Inventory is a snapshot of the machine's interfaces.
type Inventory struct {
	Interfaces []Interface `json:"interfaces"`

	// KernelRoute is the egress interface the kernel picks for the probe
	// destination, empty when there is no route.
	KernelRoute   string  `json:"kernel_route,omitempty"`
	DefaultRoutes []Route `json:"default_routes,omitempty"`

	NetworkManager Capability `json:"network_manager"`
	CollectedAt    time.Time  `json:"collected_at"`
}

// Find returns the interface called name.
func (inv *Inventory) Find(name string) (Interface, bool) {
	for _, i := range inv.Interfaces {
		if i.Name == name {
			return i, true
		}
	}
	return Interface{}, false
}

// TypeOf returns the type of name, TypeUnknown if absent.
func (inv *Inventory) TypeOf(name string) Type {
	if i, ok := inv.Find(name); ok {
		return i.Type
	}
	return TypeUnknown
}
