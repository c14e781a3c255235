package inventory

import (
	"sort"
	"strings"
)

// Attributes are the raw facts classification is based on.
type Attributes struct {
	Name      string
	LinkKind  string // netlink link type: device, tuntap, wireguard, bridge, veth...
	EncapType string // ether, ppp, none...
	DevType   string // DEVTYPE from the interface uevent
	Driver    string
	Bus       string // usb, pci, sdio, platform or empty for virtual links
	Wireless  bool   // phy80211 present
}

var tunnelKinds = map[string]bool{
	"tun":       true,
	"tuntap":    true,
	"wireguard": true,
	"ipip":      true,
	"gre":       true,
	"gretap":    true,
	"ip6tnl":    true,
	"sit":       true,
	"vti":       true,
	"vti6":      true,
	"xfrm":      true,
	"ppp":       true,
}

var tunnelPrefixes = []string{"tun", "tap", "wg", "ppp", "ipsec", "vpn"}

var mobileDrivers = map[string]bool{
	"qmi_wwan":       true,
	"cdc_mbim":       true,
	"huawei_cdc_ncm": true,
	"sierra_net":     true,
	"option":         true,
}

var tetherDrivers = map[string]bool{
	"rndis_host": true,
	"ipheth":     true,
	"cdc_ncm":    true,
}

// Classify maps raw attributes to an interface type. It is a pure function.
// Precedence: tunnel/bridge signature, then mobile broadband or phone
// tether, then wireless by bus, then wired Ethernet.
func Classify(a Attributes) Type {
	switch {
	case isTunnel(a):
		return TypeVPN
	case a.LinkKind == "bridge" || a.DevType == "bridge":
		return TypeBridge
	case isMobileBroadband(a):
		return TypeMobileBroadband
	case isPhoneTether(a):
		return TypePhoneTether
	case a.Wireless || a.DevType == "wlan":
		if a.Bus == "usb" {
			return TypeUSBWiFi
		}
		return TypeBuiltinWiFi
	case isEthernet(a):
		return TypeEthernet
	}
	return TypeUnknown
}

func isTunnel(a Attributes) bool {
	if tunnelKinds[a.LinkKind] || a.DevType == "wireguard" || a.EncapType == "ppp" {
		return true
	}
	return hasAnyPrefix(a.Name, tunnelPrefixes)
}

func isMobileBroadband(a Attributes) bool {
	return a.DevType == "wwan" || mobileDrivers[a.Driver] || strings.HasPrefix(a.Name, "ww")
}

func isPhoneTether(a Attributes) bool {
	if a.Bus != "usb" && !strings.HasPrefix(a.Name, "usb") {
		return false
	}
	return tetherDrivers[a.Driver] || strings.HasPrefix(a.Name, "usb")
}

func isEthernet(a Attributes) bool {
	if a.LinkKind != "" && a.LinkKind != "device" {
		return false
	}
	if a.EncapType != "" && a.EncapType != "ether" {
		return false
	}
	return a.Bus != "" || hasAnyPrefix(a.Name, []string{"en", "eth"})
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// typeOrder is the presentation order of types.
var typeOrder = map[Type]int{
	TypeBuiltinWiFi:     0,
	TypeUSBWiFi:         1,
	TypeEthernet:        2,
	TypeMobileBroadband: 3,
	TypePhoneTether:     4,
	TypeVPN:             5,
	TypeBridge:          6,
	TypeUnknown:         7,
}

// SortInterfaces orders interfaces by type, then name.
func SortInterfaces(ifaces []Interface) {
	sort.SliceStable(ifaces, func(i, j int) bool {
		oi, oj := typeOrder[ifaces[i].Type], typeOrder[ifaces[j].Type]
		if oi != oj {
			return oi < oj
		}
		return ifaces[i].Name < ifaces[j].Name
	})
}
