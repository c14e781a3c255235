package inventory

import (
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		attrs Attributes
		want  Type
	}{
		{"pci wifi", Attributes{Name: "wlp2s0", LinkKind: "device", EncapType: "ether", DevType: "wlan", Driver: "iwlwifi", Bus: "pci", Wireless: true}, TypeBuiltinWiFi},
		{"sdio wifi", Attributes{Name: "wlan0", LinkKind: "device", DevType: "wlan", Driver: "brcmfmac", Bus: "sdio", Wireless: true}, TypeBuiltinWiFi},
		{"usb wifi", Attributes{Name: "wlx00c0ca123456", LinkKind: "device", DevType: "wlan", Driver: "rt2800usb", Bus: "usb", Wireless: true}, TypeUSBWiFi},
		{"pci ethernet", Attributes{Name: "enp3s0", LinkKind: "device", EncapType: "ether", Driver: "r8169", Bus: "pci"}, TypeEthernet},
		{"usb ethernet dongle", Attributes{Name: "enx00e04c680001", LinkKind: "device", EncapType: "ether", Driver: "r8152", Bus: "usb"}, TypeEthernet},
		{"android rndis", Attributes{Name: "usb0", LinkKind: "device", EncapType: "ether", Driver: "rndis_host", Bus: "usb"}, TypePhoneTether},
		{"iphone", Attributes{Name: "enx8e4f1a2b3c4d", LinkKind: "device", Driver: "ipheth", Bus: "usb"}, TypePhoneTether},
		{"qmi modem", Attributes{Name: "wwan0", LinkKind: "device", DevType: "wwan", Driver: "qmi_wwan", Bus: "usb"}, TypeMobileBroadband},
		{"mbim by driver", Attributes{Name: "wwp0s20f0u6i12", LinkKind: "device", Driver: "cdc_mbim", Bus: "usb"}, TypeMobileBroadband},
		{"openvpn tun", Attributes{Name: "tun0", LinkKind: "tuntap", EncapType: "none"}, TypeVPN},
		{"wireguard", Attributes{Name: "wg0", LinkKind: "wireguard", DevType: "wireguard"}, TypeVPN},
		{"wireguard renamed", Attributes{Name: "mullvad", LinkKind: "wireguard"}, TypeVPN},
		{"ppp", Attributes{Name: "ppp0", LinkKind: "ppp", EncapType: "ppp"}, TypeVPN},
		{"docker bridge", Attributes{Name: "docker0", LinkKind: "bridge", DevType: "bridge"}, TypeBridge},
		{"veth", Attributes{Name: "veth1a2b", LinkKind: "veth", EncapType: "ether"}, TypeUnknown},
		{"dummy", Attributes{Name: "dummy0", LinkKind: "dummy", EncapType: "ether"}, TypeUnknown},
		{"nothing known", Attributes{Name: "x0"}, TypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.attrs); got != tt.want {
				t.Errorf("Classify(%+v) = %s, want %s", tt.attrs, got, tt.want)
			}
		})
	}
}

func TestClassifyIsPure(t *testing.T) {
	a := Attributes{Name: "wlp2s0", LinkKind: "device", DevType: "wlan", Bus: "pci", Wireless: true}
	first := Classify(a)
	for i := 0; i < 10; i++ {
		if got := Classify(a); got != first {
			t.Fatalf("Classify returned %s then %s for the same attributes", first, got)
		}
	}
}

func TestSortInterfaces(t *testing.T) {
	ifaces := []Interface{
		{Name: "tun0", Type: TypeVPN},
		{Name: "enp3s0", Type: TypeEthernet},
		{Name: "wlx1", Type: TypeUSBWiFi},
		{Name: "wlp2s0", Type: TypeBuiltinWiFi},
		{Name: "eth1", Type: TypeEthernet},
		{Name: "veth0", Type: TypeUnknown},
	}
	SortInterfaces(ifaces)

	want := []string{"wlp2s0", "wlx1", "enp3s0", "eth1", "tun0", "veth0"}
	for i, name := range want {
		if ifaces[i].Name != name {
			t.Errorf("position %d: got %s, want %s", i, ifaces[i].Name, name)
		}
	}
}
