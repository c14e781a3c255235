package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const iwDevOutput = `phy#1
	Interface wlx00c0ca123456
		ifindex 5
		wdev 0x100000001
		addr 00:c0:ca:12:34:56
		type monitor
		txpower 20.00 dBm
phy#0
	Unnamed/non-netdev interface
		wdev 0x2
		addr 3c:a9:f4:00:00:01
		type P2P-device
	Interface wlp2s0
		ifindex 3
		wdev 0x1
		addr 3c:a9:f4:00:00:00
		ssid HomeNet
		type managed
		channel 36 (5180 MHz), width: 80 MHz, center1: 5210 MHz
`

const phyInfoOutput = `Wiphy phy0
	wiphy index: 0
	max # scan SSIDs: 20
	Supported Ciphers:
		* WEP40 (00-0f-ac:1)
		* CCMP-128 (00-0f-ac:4)
	Available Antennas: TX 0x3 RX 0x3
	Supported interface modes:
		 * IBSS
		 * managed
		 * AP
		 * AP/VLAN
		 * monitor
	Band 1:
		Frequencies:
			* 2412 MHz [1] (22.0 dBm)
			* 2437 MHz [6] (22.0 dBm)
	Band 2:
		Frequencies:
			* 5180 MHz [36] (22.0 dBm)
			* 5260 MHz [52] (22.0 dBm) (radar detection)
	valid interface combinations:
		 * #{ managed } <= 1, #{ AP, P2P-client, P2P-GO } <= 1,
		   total <= 3, #channels <= 2
`

const phyInfoNoAP = `Wiphy phy1
	Supported interface modes:
		 * managed
		 * monitor
	Band 1:
		Frequencies:
			* 2412 MHz [1] (20.0 dBm)
	Band 2:
		Frequencies:
			* 5180.0 MHz [36] (disabled)
			* 5745.0 MHz [149] (no IR)
`

func TestParseIwDev(t *testing.T) {
	devs := parseIwDev(iwDevOutput)

	assert.Len(t, devs, 2)
	assert.Equal(t, iwDevice{Phy: "phy0", Mode: "managed", SSID: "HomeNet"}, devs["wlp2s0"])
	assert.Equal(t, iwDevice{Phy: "phy1", Mode: "monitor"}, devs["wlx00c0ca123456"])
}

func TestParsePhyInfo(t *testing.T) {
	caps := parsePhyInfo(phyInfoOutput)
	assert.True(t, caps.APMode)
	assert.True(t, caps.Band5GHz)

	caps = parsePhyInfo(phyInfoNoAP)
	assert.False(t, caps.APMode, "AP/VLAN or combinations must not count as AP")
	assert.False(t, caps.Band5GHz, "disabled and no-IR channels are not usable")
}

func TestCountStations(t *testing.T) {
	out := "Station aa:bb:cc:dd:ee:01 (on wlp2s0)\n\tinactive time:\t10 ms\nStation aa:bb:cc:dd:ee:02 (on wlp2s0)\n"
	assert.Equal(t, 2, countStations(out))
	assert.Equal(t, 0, countStations(""))
}

func TestParseNmcliDevices(t *testing.T) {
	out := "wlp2s0:connected:Home\\:Net 5G\nenp3s0:unavailable:\nlo:unmanaged:\n"
	devs := parseNmcliDevices(out)

	assert.Equal(t, nmDevice{State: "connected", Connection: "Home:Net 5G"}, devs["wlp2s0"])
	assert.Equal(t, nmDevice{State: "unavailable"}, devs["enp3s0"])
}
