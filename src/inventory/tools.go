package inventory

import (
	"bufio"
	"strconv"
	"strings"
)

// iwDevice is one entry of `iw dev`.
type iwDevice struct {
	Phy  string
	Mode string
	SSID string
}

// parseIwDev parses `iw dev` output into a map keyed by interface name.
func parseIwDev(out string) map[string]iwDevice {
	devices := make(map[string]iwDevice)
	var (
		phy     string
		current string
	)
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "phy#"):
			phy = "phy" + strings.TrimPrefix(line, "phy#")
			current = ""
		case strings.HasPrefix(line, "Interface "):
			current = strings.TrimSpace(strings.TrimPrefix(line, "Interface "))
			devices[current] = iwDevice{Phy: phy}
		case current != "" && strings.HasPrefix(line, "type "):
			d := devices[current]
			d.Mode = strings.TrimSpace(strings.TrimPrefix(line, "type "))
			devices[current] = d
		case current != "" && strings.HasPrefix(line, "ssid "):
			d := devices[current]
			d.SSID = strings.TrimSpace(strings.TrimPrefix(line, "ssid "))
			devices[current] = d
		}
	}
	return devices
}

// phyCapabilities is what `iw phy <phy> info` tells us.
type phyCapabilities struct {
	APMode   bool
	Band5GHz bool
}

// parsePhyInfo extracts AP mode support and usable 5 GHz channels.
func parsePhyInfo(out string) phyCapabilities {
	var caps phyCapabilities
	inModes := false
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		raw := sc.Text()
		line := strings.TrimSpace(raw)

		if strings.HasPrefix(line, "Supported interface modes:") {
			inModes = true
			continue
		}
		if inModes {
			if strings.HasPrefix(line, "* ") {
				if strings.TrimSpace(strings.TrimPrefix(line, "* ")) == "AP" {
					caps.APMode = true
				}
				continue
			}
			inModes = false
		}

		if mhz, ok := frequencyLine(line); ok && mhz >= 4900 && mhz < 5925 {
			if !strings.Contains(line, "disabled") && !strings.Contains(line, "no IR") {
				caps.Band5GHz = true
			}
		}
	}
	return caps
}

// frequencyLine parses "* 5180 MHz [36] (22.0 dBm)" and the older
// "* 5180.0 MHz" form.
func frequencyLine(line string) (int, bool) {
	if !strings.HasPrefix(line, "* ") {
		return 0, false
	}
	fields := strings.Fields(strings.TrimPrefix(line, "* "))
	if len(fields) < 2 || fields[1] != "MHz" {
		return 0, false
	}
	f, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, false
	}
	return int(f), true
}

// countStations counts associated clients in `iw dev <if> station dump`.
func countStations(out string) int {
	n := 0
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		if strings.HasPrefix(sc.Text(), "Station ") {
			n++
		}
	}
	return n
}

// nmDevice is one row of `nmcli -t -f DEVICE,STATE,CONNECTION device`.
type nmDevice struct {
	State      string
	Connection string
}

// parseNmcliDevices parses terse nmcli device output.
func parseNmcliDevices(out string) map[string]nmDevice {
	devices := make(map[string]nmDevice)
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		fields := splitTerse(sc.Text())
		if len(fields) < 3 || fields[0] == "" {
			continue
		}
		devices[fields[0]] = nmDevice{State: fields[1], Connection: fields[2]}
	}
	return devices
}

// splitTerse splits an nmcli terse line on unescaped colons.
func splitTerse(line string) []string {
	var (
		fields []string
		cur    strings.Builder
	)
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '\\' && i+1 < len(line):
			i++
			cur.WriteByte(line[i])
		case c == ':':
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(fields, cur.String())
}
