package inventory

import (
	"bufio"
	"errors"
	"io/fs"
	"path"
	"strconv"
	"strings"
)

// Link is the kernel's view of one network link.
type Link struct {
	Name         string
	Index        int
	Kind         string
	EncapType    string
	HardwareAddr string
	Up           bool
	Loopback     bool
	OperState    string
	Addresses    []string
}

// LinkSource reads links and routes from the kernel.
type LinkSource interface {
	Links() ([]Link, error)
	DefaultRoutes() ([]Route, error)
	// RouteGet returns the egress interface for dst.
	RouteGet(dst string) (string, error)
}

// errNotLinux is returned by the stub link source.
var errNotLinux = errors.New("netlink is only available on Linux")

// sysfsFacts are the per-interface details read from /sys.
type sysfsFacts struct {
	DevType  string
	Driver   string
	Bus      string
	Wireless bool
	Phy      string
	RFKill   RFKill
}

// readSysfs gathers sysfs facts for name. fsys is rooted at /sys.
func readSysfs(fsys fs.FS, name string) (sysfsFacts, error) {
	var f sysfsFacts
	base := path.Join("class/net", name)

	ev, err := readUevent(fsys, path.Join(base, "uevent"))
	if err != nil {
		return f, err
	}
	f.DevType = ev["DEVTYPE"]

	// Virtual links have no device directory.
	if dev, err := readUevent(fsys, path.Join(base, "device/uevent")); err == nil {
		f.Driver = dev["DRIVER"]
		if alias := dev["MODALIAS"]; alias != "" {
			f.Bus, _, _ = strings.Cut(alias, ":")
		}
		if f.Bus == "" && dev["PCI_SLOT_NAME"] != "" {
			f.Bus = "pci"
		}
		if f.Bus == "of" {
			f.Bus = "platform"
		}
	}

	phyDir := path.Join(base, "phy80211")
	if b, err := fs.ReadFile(fsys, path.Join(phyDir, "name")); err == nil {
		f.Wireless = true
		f.Phy = strings.TrimSpace(string(b))
		f.RFKill = readRFKill(fsys, phyDir)
	}
	return f, nil
}

func readRFKill(fsys fs.FS, phyDir string) RFKill {
	var state RFKill
	entries, err := fs.ReadDir(fsys, phyDir)
	if err != nil {
		return state
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "rfkill") {
			continue
		}
		dir := path.Join(phyDir, e.Name())
		state.Soft = state.Soft || readFlag(fsys, path.Join(dir, "soft"))
		state.Hard = state.Hard || readFlag(fsys, path.Join(dir, "hard"))
	}
	return state
}

func readFlag(fsys fs.FS, p string) bool {
	b, err := fs.ReadFile(fsys, p)
	if err != nil {
		return false
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(b)))
	return err == nil && v != 0
}

func readUevent(fsys fs.FS, p string) (map[string]string, error) {
	data, err := fs.ReadFile(fsys, p)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	sc := bufio.NewScanner(strings.NewReader(string(data)))
	for sc.Scan() {
		if k, v, ok := strings.Cut(sc.Text(), "="); ok {
			out[k] = v
		}
	}
	return out, sc.Err()
}
