// Package inventory enumerates and classifies the machine's network
// interfaces and works out which one currently carries internet traffic.
package inventory

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/MintHotspot/hotspot-backend-go/src/command_runner"
	"github.com/MintHotspot/hotspot-backend-go/src/session"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Module-level logger with pre-configured module field
var logger = logrus.WithField("module", "inventory")

// GetLogger returns a logger instance for the inventory module
func GetLogger() *logrus.Entry {
	return logger
}

// ProbeDestination is the address whose kernel route decides the upstream.
const ProbeDestination = "1.1.1.1"

const defaultProbeConcurrency = 4

// Provider is what the rest of the backend needs from the inventory.
type Provider interface {
	List(ctx context.Context) (*Inventory, error)
	Upstream(ctx context.Context, mode session.RoutingMode, explicit string) (Upstream, error)
	StationCount(ctx context.Context, iface string) (int, error)
}

// Upstream is a resolved internet source.
type Upstream struct {
	Interface string `json:"interface,omitempty"`
	Type      Type   `json:"type,omitempty"`
}

// Tunnel reports whether the upstream is a VPN tunnel.
func (u Upstream) Tunnel() bool {
	return u.Type == TypeVPN
}

// Lister builds inventories from the kernel, sysfs, iw and nmcli.
type Lister struct {
	links       LinkSource
	sysfs       fs.FS
	runner      command_runner.Runner
	concurrency int
	now         func() time.Time
}

var _ Provider = (*Lister)(nil)

// NewLister wires a Lister from its sources. sysfs must be rooted at /sys.
func NewLister(links LinkSource, sysfs fs.FS, runner command_runner.Runner) *Lister {
	return &Lister{
		links:       links,
		sysfs:       sysfs,
		runner:      runner,
		concurrency: defaultProbeConcurrency,
		now:         time.Now,
	}
}

// NewSystemLister returns a Lister reading the live system.
func NewSystemLister(runner command_runner.Runner) *Lister {
	return NewLister(NewNetlinkSource(), os.DirFS("/sys"), runner)
}

// List enumerates interfaces. Only a failure to list links at all is an
// error; per-interface probe failures degrade that interface to unknown.
func (l *Lister) List(ctx context.Context) (*Inventory, error) {
	links, err := l.links.Links()
	if err != nil {
		return nil, session.NewError(session.ConfigurationError, "inventory_unavailable", "failed to enumerate interfaces", err)
	}

	iwDevs := l.iwDevices(ctx)
	nmDevs, nmState := l.nmDevices(ctx)

	var (
		mu       sync.Mutex
		ifaces   = make([]Interface, 0, len(links))
		phyCache = make(map[string]*phyCapabilities)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for _, link := range links {
		if skipLink(link) {
			continue
		}
		link := link
		g.Go(func() error {
			iface := l.probe(gctx, link, iwDevs, nmDevs, phyCache, &mu)
			mu.Lock()
			ifaces = append(ifaces, iface)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	SortInterfaces(ifaces)

	inv := &Inventory{
		Interfaces:     ifaces,
		NetworkManager: nmState,
		CollectedAt:    l.now(),
	}
	inv.KernelRoute, inv.DefaultRoutes = l.routes()

	logger.WithFields(logrus.Fields{
		"interfaces":   len(inv.Interfaces),
		"kernel_route": inv.KernelRoute,
	}).Debug("Inventory collected")
	return inv, nil
}

func skipLink(link Link) bool {
	return link.Loopback || link.Name == "lo" || strings.HasPrefix(link.Name, "p2p-dev-")
}

func (l *Lister) probe(ctx context.Context, link Link, iwDevs map[string]iwDevice, nmDevs map[string]nmDevice,
	phyCache map[string]*phyCapabilities, mu *sync.Mutex) Interface {

	iface := Interface{
		Name:      link.Name,
		Type:      TypeUnknown,
		MAC:       link.HardwareAddr,
		Up:        link.Up,
		OperState: link.OperState,
		Addresses: link.Addresses,
		APMode:    CapabilityUnknown,
		Band5GHz:  CapabilityUnknown,
	}
	if dev, ok := nmDevs[link.Name]; ok && strings.HasPrefix(dev.State, "connected") {
		iface.ConnectedNetwork = dev.Connection
	}

	facts, err := readSysfs(l.sysfs, link.Name)
	if err != nil {
		iface.ProbeError = err.Error()
		logger.WithError(err).WithField("interface", link.Name).Warn("Driver query failed, reporting interface as unknown")
		return iface
	}

	iface.Driver = facts.Driver
	iface.Bus = facts.Bus
	iface.Phy = facts.Phy
	iface.RFKill = facts.RFKill
	iface.Type = Classify(Attributes{
		Name:      link.Name,
		LinkKind:  link.Kind,
		EncapType: link.EncapType,
		DevType:   facts.DevType,
		Driver:    facts.Driver,
		Bus:       facts.Bus,
		Wireless:  facts.Wireless,
	})
	if !iface.Wireless() {
		return iface
	}

	if dev, ok := iwDevs[link.Name]; ok {
		iface.Mode = dev.Mode
		if iface.Phy == "" {
			iface.Phy = dev.Phy
		}
	}
	if iface.Phy == "" {
		return iface
	}

	mu.Lock()
	caps, cached := phyCache[iface.Phy]
	mu.Unlock()
	if !cached {
		out, err := l.runner.Run(ctx, "iw", "phy", iface.Phy, "info")
		if err != nil {
			logger.WithError(err).WithField("phy", iface.Phy).Warn("Capability query failed")
			iface.ProbeError = err.Error()
		} else {
			parsed := parsePhyInfo(out)
			caps = &parsed
		}
		mu.Lock()
		phyCache[iface.Phy] = caps
		mu.Unlock()
	}
	if caps != nil {
		iface.APMode = capabilityOf(caps.APMode)
		iface.Band5GHz = capabilityOf(caps.Band5GHz)
	}
	return iface
}

func (l *Lister) iwDevices(ctx context.Context) map[string]iwDevice {
	out, err := l.runner.Run(ctx, "iw", "dev")
	if err != nil {
		logger.WithError(err).Debug("iw dev failed")
		return map[string]iwDevice{}
	}
	return parseIwDev(out)
}

func (l *Lister) nmDevices(ctx context.Context) (map[string]nmDevice, Capability) {
	running, err := l.runner.Run(ctx, "nmcli", "-t", "-f", "RUNNING", "general")
	if err != nil {
		logger.WithError(err).Debug("NetworkManager status query failed")
		return map[string]nmDevice{}, CapabilityUnsupported
	}
	state := capabilityOf(strings.TrimSpace(running) == "running")

	out, err := l.runner.Run(ctx, "nmcli", "-t", "-f", "DEVICE,STATE,CONNECTION", "device")
	if err != nil {
		logger.WithError(err).Debug("nmcli device query failed")
		return map[string]nmDevice{}, state
	}
	return parseNmcliDevices(out), state
}

func (l *Lister) routes() (string, []Route) {
	kernel, err := l.links.RouteGet(ProbeDestination)
	if err != nil {
		logger.WithError(err).Debug("Route lookup failed")
	}
	defaults, err := l.links.DefaultRoutes()
	if err != nil {
		logger.WithError(err).Debug("Default route listing failed")
	}
	if kernel == "" && len(defaults) > 0 {
		kernel = defaults[0].Interface
	}
	return kernel, defaults
}

// Upstream resolves the internet source without probing wireless
// capabilities; the supervisor calls it periodically.
func (l *Lister) Upstream(ctx context.Context, mode session.RoutingMode, explicit string) (Upstream, error) {
	links, err := l.links.Links()
	if err != nil {
		return Upstream{}, fmt.Errorf("failed to list links: %w", err)
	}
	inv := &Inventory{}
	for _, link := range links {
		if skipLink(link) {
			continue
		}
		iface := Interface{Name: link.Name, Up: link.Up, Addresses: link.Addresses, Type: TypeUnknown}
		if facts, err := readSysfs(l.sysfs, link.Name); err == nil {
			iface.Type = Classify(Attributes{
				Name: link.Name, LinkKind: link.Kind, EncapType: link.EncapType,
				DevType: facts.DevType, Driver: facts.Driver, Bus: facts.Bus, Wireless: facts.Wireless,
			})
		}
		inv.Interfaces = append(inv.Interfaces, iface)
	}
	inv.KernelRoute, inv.DefaultRoutes = l.routes()
	return inv.ResolveUpstream(mode, explicit), nil
}

// StationCount returns the number of clients associated with iface.
func (l *Lister) StationCount(ctx context.Context, iface string) (int, error) {
	out, err := l.runner.Run(ctx, "iw", "dev", iface, "station", "dump")
	if err != nil {
		return 0, err
	}
	return countStations(out), nil
}

// ResolveUpstream picks the internet source for mode. An explicit choice
// always wins. The result is empty when nothing qualifies.
func (inv *Inventory) ResolveUpstream(mode session.RoutingMode, explicit string) Upstream {
	pick := func(name string) Upstream {
		return Upstream{Interface: name, Type: inv.TypeOf(name)}
	}
	if explicit != "" {
		return pick(explicit)
	}

	switch mode {
	case session.RoutingVPN:
		if inv.KernelRoute != "" && inv.TypeOf(inv.KernelRoute) == TypeVPN {
			return pick(inv.KernelRoute)
		}
		for _, r := range inv.DefaultRoutes {
			if inv.TypeOf(r.Interface) == TypeVPN {
				return pick(r.Interface)
			}
		}
		return Upstream{}
	case session.RoutingExcludeVPN:
		if inv.KernelRoute != "" && inv.TypeOf(inv.KernelRoute) != TypeVPN {
			return pick(inv.KernelRoute)
		}
		for _, r := range inv.DefaultRoutes {
			if inv.TypeOf(r.Interface) != TypeVPN {
				return pick(r.Interface)
			}
		}
		return Upstream{}
	}

	if inv.KernelRoute != "" {
		return pick(inv.KernelRoute)
	}
	return Upstream{}
}

// SelectHotspotInterface picks an AP-capable Wi-Fi interface that does not
// carry the upstream, falling back to any Wi-Fi interface.
func (inv *Inventory) SelectHotspotInterface(upstream string) (Interface, bool) {
	var fallback *Interface
	for i := range inv.Interfaces {
		iface := inv.Interfaces[i]
		if !iface.Wireless() {
			continue
		}
		if iface.Name != upstream && iface.APMode != CapabilityUnsupported && !iface.RFKill.Blocked() {
			return iface, true
		}
		if fallback == nil {
			fallback = &inv.Interfaces[i]
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return Interface{}, false
}
