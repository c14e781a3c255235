package lifecycle

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/MintHotspot/hotspot-backend-go/src/command_runner"
	"github.com/MintHotspot/hotspot-backend-go/src/inventory"
	"github.com/MintHotspot/hotspot-backend-go/src/orchestrator"
	"github.com/MintHotspot/hotspot-backend-go/src/session"
	"github.com/MintHotspot/hotspot-backend-go/src/status_publisher"
	"github.com/stretchr/testify/require"
)

const (
	controllerPID = 4100
	otherPID      = 4200
)

// fakeClock hands out timers that only fire when Advance passes them.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []fakeWaiter
}

type fakeWaiter struct {
	at time.Time
	ch chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.waiters = append(c.waiters, fakeWaiter{at: c.now.Add(d), ch: ch})
	return ch
}

func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	keep := c.waiters[:0]
	for _, w := range c.waiters {
		if w.at.After(c.now) {
			keep = append(keep, w)
			continue
		}
		w.ch <- c.now
	}
	c.waiters = keep
}

// fakeProcesses is a process table where liveness is set by the test.
type fakeProcesses struct {
	mu       sync.Mutex
	alive    map[int]bool
	signals  []string
	onSignal func(pid int, sig syscall.Signal)
}

func newFakeProcesses() *fakeProcesses {
	return &fakeProcesses{alive: make(map[int]bool)}
}

func (p *fakeProcesses) Alive(pid int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive[pid]
}

func (p *fakeProcesses) Signal(pid int, sig syscall.Signal) error {
	p.mu.Lock()
	p.signals = append(p.signals, fmt.Sprintf("%d %s", pid, sig))
	hook := p.onSignal
	p.mu.Unlock()
	if hook != nil {
		hook(pid, sig)
	}
	return nil
}

func (p *fakeProcesses) set(pid int, alive bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alive[pid] = alive
}

func (p *fakeProcesses) Signals() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.signals...)
}

// fakeInventory serves a fixed inventory and a settable upstream.
type fakeInventory struct {
	mu       sync.Mutex
	inv      *inventory.Inventory
	listErr  error
	upstream inventory.Upstream
	stations int
}

func (f *fakeInventory) List(ctx context.Context) (*inventory.Inventory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inv, f.listErr
}

func (f *fakeInventory) Upstream(ctx context.Context, mode session.RoutingMode, explicit string) (inventory.Upstream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upstream, nil
}

func (f *fakeInventory) StationCount(ctx context.Context, iface string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stations, nil
}

func (f *fakeInventory) setUpstream(up inventory.Upstream) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upstream = up
}

// observingConfigurator records the persisted phase whenever a revert
// starts.
type observingConfigurator struct {
	*orchestrator.Orchestrator
	store *StateStore

	mu     sync.Mutex
	phases []session.Phase
}

func (o *observingConfigurator) Revert(ctx context.Context, actions []session.Action, reverted func(session.Action) error) error {
	if st, err := o.store.Load(); err == nil {
		o.mu.Lock()
		o.phases = append(o.phases, st.Phase)
		o.mu.Unlock()
	}
	return o.Orchestrator.Revert(ctx, actions, reverted)
}

func (o *observingConfigurator) Phases() []session.Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]session.Phase(nil), o.phases...)
}

// cancellingRunner cancels a context when a command with prefix runs.
type cancellingRunner struct {
	*command_runner.FakeRunner
	prefix string
	cancel context.CancelFunc
}

func (r *cancellingRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	if strings.HasPrefix(name+" "+strings.Join(args, " "), r.prefix) {
		r.cancel()
	}
	return r.FakeRunner.Run(ctx, name, args...)
}

// exampleInventory has wlan0 free for the hotspot and eth0 online.
func exampleInventory() *inventory.Inventory {
	return &inventory.Inventory{
		Interfaces: []inventory.Interface{
			{
				Name: "wlan0", Type: inventory.TypeBuiltinWiFi, Up: true, Mode: "managed",
				APMode: inventory.CapabilitySupported, Band5GHz: inventory.CapabilitySupported,
			},
			{Name: "eth0", Type: inventory.TypeEthernet, Up: true, Addresses: []string{"192.168.1.20/24"}},
		},
		KernelRoute:    "eth0",
		DefaultRoutes:  []inventory.Route{{Interface: "eth0", Metric: 100}},
		NetworkManager: inventory.CapabilitySupported,
	}
}

// soleAdapterInventory has wlan0 carrying the only connection.
func soleAdapterInventory() *inventory.Inventory {
	return &inventory.Inventory{
		Interfaces: []inventory.Interface{{
			Name: "wlan0", Type: inventory.TypeBuiltinWiFi, Up: true, Mode: "managed",
			APMode: inventory.CapabilitySupported, Band5GHz: inventory.CapabilitySupported,
			Addresses: []string{"192.168.1.20/24"}, ConnectedNetwork: "HomeNet",
		}},
		KernelRoute:    "wlan0",
		DefaultRoutes:  []inventory.Route{{Interface: "wlan0", Metric: 600}},
		NetworkManager: inventory.CapabilitySupported,
	}
}

func exampleRequest() session.Request {
	return session.Request{
		SSID:              "Test",
		Passphrase:        "password1",
		HotspotInterface:  "wlan0",
		InternetInterface: "eth0",
		Band:              session.Band24GHz,
	}
}

type harness struct {
	t         *testing.T
	dir       string
	runner    *command_runner.FakeRunner
	inventory *fakeInventory
	procs     *fakeProcesses
	clock     *fakeClock
	config    *observingConfigurator
}

func newHarness(t *testing.T, inv *inventory.Inventory) *harness {
	h := &harness{
		t:      t,
		dir:    t.TempDir(),
		runner: command_runner.NewFakeRunner(),
		inventory: &fakeInventory{
			inv:      inv,
			upstream: inventory.Upstream{Interface: "eth0", Type: inventory.TypeEthernet},
			stations: 3,
		},
		procs: newFakeProcesses(),
		clock: newFakeClock(),
	}
	h.runner.Respond("sysctl -n net.ipv4.ip_forward", "0\n")
	h.config = &observingConfigurator{
		Orchestrator: orchestrator.New(h.runner, orchestrator.Settings{}),
		store:        h.store(),
	}
	return h
}

func (h *harness) store() *StateStore {
	return NewStateStore(filepath.Join(h.dir, "state.json"))
}

func (h *harness) publisher() *status_publisher.Publisher {
	return status_publisher.NewPublisher(filepath.Join(h.dir, "status.json"), filepath.Join(h.dir, "backend.pid"))
}

// manager builds a Manager acting as process pid. All managers of a
// harness share the same files, like separate invocations on one machine.
func (h *harness) manager(pid int) *Manager {
	m := New(Components{
		Store:        h.store(),
		Lock:         NewFileLock(filepath.Join(h.dir, "backend.lock")),
		Inventory:    h.inventory,
		Configurator: h.config,
		Publisher:    h.publisher(),
		Processes:    h.procs,
	}, Settings{
		LockTimeout:     2 * time.Second,
		StopGracePeriod: time.Second,
		MonitorInterval: 5 * time.Second,
	})
	m.pid = pid
	m.now = h.clock.Now
	m.after = h.clock.After
	h.procs.set(pid, true)
	return m
}

func (h *harness) state() *session.State {
	st, err := h.store().Load()
	require.NoError(h.t, err)
	return st
}

func (h *harness) status() *status_publisher.Record {
	rec, err := h.publisher().Read()
	require.NoError(h.t, err)
	return rec
}

func (h *harness) calls(prefix string) []string {
	return h.runner.CallsWithPrefix(prefix)
}

func (h *harness) waitPending(n int) {
	require.Eventually(h.t, func() bool { return h.clock.Pending() >= n },
		2*time.Second, time.Millisecond, "supervisor did not arm its timers")
}
