// Package lifecycle owns the hotspot session across independent process
// invocations: it serializes transitions on a file lock, persists the
// action log, runs the auto-off timer and recovers after crashes.
package lifecycle

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/MintHotspot/hotspot-backend-go/src/inventory"
	"github.com/MintHotspot/hotspot-backend-go/src/orchestrator"
	"github.com/MintHotspot/hotspot-backend-go/src/session"
	"github.com/MintHotspot/hotspot-backend-go/src/status_publisher"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Module-level logger with pre-configured module field
var logger = logrus.WithField("module", "lifecycle")

// GetLogger returns a logger instance for the lifecycle module
func GetLogger() *logrus.Entry {
	return logger
}

const (
	DefaultLockTimeout     = 90 * time.Second
	DefaultStopGracePeriod = 10 * time.Second
	DefaultMonitorInterval = 5 * time.Second

	exitPollInterval = 100 * time.Millisecond
	killWait         = 2 * time.Second
)

// Settings tune timing.
type Settings struct {
	LockTimeout     time.Duration
	StopGracePeriod time.Duration
	MonitorInterval time.Duration
}

// Components are the collaborators a Manager drives.
type Components struct {
	Store        *StateStore
	Lock         Locker
	Inventory    inventory.Provider
	Configurator orchestrator.Configurator
	Publisher    *status_publisher.Publisher
	Processes    status_publisher.ProcessTable
}

// Outcome summarizes what a Start or Stop did.
type Outcome string

const (
	OutcomeStarted        Outcome = "started"
	OutcomeAlreadyRunning Outcome = "already_running"
	OutcomeStopped        Outcome = "stopped"
	OutcomeNotRunning     Outcome = "not_running"
)

// Result is returned by successful transitions.
type Result struct {
	Outcome  Outcome
	Message  string
	State    *session.State
	Warnings []string
}

// Snapshot is a read-only view of the session for status queries.
type Snapshot struct {
	State           *session.State
	ControllerAlive bool
	// Stale is set when a transient phase is recorded but its controller
	// is gone.
	Stale bool
}

// Manager runs the lifecycle state machine.
type Manager struct {
	store     *StateStore
	lock      Locker
	inventory inventory.Provider
	config    orchestrator.Configurator
	publisher *status_publisher.Publisher
	procs     status_publisher.ProcessTable
	settings  Settings

	pid   int
	now   func() time.Time
	after func(time.Duration) <-chan time.Time
	newID func() string
}

// New creates a Manager for the current process.
func New(c Components, settings Settings) *Manager {
	if settings.LockTimeout <= 0 {
		settings.LockTimeout = DefaultLockTimeout
	}
	if settings.StopGracePeriod <= 0 {
		settings.StopGracePeriod = DefaultStopGracePeriod
	}
	if settings.MonitorInterval <= 0 {
		settings.MonitorInterval = DefaultMonitorInterval
	}
	if c.Processes == nil {
		c.Processes = status_publisher.SystemProcesses{}
	}
	return &Manager{
		store:     c.Store,
		lock:      c.Lock,
		inventory: c.Inventory,
		config:    c.Configurator,
		publisher: c.Publisher,
		procs:     c.Processes,
		settings:  settings,
		pid:       os.Getpid(),
		now:       time.Now,
		after:     time.After,
		newID:     uuid.NewString,
	}
}

// Status reports the persisted session and whether its controller lives.
// It takes no lock and changes nothing.
func (m *Manager) Status() (*Snapshot, error) {
	st, err := m.store.Load()
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{State: st}
	if st.PID > 0 {
		snap.ControllerAlive = m.controllerAlive(st)
	}
	snap.Stale = st.Phase.Transient() && !snap.ControllerAlive
	return snap, nil
}

// acquire takes the transition lock, bounded by the lock timeout.
func (m *Manager) acquire(ctx context.Context) (func(), error) {
	lctx, cancel := context.WithTimeout(ctx, m.settings.LockTimeout)
	defer cancel()

	unlock, err := m.lock.Lock(lctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, session.NewError(session.ConfigurationError, "interrupted",
				"interrupted while waiting for another hotspot operation", ctx.Err())
		}
		return nil, session.NewError(session.ConfigurationError, "lock_timeout",
			"another hotspot operation is still in progress", err)
	}
	return unlock, nil
}

func (m *Manager) controllerAlive(st *session.State) bool {
	if st.PID <= 0 {
		return false
	}
	return st.PID == m.pid || m.procs.Alive(st.PID)
}

func (m *Manager) save(st *session.State) error {
	if err := m.store.Save(st); err != nil {
		logger.WithError(err).Error("Failed to persist session state")
		return session.NewError(session.ConfigurationError, "state_write_failed",
			"failed to persist session state", err)
	}
	return nil
}

// publish writes the status record for st. Failures are logged only; the
// persisted state stays authoritative.
func (m *Manager) publish(st *session.State, message string, clients *int) {
	rec := status_publisher.Record{
		Phase:     st.Phase,
		Message:   message,
		Timestamp: m.now(),
		SessionID: st.SessionID,
		PID:       st.PID,
		Deadline:  st.Deadline,
		Warnings:  st.Warnings,
		Clients:   clients,
	}
	if st.Request != nil {
		rec.Interface = st.Request.HotspotInterface
		rec.SSID = st.Request.SSID
	}
	if i := st.FindAction(session.ActionNAT); i >= 0 {
		rec.Upstream = orchestrator.UpstreamOf(st.Actions[i])
	}
	if st.Phase == session.PhaseError && st.LastError != nil {
		rec.ErrorCode = st.LastError.Code
	}
	if err := m.publisher.Publish(rec); err != nil {
		logger.WithError(err).Warn("Failed to publish status")
	}
}

// revertLog undoes st's action log newest-first, trimming the persisted
// log as each action is handled. The log is empty afterwards even if some
// inverses failed; those failures come back as warnings.
func (m *Manager) revertLog(ctx context.Context, st *session.State) []string {
	if len(st.Actions) == 0 {
		return nil
	}
	actions := append([]session.Action(nil), st.Actions...)
	err := m.config.Revert(ctx, actions, func(session.Action) error {
		st.Actions = st.Actions[:len(st.Actions)-1]
		return m.store.Save(st)
	})
	st.Actions = []session.Action{}
	if err == nil {
		return nil
	}
	logger.WithError(err).Warn("Some changes could not be reverted")
	return []string{"cleanup incomplete: " + strings.ReplaceAll(err.Error(), "\n", "; ")}
}

// recoverStale marks a session whose controller died as Error and reverts
// what it left behind.
func (m *Manager) recoverStale(ctx context.Context, st *session.State) []string {
	logger.WithFields(logrus.Fields{
		"pid":     st.PID,
		"phase":   st.Phase,
		"actions": len(st.Actions),
	}).Warn("Previous hotspot session ended without cleanup, recovering")

	st.Phase = session.PhaseError
	st.LastError = session.NewError(session.ConfigurationError, "stale_session",
		fmt.Sprintf("hotspot process %d ended without cleaning up", st.PID), nil).Record()
	_ = m.save(st)
	m.publish(st, st.LastError.Message, nil)

	warnings := m.revertLog(ctx, st)
	_ = m.publisher.RemovePID(st.PID)
	return warnings
}

// finishIdle resets st to Idle and publishes message.
func (m *Manager) finishIdle(st *session.State, message string, warnings []string) {
	controller := st.PID

	st.Phase = session.PhaseIdle
	st.SessionID = ""
	st.PID = 0
	st.Deadline = nil
	st.Actions = []session.Action{}
	st.LastError = nil
	st.Warnings = warnings
	_ = m.save(st)
	m.publish(st, message, nil)

	_ = m.publisher.RemovePID(controller)
	logger.WithField("message", message).Info("Hotspot session ended")
}

// teardown stops the session in st under the lock and returns revert
// warnings.
func (m *Manager) teardown(ctx context.Context, st *session.State, message string) []string {
	if len(st.Actions) > 0 {
		st.Phase = session.PhaseStopping
		_ = m.save(st)
		m.publish(st, "Stopping hotspot", nil)
	}
	warnings := m.revertLog(ctx, st)
	m.finishIdle(st, message, warnings)
	return warnings
}
