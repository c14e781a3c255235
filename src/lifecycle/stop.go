package lifecycle

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/MintHotspot/hotspot-backend-go/src/session"
	"github.com/sirupsen/logrus"
)

// Stop ends the session. A live controller in another process is asked to
// stop itself first and killed if it does not exit in time; whatever is
// left in the action log is then reverted here. Stopping an Idle machine
// is a successful no-op.
func (m *Manager) Stop(ctx context.Context) (*Result, error) {
	signalled, err := m.terminateController(ctx)
	if err != nil {
		return nil, err
	}

	unlock, err := m.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	st, err := m.store.Load()
	if err != nil {
		return nil, err
	}

	switch {
	case st.Phase == session.PhaseIdle:
		if signalled {
			return &Result{Outcome: OutcomeStopped, Message: "Hotspot stopped", State: st, Warnings: st.Warnings}, nil
		}
		logger.Info("Hotspot is not running, nothing to stop")
		return &Result{Outcome: OutcomeNotRunning, Message: "hotspot is not running", State: st}, nil

	case st.Phase.Transient() && st.PID != m.pid && m.procs.Alive(st.PID):
		return nil, session.NewError(session.ConfigurationError, "controller_unresponsive",
			fmt.Sprintf("hotspot process %d did not exit", st.PID), nil)
	}

	cleanup := context.WithoutCancel(ctx)
	var warnings []string
	if st.Phase.Transient() && st.PID != m.pid {
		warnings = m.recoverStale(cleanup, st)
	}
	warnings = append(warnings, m.teardown(cleanup, st, "Hotspot stopped")...)
	return &Result{Outcome: OutcomeStopped, Message: "Hotspot stopped", State: st, Warnings: warnings}, nil
}

// terminateController signals the recorded controller when it is another
// live process and waits for it to exit. The state is peeked at without
// the lock because the controller needs the lock to clean up.
func (m *Manager) terminateController(ctx context.Context) (bool, error) {
	st, err := m.store.Load()
	if err != nil {
		return false, err
	}
	if !st.Phase.Transient() || st.PID <= 0 || st.PID == m.pid || !m.procs.Alive(st.PID) {
		return false, nil
	}

	log := logger.WithFields(logrus.Fields{"pid": st.PID, "session": st.SessionID})
	log.Info("Asking hotspot process to stop")
	if err := m.procs.Signal(st.PID, syscall.SIGTERM); err != nil {
		log.WithError(err).Warn("Failed to signal hotspot process")
	}
	if m.waitExit(ctx, st.PID, m.settings.StopGracePeriod) {
		return true, nil
	}
	if ctx.Err() != nil {
		return false, session.NewError(session.ConfigurationError, "interrupted",
			"interrupted while waiting for the hotspot process to exit", ctx.Err())
	}

	log.WithField("grace_period", m.settings.StopGracePeriod).Warn("Hotspot process did not exit in time, killing it")
	if err := m.procs.Signal(st.PID, syscall.SIGKILL); err != nil {
		log.WithError(err).Warn("Failed to kill hotspot process")
	}
	m.waitExit(ctx, st.PID, killWait)
	return true, nil
}

// waitExit polls until pid is gone, timeout elapses or ctx is done.
func (m *Manager) waitExit(ctx context.Context, pid int, timeout time.Duration) bool {
	for waited := time.Duration(0); ; waited += exitPollInterval {
		if !m.procs.Alive(pid) {
			return true
		}
		if waited >= timeout {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-m.after(exitPollInterval):
		}
	}
}
