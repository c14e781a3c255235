package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/MintHotspot/hotspot-backend-go/src/orchestrator"
	"github.com/MintHotspot/hotspot-backend-go/src/session"
	"github.com/sirupsen/logrus"
)

const lockRetryDelay = time.Second

// Supervise keeps an Active session until its auto-off deadline passes,
// ctx is cancelled or another invocation ends it. While Active it follows
// upstream changes and publishes the client count. Cancelling ctx stops
// the hotspot before Supervise returns.
//
// Every wake-up re-reads the persisted state; a timer that fires for a
// session that has already ended does nothing.
func (m *Manager) Supervise(ctx context.Context, sessionID string) error {
	st, err := m.store.Load()
	if err != nil {
		return err
	}
	if st.SessionID != sessionID || st.Phase != session.PhaseActive {
		return nil
	}

	log := logger.WithField("session", sessionID)
	var timer <-chan time.Time
	if st.Deadline != nil {
		log.WithField("deadline", st.Deadline.Format(time.RFC3339)).Info("Auto-off timer armed")
		timer = m.after(st.Deadline.Sub(m.now()))
	}
	tick := m.after(m.settings.MonitorInterval)

	for {
		select {
		case <-ctx.Done():
			log.Info("Termination requested, stopping hotspot")
			return m.stopSession(context.WithoutCancel(ctx), sessionID, "Hotspot stopped")

		case <-timer:
			next, ended := m.expire(ctx, sessionID)
			if ended {
				return nil
			}
			timer = nil
			if next > 0 {
				timer = m.after(next)
			}

		case <-tick:
			if !m.monitor(ctx, sessionID) {
				log.Info("Session ended elsewhere, supervisor exiting")
				return nil
			}
			tick = m.after(m.settings.MonitorInterval)
		}
	}
}

// stopSession tears down sessionID if it is still the live session.
func (m *Manager) stopSession(ctx context.Context, sessionID, message string) error {
	unlock, err := m.acquire(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	st, err := m.store.Load()
	if err != nil {
		return err
	}
	if st.SessionID != sessionID || !st.Phase.Transient() {
		return nil
	}
	m.teardown(ctx, st, message)
	return nil
}

// expire handles the auto-off timer. It returns how long to wait before
// checking again, or ended when the session is over.
func (m *Manager) expire(ctx context.Context, sessionID string) (time.Duration, bool) {
	log := logger.WithField("session", sessionID)

	unlock, err := m.acquire(ctx)
	if err != nil {
		log.WithError(err).Warn("Auto-off check could not take the lock, retrying")
		return lockRetryDelay, false
	}
	defer unlock()

	st, err := m.store.Load()
	if err != nil {
		log.WithError(err).Warn("Auto-off check could not read state, retrying")
		return lockRetryDelay, false
	}
	if st.SessionID != sessionID || st.Phase != session.PhaseActive {
		log.Debug("Auto-off timer fired for a finished session, ignoring")
		return 0, true
	}
	if st.Deadline == nil {
		return 0, false
	}
	if now := m.now(); now.Before(*st.Deadline) {
		return st.Deadline.Sub(now), false
	}

	log.Info("Auto-off deadline reached, stopping hotspot")
	m.teardown(context.WithoutCancel(ctx), st, "Auto-off timer expired, hotspot stopped")
	return 0, true
}

// monitor refreshes upstream routing and the published client count. It
// returns false once sessionID is no longer the Active session. Failing
// to take the lock says nothing about the session, so the caller keeps
// supervising and sees a cancelled ctx on its next select.
func (m *Manager) monitor(ctx context.Context, sessionID string) bool {
	unlock, err := m.acquire(ctx)
	if err != nil {
		logger.WithError(err).WithField("session", sessionID).Debug("Monitor tick skipped")
		return true
	}
	defer unlock()

	st, err := m.store.Load()
	if err != nil {
		logger.WithError(err).Warn("Failed to read session state")
		return true
	}
	if st.SessionID != sessionID || st.Phase != session.PhaseActive {
		return false
	}

	m.followUpstream(ctx, st)

	var clients *int
	if st.Request != nil && st.Request.HotspotInterface != "" {
		if n, err := m.inventory.StationCount(ctx, st.Request.HotspotInterface); err == nil {
			clients = &n
		} else {
			logger.WithError(err).Debug("Station count unavailable")
		}
	}
	m.publish(st, activeMessage(st), clients)
	return true
}

// followUpstream retargets NAT when the internet source has changed.
func (m *Manager) followUpstream(ctx context.Context, st *session.State) {
	idx := st.FindAction(session.ActionNAT)
	if idx < 0 || st.Request == nil {
		return
	}
	up, err := m.inventory.Upstream(ctx, st.Request.Routing, st.Request.InternetInterface)
	if err != nil {
		logger.WithError(err).Debug("Upstream check failed")
		return
	}

	current := st.Actions[idx]
	if orchestrator.ForwardTarget(current, up) == orchestrator.UpstreamOf(current) {
		return
	}

	log := logger.WithFields(logrus.Fields{
		"from": orchestrator.UpstreamOf(current),
		"to":   up.Interface,
	})
	updated, err := m.config.Retarget(ctx, current, up)
	if err != nil {
		log.WithError(err).Warn("Failed to follow upstream change")
		return
	}
	st.Actions[idx] = updated
	if err := m.save(st); err != nil {
		return
	}
	log.Info("Hotspot traffic now follows the new upstream")
}

func activeMessage(st *session.State) string {
	if st.Request == nil {
		return "Hotspot is active"
	}
	return fmt.Sprintf("Hotspot %q is active on %s", st.Request.SSID, st.Request.HotspotInterface)
}
