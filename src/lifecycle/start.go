package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/MintHotspot/hotspot-backend-go/src/inventory"
	"github.com/MintHotspot/hotspot-backend-go/src/orchestrator"
	"github.com/MintHotspot/hotspot-backend-go/src/safety"
	"github.com/MintHotspot/hotspot-backend-go/src/session"
	"github.com/sirupsen/logrus"
)

// Check runs validation for req against a fresh inventory without
// touching any state.
func (m *Manager) Check(ctx context.Context, req session.Request) (*safety.Report, *inventory.Inventory, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}
	inv, err := m.inventory.List(ctx)
	if err != nil {
		return nil, nil, err
	}
	return safety.Validate(req, inv), inv, nil
}

// Start moves the machine from Idle to Active for req. A running session
// is reported, never replaced. Leftovers of a crashed or failed session
// are reverted first.
func (m *Manager) Start(ctx context.Context, req session.Request) (*Result, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
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

	var warnings []string
	if st.Phase.Transient() {
		if m.controllerAlive(st) {
			logger.WithFields(logrus.Fields{
				"pid":     st.PID,
				"phase":   st.Phase,
				"session": st.SessionID,
			}).Info("Hotspot is already running")
			msg := "hotspot is already running"
			if st.Request != nil {
				msg = fmt.Sprintf("hotspot %q is already running on %s", st.Request.SSID, st.Request.HotspotInterface)
			}
			return &Result{Outcome: OutcomeAlreadyRunning, Message: msg, State: st}, nil
		}
		warnings = m.recoverStale(context.WithoutCancel(ctx), st)
	} else if len(st.Actions) > 0 {
		logger.WithField("actions", len(st.Actions)).Info("Cleaning up after failed session")
		warnings = m.revertLog(context.WithoutCancel(ctx), st)
	}

	return m.start(ctx, req, warnings)
}

func (m *Manager) start(ctx context.Context, req session.Request, warnings []string) (*Result, error) {
	st := session.NewIdleState()
	st.SessionID = m.newID()
	st.Phase = session.PhaseValidating
	st.PID = m.pid
	st.Warnings = warnings
	st.Request = persistable(req)
	if err := m.save(st); err != nil {
		return nil, err
	}
	if err := m.publisher.WritePID(m.pid); err != nil {
		logger.WithError(err).Warn("Failed to write PID marker")
	}
	m.publish(st, "Checking interfaces", nil)

	log := logger.WithField("session", st.SessionID)
	log.WithField("ssid", req.SSID).Info("Starting hotspot")

	inv, err := m.inventory.List(ctx)
	if err != nil {
		return nil, m.abort(ctx, st, err)
	}

	report := safety.Validate(req, inv)
	st.Warnings = append(st.Warnings, report.WarningMessages()...)
	if !report.OK() {
		for _, v := range report.Blocking {
			log.WithFields(logrus.Fields{
				"check":     v.Check,
				"code":      v.Code,
				"interface": v.Interface,
			}).Warn(v.Message)
		}
		return nil, m.abort(ctx, st, report.Err())
	}
	for _, w := range report.Warnings {
		log.WithFields(logrus.Fields{"check": w.Check, "code": w.Code}).Warn(w.Message)
	}

	req.HotspotInterface = report.Hotspot.Name
	st.Request.HotspotInterface = report.Hotspot.Name
	st.Phase = session.PhaseStarting
	if err := m.save(st); err != nil {
		return nil, m.abort(ctx, st, err)
	}
	m.publish(st, fmt.Sprintf("Starting hotspot on %s", report.Hotspot.Name), nil)

	plan := orchestrator.Plan{Request: req, Hotspot: report.Hotspot.Name, Upstream: report.Upstream}
	_, err = m.config.Apply(ctx, plan, func(a session.Action) error {
		st.Actions = append(st.Actions, a)
		if err := m.store.Save(st); err != nil {
			st.Actions = st.Actions[:len(st.Actions)-1]
			return err
		}
		return nil
	})
	if err != nil {
		return nil, m.abort(ctx, st, err)
	}

	st.Phase = session.PhaseActive
	if req.AutoOffMinutes > 0 {
		deadline := m.now().Add(time.Duration(req.AutoOffMinutes) * time.Minute)
		st.Deadline = &deadline
	}
	if err := m.save(st); err != nil {
		return nil, m.abort(ctx, st, err)
	}

	msg := activeMessage(st)
	m.publish(st, msg, nil)
	log.WithFields(logrus.Fields{
		"interface": report.Hotspot.Name,
		"upstream":  report.Upstream.Interface,
		"actions":   len(st.Actions),
	}).Info("Hotspot active")

	return &Result{Outcome: OutcomeStarted, Message: msg, State: st, Warnings: st.Warnings}, nil
}

// abort reverts whatever the failed start applied. A start interrupted by
// the operator ends Idle; any other failure ends in Error carrying err.
func (m *Manager) abort(ctx context.Context, st *session.State, err error) error {
	warnings := m.revertLog(context.WithoutCancel(ctx), st)

	if ctx.Err() != nil {
		m.finishIdle(st, "Hotspot start cancelled", warnings)
		return session.NewError(session.ConfigurationError, "interrupted", "hotspot start was interrupted", err)
	}

	st.Phase = session.PhaseError
	st.LastError = session.RecordOf(err)
	st.Warnings = append(st.Warnings, warnings...)
	controller := st.PID
	st.PID = 0
	st.Deadline = nil
	_ = m.save(st)
	m.publish(st, st.LastError.Message, nil)
	_ = m.publisher.RemovePID(controller)

	logger.WithFields(logrus.Fields{
		"session": st.SessionID,
		"code":    st.LastError.Code,
	}).WithError(err).Error("Hotspot start failed")
	return err
}

// persistable strips the passphrase; state files never carry secrets.
func persistable(req session.Request) *session.Request {
	req.Passphrase = ""
	req.MACFilter.Addresses = append([]string(nil), req.MACFilter.Addresses...)
	return &req
}
