// Package orchestrator applies and reverts the system changes that make up
// a hotspot: the NetworkManager access point profile, NAT and forwarding,
// MAC filtering and DNS override.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/MintHotspot/hotspot-backend-go/src/command_runner"
	"github.com/MintHotspot/hotspot-backend-go/src/inventory"
	"github.com/MintHotspot/hotspot-backend-go/src/session"
	"github.com/sirupsen/logrus"
)

// Module-level logger with pre-configured module field
var logger = logrus.WithField("module", "orchestrator")

// GetLogger returns a logger instance for the orchestrator module
func GetLogger() *logrus.Entry {
	return logger
}

const (
	DefaultProfileName    = "temp_hotspot_con"
	DefaultHotspotAddress = "10.42.0.1/24"
)

// Settings are the fixed parameters of the changes applied.
type Settings struct {
	ProfileName    string
	HotspotAddress string
}

// Plan is a validated request bound to concrete interfaces.
type Plan struct {
	Request  session.Request
	Hotspot  string
	Upstream inventory.Upstream
}

// Configurator is the contract the lifecycle drives.
type Configurator interface {
	Apply(ctx context.Context, plan Plan, record func(session.Action) error) ([]session.Action, error)
	Revert(ctx context.Context, actions []session.Action, reverted func(session.Action) error) error
	Retarget(ctx context.Context, action session.Action, upstream inventory.Upstream) (session.Action, error)
}

// Orchestrator drives nmcli, iptables and sysctl through a Runner.
type Orchestrator struct {
	runner   command_runner.Runner
	settings Settings
	now      func() time.Time
}

var _ Configurator = (*Orchestrator)(nil)

// New creates an Orchestrator. Empty settings fall back to defaults.
func New(runner command_runner.Runner, settings Settings) *Orchestrator {
	if settings.ProfileName == "" {
		settings.ProfileName = DefaultProfileName
	}
	if settings.HotspotAddress == "" {
		settings.HotspotAddress = DefaultHotspotAddress
	}
	return &Orchestrator{runner: runner, settings: settings, now: time.Now}
}

// step is one reversible change.
type step struct {
	kind   session.ActionKind
	params map[string]string
}

// steps lists the changes for plan in application order. NAT precedes the
// MAC filter so filtering always has forwarding rules to sit in front of.
func (o *Orchestrator) steps(plan Plan) ([]step, error) {
	prefix, err := netip.ParsePrefix(o.settings.HotspotAddress)
	if err != nil || !prefix.Addr().Is4() {
		return nil, session.NewError(session.ConfigurationError, "invalid_settings",
			fmt.Sprintf("hotspot address %q is not an IPv4 prefix", o.settings.HotspotAddress), err)
	}
	req := plan.Request

	steps := []step{
		{kind: session.ActionAPProfile, params: map[string]string{
			paramInterface: plan.Hotspot,
			paramProfile:   o.settings.ProfileName,
			paramSSID:      req.SSID,
			paramBand:      string(req.Band),
			paramHidden:    boolParam(req.Hidden),
			paramOpen:      boolParam(req.Open),
			paramAddress:   prefix.String(),
		}},
		{kind: session.ActionNAT, params: map[string]string{
			paramInterface: plan.Hotspot,
			paramUpstream:  plan.Upstream.Interface,
			paramSubnet:    prefix.Masked().String(),
			paramRouting:   string(req.Routing),
		}},
	}
	if req.MACFilter.Mode == session.MACFilterAllow || req.MACFilter.Mode == session.MACFilterBlock {
		steps = append(steps, step{kind: session.ActionMACFilter, params: map[string]string{
			paramInterface: plan.Hotspot,
			paramMode:      string(req.MACFilter.Mode),
			paramAddresses: joinList(req.MACFilter.Addresses),
		}})
	}
	if req.DNSOverride != "" {
		steps = append(steps, step{kind: session.ActionDNSOverride, params: map[string]string{
			paramInterface: plan.Hotspot,
			paramDNS:       req.DNSOverride,
		}})
	}
	return steps, nil
}

// Apply performs the steps in order and hands each completed action to
// record before starting the next. A step that fails cleans up its own
// partial effects; earlier steps are left for the caller to revert from
// its log. The returned slice holds the actions that were recorded.
func (o *Orchestrator) Apply(ctx context.Context, plan Plan, record func(session.Action) error) ([]session.Action, error) {
	steps, err := o.steps(plan)
	if err != nil {
		return nil, err
	}

	var applied []session.Action
	for _, s := range steps {
		log := logger.WithFields(logrus.Fields{"action": s.kind, "interface": plan.Hotspot})
		log.Info("Applying action")

		params, err := o.apply(ctx, s, plan)
		if err != nil {
			log.WithError(err).Error("Action failed, cleaning up partial changes")
			if cerr := o.revert(context.WithoutCancel(ctx), session.Action{Kind: s.kind, Params: params}); cerr != nil {
				log.WithError(cerr).Warn("Cleanup of partial changes failed")
			}
			return applied, stepError(s.kind, err)
		}

		action := session.Action{Kind: s.kind, Params: params, AppliedAt: o.now()}
		if err := record(action); err != nil {
			// unrecorded changes must not outlive this call
			_ = o.revert(context.WithoutCancel(ctx), action)
			return applied, session.NewError(session.ConfigurationError, "state_write_failed",
				"failed to record applied action", err)
		}
		applied = append(applied, action)
	}
	return applied, nil
}

// Revert undoes actions newest-first. Every action is attempted and
// reported to reverted; failures are aggregated.
func (o *Orchestrator) Revert(ctx context.Context, actions []session.Action, reverted func(session.Action) error) error {
	var errs []error
	for i := len(actions) - 1; i >= 0; i-- {
		a := actions[i]
		log := logger.WithFields(logrus.Fields{"action": a.Kind, "interface": a.Param(paramInterface)})
		log.Info("Reverting action")

		if err := o.revert(ctx, a); err != nil {
			log.WithError(err).Warn("Revert failed, continuing with remaining actions")
			errs = append(errs, fmt.Errorf("revert %s: %w", a.Kind, err))
		}
		if reverted != nil {
			if err := reverted(a); err != nil {
				errs = append(errs, fmt.Errorf("record revert of %s: %w", a.Kind, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Retarget points an applied NAT action at a new upstream and returns the
// updated action. An empty upstream leaves forwarding closed, as does a
// non-tunnel upstream when the session routes through a VPN.
func (o *Orchestrator) Retarget(ctx context.Context, action session.Action, upstream inventory.Upstream) (session.Action, error) {
	if action.Kind != session.ActionNAT {
		return action, fmt.Errorf("cannot retarget %s action", action.Kind)
	}
	params := copyParams(action.Params)
	params[paramUpstream] = ForwardTarget(action, upstream)

	logger.WithFields(logrus.Fields{
		"from": action.Param(paramUpstream),
		"to":   upstream.Interface,
	}).Info("Retargeting NAT")

	if err := o.populateForwarding(ctx, params); err != nil {
		return action, stepError(session.ActionNAT, err)
	}
	action.Params = params
	action.AppliedAt = o.now()
	return action, nil
}

// ForwardTarget is the interface a NAT action would forward to for
// upstream.
func ForwardTarget(action session.Action, upstream inventory.Upstream) string {
	if action.Param(paramRouting) == string(session.RoutingVPN) && !upstream.Tunnel() {
		return ""
	}
	return upstream.Interface
}

// UpstreamOf returns the interface a NAT action currently forwards to.
func UpstreamOf(action session.Action) string {
	return action.Param(paramUpstream)
}

func (o *Orchestrator) apply(ctx context.Context, s step, plan Plan) (map[string]string, error) {
	params := copyParams(s.params)
	var err error
	switch s.kind {
	case session.ActionAPProfile:
		err = o.applyAPProfile(ctx, params, plan.Request.Passphrase)
	case session.ActionNAT:
		err = o.applyNAT(ctx, params, plan.Upstream)
	case session.ActionMACFilter:
		err = o.applyMACFilter(ctx, params)
	case session.ActionDNSOverride:
		err = o.applyDNSOverride(ctx, params)
	default:
		err = fmt.Errorf("unknown action %q", s.kind)
	}
	return params, err
}

func (o *Orchestrator) revert(ctx context.Context, a session.Action) error {
	switch a.Kind {
	case session.ActionAPProfile:
		return o.revertAPProfile(ctx, a.Params)
	case session.ActionNAT:
		return o.revertNAT(ctx, a.Params)
	case session.ActionMACFilter:
		return o.revertMACFilter(ctx, a.Params)
	case session.ActionDNSOverride:
		return o.revertDNSOverride(ctx, a.Params)
	}
	return fmt.Errorf("unknown action %q", a.Kind)
}

// stepError wraps a step failure as a ConfigurationError unless it already
// carries a kind.
func stepError(kind session.ActionKind, err error) error {
	var se *session.Error
	if errors.As(err, &se) {
		return err
	}
	msg := fmt.Sprintf("failed to apply %s", kind)
	if command_runner.IsTimeout(err) {
		return session.NewError(session.ConfigurationError, "tool_timeout", msg, err)
	}
	return session.NewError(session.ConfigurationError, "tool_failed", msg, err)
}
