package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MintHotspot/hotspot-backend-go/src/command_runner"
	"github.com/MintHotspot/hotspot-backend-go/src/inventory"
	"github.com/MintHotspot/hotspot-backend-go/src/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrchestrator() (*Orchestrator, *command_runner.FakeRunner) {
	runner := command_runner.NewFakeRunner()
	runner.Respond("sysctl -n net.ipv4.ip_forward", "0\n")
	return New(runner, Settings{}), runner
}

func cafePlan() Plan {
	req := session.Request{SSID: "Cafe", Passphrase: "s3cret-pass", HotspotInterface: "wlp2s0"}
	req.Normalize()
	return Plan{
		Request:  req,
		Hotspot:  "wlp2s0",
		Upstream: inventory.Upstream{Interface: "enp3s0", Type: inventory.TypeEthernet},
	}
}

type recorder struct {
	actions []session.Action
	err     error
}

func (r *recorder) record(a session.Action) error {
	if r.err != nil {
		return r.err
	}
	r.actions = append(r.actions, a)
	return nil
}

func TestApplyCafeScenario(t *testing.T) {
	o, runner := newTestOrchestrator()
	rec := &recorder{}

	applied, err := o.Apply(context.Background(), cafePlan(), rec.record)
	require.NoError(t, err)

	require.Len(t, applied, 2)
	assert.Equal(t, session.ActionAPProfile, applied[0].Kind)
	assert.Equal(t, session.ActionNAT, applied[1].Kind)
	assert.Equal(t, applied, rec.actions)

	add := runner.CallsWithPrefix("nmcli connection add")
	require.Len(t, add, 1)
	assert.Contains(t, add[0], "ifname wlp2s0 con-name temp_hotspot_con autoconnect no ssid Cafe mode ap")
	assert.Contains(t, add[0], "802-11-wireless.band bg")
	assert.Contains(t, add[0], "wifi-sec.psk s3cret-pass")
	assert.Contains(t, add[0], "ipv4.method shared ipv4.addresses 10.42.0.1/24")
	assert.Len(t, runner.CallsWithPrefix("nmcli connection up temp_hotspot_con ifname wlp2s0"), 1)

	assert.Len(t, runner.CallsWithPrefix("sysctl -w net.ipv4.ip_forward=1"), 1)
	assert.Len(t, runner.CallsWithPrefix("iptables -w -t nat -A HOTSPOT_NAT -s 10.42.0.0/24 -o enp3s0 -j MASQUERADE"), 1)
	assert.Len(t, runner.CallsWithPrefix("iptables -w -A HOTSPOT_FWD -i wlp2s0 -o enp3s0 -j ACCEPT"), 1)

	nat := applied[1]
	assert.Equal(t, "0", nat.Param(paramForwardPrev))
	assert.Equal(t, "enp3s0", nat.Param(paramUpstream))
	_, hasSecret := applied[0].Params["passphrase"]
	assert.False(t, hasSecret)
	for _, v := range applied[0].Params {
		assert.NotEqual(t, "s3cret-pass", v, "passphrase must not be persisted in the action log")
	}
}

func TestApplyAllOptionalSteps(t *testing.T) {
	o, runner := newTestOrchestrator()
	plan := cafePlan()
	plan.Request.Band = session.Band5GHz
	plan.Request.Hidden = true
	plan.Request.DNSOverride = "1.1.1.1"
	plan.Request.MACFilter = session.MACFilter{
		Mode:      session.MACFilterAllow,
		Addresses: []string{"aa:bb:cc:dd:ee:01", "aa:bb:cc:dd:ee:02"},
	}

	applied, err := o.Apply(context.Background(), plan, (&recorder{}).record)
	require.NoError(t, err)

	kinds := make([]session.ActionKind, 0, len(applied))
	for _, a := range applied {
		kinds = append(kinds, a.Kind)
	}
	assert.Equal(t, []session.ActionKind{
		session.ActionAPProfile, session.ActionNAT, session.ActionMACFilter, session.ActionDNSOverride,
	}, kinds)

	add := runner.CallsWithPrefix("nmcli connection add")[0]
	assert.Contains(t, add, "802-11-wireless.band a")
	assert.Contains(t, add, "802-11-wireless.hidden yes")

	assert.Len(t, runner.CallsWithPrefix("iptables -w -A HOTSPOT_MAC -m mac --mac-source aa:bb:cc:dd:ee:01 -j RETURN"), 1)
	assert.Len(t, runner.CallsWithPrefix("iptables -w -A HOTSPOT_MAC -j DROP"), 1, "allow-list is default deny")
	assert.Len(t, runner.CallsWithPrefix("iptables -w -I FORWARD 1 -i wlp2s0 -j HOTSPOT_MAC"), 1)
	assert.Len(t, runner.CallsWithPrefix("iptables -w -t nat -A HOTSPOT_DNS -p udp --dport 53 -j DNAT --to-destination 1.1.1.1:53"), 1)
}

func TestApplyBlockList(t *testing.T) {
	o, runner := newTestOrchestrator()
	plan := cafePlan()
	plan.Request.MACFilter = session.MACFilter{Mode: session.MACFilterBlock, Addresses: []string{"aa:bb:cc:dd:ee:01"}}

	_, err := o.Apply(context.Background(), plan, (&recorder{}).record)
	require.NoError(t, err)

	assert.Len(t, runner.CallsWithPrefix("iptables -w -A HOTSPOT_MAC -m mac --mac-source aa:bb:cc:dd:ee:01 -j DROP"), 1)
	assert.Empty(t, runner.CallsWithPrefix("iptables -w -A HOTSPOT_MAC -j DROP"), "block-list is default allow")
}

func TestApplyOpenNetwork(t *testing.T) {
	o, runner := newTestOrchestrator()
	plan := cafePlan()
	plan.Request.Passphrase = ""
	plan.Request.Open = true

	_, err := o.Apply(context.Background(), plan, (&recorder{}).record)
	require.NoError(t, err)
	assert.NotContains(t, runner.CallsWithPrefix("nmcli connection add")[0], "wifi-sec")
}

func TestApplyFailureInFirstStep(t *testing.T) {
	o, runner := newTestOrchestrator()
	runner.Fail("nmcli connection up", &command_runner.ToolError{Command: "nmcli connection up", ExitCode: 4, Stderr: "No suitable device found"})
	rec := &recorder{}

	applied, err := o.Apply(context.Background(), cafePlan(), rec.record)
	require.Error(t, err)

	assert.Empty(t, applied)
	assert.Empty(t, rec.actions)
	assert.Equal(t, session.ConfigurationError, session.KindOf(err))
	var se *session.Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "config.tool_failed", se.Code)
	// the half-created profile is removed: once before add, once in cleanup
	assert.Len(t, runner.CallsWithPrefix("nmcli connection delete temp_hotspot_con"), 2)
	assert.Empty(t, runner.CallsWithPrefix("iptables"), "later steps never run")
}

func TestApplyFailureInLaterStep(t *testing.T) {
	o, runner := newTestOrchestrator()
	runner.Fail("iptables -w -t nat -A HOTSPOT_NAT", errors.New("iptables: No chain/target/match by that name."))
	rec := &recorder{}

	applied, err := o.Apply(context.Background(), cafePlan(), rec.record)
	require.Error(t, err)

	require.Len(t, applied, 1)
	assert.Equal(t, session.ActionAPProfile, applied[0].Kind)
	assert.Len(t, rec.actions, 1)
	assert.Len(t, runner.CallsWithPrefix("sysctl -w net.ipv4.ip_forward=0"), 1, "partial NAT restores forwarding")
}

func TestApplyTimeout(t *testing.T) {
	o, runner := newTestOrchestrator()
	runner.Fail("nmcli connection up", &command_runner.ToolError{Command: "nmcli connection up", TimedOut: true, Cause: context.DeadlineExceeded})

	_, err := o.Apply(context.Background(), cafePlan(), (&recorder{}).record)
	var se *session.Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "config.tool_timeout", se.Code)
}

func TestApplyRecordFailureUndoesStep(t *testing.T) {
	o, runner := newTestOrchestrator()
	rec := &recorder{err: errors.New("disk full")}

	applied, err := o.Apply(context.Background(), cafePlan(), rec.record)
	require.Error(t, err)
	assert.Empty(t, applied)
	assert.Len(t, runner.CallsWithPrefix("nmcli connection down temp_hotspot_con"), 1)
}

func TestVPNRoutingFailsClosed(t *testing.T) {
	o, runner := newTestOrchestrator()
	plan := cafePlan()
	plan.Request.Routing = session.RoutingVPN

	applied, err := o.Apply(context.Background(), plan, (&recorder{}).record)
	require.Error(t, err)

	var se *session.Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "config.vpn_unavailable", se.Code)
	assert.Len(t, applied, 1)
	assert.Empty(t, runner.CallsWithPrefix("sysctl -w net.ipv4.ip_forward=1"))

	runner.Reset()
	plan.Upstream = inventory.Upstream{Interface: "wg0", Type: inventory.TypeVPN}
	_, err = o.Apply(context.Background(), plan, (&recorder{}).record)
	require.NoError(t, err)
	assert.Len(t, runner.CallsWithPrefix("iptables -w -t nat -A HOTSPOT_NAT -s 10.42.0.0/24 -o wg0 -j MASQUERADE"), 1)
}

func TestNoUpstreamDropsForwarding(t *testing.T) {
	o, runner := newTestOrchestrator()
	plan := cafePlan()
	plan.Upstream = inventory.Upstream{}

	applied, err := o.Apply(context.Background(), plan, (&recorder{}).record)
	require.NoError(t, err)
	assert.Len(t, applied, 2)
	assert.Empty(t, runner.CallsWithPrefix("iptables -w -t nat -A HOTSPOT_NAT"))
	assert.Empty(t, runner.CallsWithPrefix("iptables -w -A HOTSPOT_FWD"))
	assert.Len(t, runner.CallsWithPrefix("iptables -w -I FORWARD -i wlp2s0 -j DROP"), 1)
}

func TestForwardGuardBehindJump(t *testing.T) {
	o, runner := newTestOrchestrator()
	_, err := o.Apply(context.Background(), cafePlan(), (&recorder{}).record)
	require.NoError(t, err)

	// each insert goes to the top, so the guard inserted first ends up
	// right behind the jump
	calls := strings.Join(runner.Calls, "\n")
	guard := strings.Index(calls, "iptables -w -I FORWARD -i wlp2s0 -j DROP")
	jump := strings.Index(calls, "iptables -w -I FORWARD 1 -j HOTSPOT_FWD")
	require.GreaterOrEqual(t, guard, 0)
	assert.Less(t, guard, jump)
	assert.Less(t, jump, strings.Index(calls, "iptables -w -A HOTSPOT_FWD"))
}

func TestRevertNewestFirstAndAggregates(t *testing.T) {
	o, runner := newTestOrchestrator()
	applied, err := o.Apply(context.Background(), cafePlan(), (&recorder{}).record)
	require.NoError(t, err)
	runner.Reset()
	runner.Fail("nmcli connection delete", &command_runner.ToolError{Command: "nmcli connection delete", ExitCode: 1, Stderr: "permission denied"})

	var order []session.ActionKind
	err = o.Revert(context.Background(), applied, func(a session.Action) error {
		order = append(order, a.Kind)
		return nil
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "revert ap_profile")
	assert.Equal(t, []session.ActionKind{session.ActionNAT, session.ActionAPProfile}, order)

	calls := strings.Join(runner.Calls, "\n")
	assert.Less(t, strings.Index(calls, "iptables -w -D FORWARD -j HOTSPOT_FWD"), strings.Index(calls, "nmcli connection down"))
	assert.Less(t, strings.Index(calls, "iptables -w -X HOTSPOT_NAT"), strings.Index(calls, "iptables -w -D FORWARD -i wlp2s0 -j DROP"))
	assert.Len(t, runner.CallsWithPrefix("sysctl -w net.ipv4.ip_forward=0"), 1)
}

func TestRevertIsIdempotent(t *testing.T) {
	o, runner := newTestOrchestrator()
	applied, err := o.Apply(context.Background(), cafePlan(), (&recorder{}).record)
	require.NoError(t, err)

	runner.Fail("iptables", &command_runner.ToolError{Command: "iptables", ExitCode: 1, Stderr: "iptables: No chain/target/match by that name."})
	runner.Fail("nmcli connection", &command_runner.ToolError{Command: "nmcli connection", ExitCode: 10, Stderr: "Error: unknown connection 'temp_hotspot_con'."})

	assert.NoError(t, o.Revert(context.Background(), applied, nil), "reverting already-removed state succeeds")
}

func TestRetarget(t *testing.T) {
	o, runner := newTestOrchestrator()
	applied, err := o.Apply(context.Background(), cafePlan(), (&recorder{}).record)
	require.NoError(t, err)
	nat := applied[1]
	runner.Reset()

	updated, err := o.Retarget(context.Background(), nat, inventory.Upstream{Interface: "wwan0", Type: inventory.TypeMobileBroadband})
	require.NoError(t, err)
	assert.Equal(t, "wwan0", updated.Param(paramUpstream))
	assert.Equal(t, "0", updated.Param(paramForwardPrev), "original forwarding state is kept")
	assert.Len(t, runner.CallsWithPrefix("iptables -w -F HOTSPOT_FWD"), 1)
	assert.Len(t, runner.CallsWithPrefix("iptables -w -t nat -A HOTSPOT_NAT -s 10.42.0.0/24 -o wwan0 -j MASQUERADE"), 1)

	_, err = o.Retarget(context.Background(), applied[0], inventory.Upstream{Interface: "wwan0"})
	assert.Error(t, err)
}

func TestRetargetVPNSessionLosesTunnel(t *testing.T) {
	o, runner := newTestOrchestrator()
	plan := cafePlan()
	plan.Request.Routing = session.RoutingVPN
	plan.Upstream = inventory.Upstream{Interface: "wg0", Type: inventory.TypeVPN}
	applied, err := o.Apply(context.Background(), plan, (&recorder{}).record)
	require.NoError(t, err)
	runner.Reset()

	updated, err := o.Retarget(context.Background(), applied[1], inventory.Upstream{Interface: "enp3s0", Type: inventory.TypeEthernet})
	require.NoError(t, err)
	assert.Empty(t, updated.Param(paramUpstream), "never falls back to a physical upstream")
	assert.Empty(t, runner.CallsWithPrefix("iptables -w -t nat -A HOTSPOT_NAT"))
	assert.Empty(t, runner.CallsWithPrefix("iptables -w -A HOTSPOT_FWD"))
	assert.Empty(t, runner.CallsWithPrefix("iptables -w -D FORWARD -i wlp2s0 -j DROP"), "guard stays in place")
}

func TestRetargetFailureLeavesForwardingClosed(t *testing.T) {
	o, runner := newTestOrchestrator()
	plan := cafePlan()
	plan.Request.Routing = session.RoutingVPN
	plan.Upstream = inventory.Upstream{Interface: "wg0", Type: inventory.TypeVPN}
	applied, err := o.Apply(context.Background(), plan, (&recorder{}).record)
	require.NoError(t, err)
	runner.Reset()
	runner.Fail("iptables -w -t nat -F HOTSPOT_NAT", &command_runner.ToolError{Command: "iptables", ExitCode: 4, Stderr: "resource temporarily unavailable"})

	unchanged, err := o.Retarget(context.Background(), applied[1], inventory.Upstream{Interface: "wg1", Type: inventory.TypeVPN})
	require.Error(t, err)
	assert.Equal(t, "wg0", unchanged.Param(paramUpstream))
	assert.Equal(t, []string{"iptables -w -F HOTSPOT_FWD", "iptables -w -t nat -F HOTSPOT_NAT"}, runner.Calls)
	// nothing accepts hotspot traffic and the guard was never touched
	assert.Empty(t, runner.CallsWithPrefix("iptables -w -A HOTSPOT_FWD"))
	assert.Empty(t, runner.CallsWithPrefix("iptables -w -D FORWARD"))
}

func TestRetargetMasqueradesBeforeAccepting(t *testing.T) {
	o, runner := newTestOrchestrator()
	applied, err := o.Apply(context.Background(), cafePlan(), (&recorder{}).record)
	require.NoError(t, err)
	runner.Reset()

	_, err = o.Retarget(context.Background(), applied[1], inventory.Upstream{Interface: "wwan0", Type: inventory.TypeMobileBroadband})
	require.NoError(t, err)
	calls := strings.Join(runner.Calls, "\n")
	assert.Less(t, strings.Index(calls, "-j MASQUERADE"), strings.Index(calls, "iptables -w -A HOTSPOT_FWD -i wlp2s0 -o wwan0 -j ACCEPT"))
}

func TestInvalidHotspotAddress(t *testing.T) {
	o := New(command_runner.NewFakeRunner(), Settings{HotspotAddress: "fe80::1/64"})
	_, err := o.Apply(context.Background(), cafePlan(), (&recorder{}).record)
	assert.Equal(t, session.ConfigurationError, session.KindOf(err))
}
