package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MintHotspot/hotspot-backend-go/src/command_runner"
	"github.com/MintHotspot/hotspot-backend-go/src/inventory"
	"github.com/MintHotspot/hotspot-backend-go/src/session"
)

// Action parameter keys.
const (
	paramInterface   = "interface"
	paramProfile     = "profile"
	paramSSID        = "ssid"
	paramBand        = "band"
	paramHidden      = "hidden"
	paramOpen        = "open"
	paramAddress     = "address"
	paramUpstream    = "upstream"
	paramSubnet      = "subnet"
	paramRouting     = "routing"
	paramForwardPrev = "ip_forward_prev"
	paramMode        = "mode"
	paramAddresses   = "addresses"
	paramDNS         = "dns"
)

// Chains owned by the hotspot. Nothing else is flushed.
const (
	chainForward = "HOTSPOT_FWD"
	chainNAT     = "HOTSPOT_NAT"
	chainMAC     = "HOTSPOT_MAC"
	chainDNS     = "HOTSPOT_DNS"
)

// nmcli exit code for "connection, device or access point does not exist".
const nmcliNotFound = 10

// --- access point profile ---

func (o *Orchestrator) applyAPProfile(ctx context.Context, p map[string]string, passphrase string) error {
	name, iface := p[paramProfile], p[paramInterface]

	// a profile left over from a crashed session is replaced
	if err := o.deleteProfile(ctx, name); err != nil {
		return err
	}

	args := []string{
		"connection", "add",
		"type", "wifi",
		"ifname", iface,
		"con-name", name,
		"autoconnect", "no",
		"ssid", p[paramSSID],
		"mode", "ap",
		"802-11-wireless.band", p[paramBand],
		"802-11-wireless.hidden", yesNo(p[paramHidden]),
		"ipv4.method", "shared",
		"ipv4.addresses", p[paramAddress],
	}
	if p[paramOpen] != "true" {
		args = append(args,
			"wifi-sec.key-mgmt", "wpa-psk",
			"wifi-sec.proto", "rsn",
			"wifi-sec.psk", passphrase,
		)
	}
	if _, err := o.runner.Run(ctx, "nmcli", args...); err != nil {
		return fmt.Errorf("failed to create access point profile: %w", err)
	}
	if _, err := o.runner.Run(ctx, "nmcli", "connection", "up", name, "ifname", iface); err != nil {
		return fmt.Errorf("failed to activate access point profile: %w", err)
	}
	return nil
}

func (o *Orchestrator) revertAPProfile(ctx context.Context, p map[string]string) error {
	name := p[paramProfile]
	if _, err := o.runner.Run(ctx, "nmcli", "connection", "down", name); err != nil && !nmcliMissing(err) {
		logger.WithError(err).WithField("profile", name).Debug("Deactivating profile failed, deleting anyway")
	}
	return o.deleteProfile(ctx, name)
}

func (o *Orchestrator) deleteProfile(ctx context.Context, name string) error {
	if _, err := o.runner.Run(ctx, "nmcli", "connection", "delete", name); err != nil && !nmcliMissing(err) {
		return fmt.Errorf("failed to delete profile %s: %w", name, err)
	}
	return nil
}

func nmcliMissing(err error) bool {
	var te *command_runner.ToolError
	if errors.As(err, &te) && te.ExitCode == nmcliNotFound {
		return true
	}
	return command_runner.StderrContains(err, "unknown connection") ||
		command_runner.StderrContains(err, "not an active connection")
}

// --- NAT and forwarding ---

func (o *Orchestrator) applyNAT(ctx context.Context, p map[string]string, upstream inventory.Upstream) error {
	if p[paramRouting] == string(session.RoutingVPN) && !upstream.Tunnel() {
		return session.NewError(session.ConfigurationError, "vpn_unavailable",
			"VPN routing requested but no VPN tunnel is active", nil)
	}

	// start from a clean slate; forwarding state is not touched here
	_ = o.removeForwardingChains(ctx, p[paramInterface])

	prev, err := o.runner.Run(ctx, "sysctl", "-n", "net.ipv4.ip_forward")
	if err != nil {
		return fmt.Errorf("failed to read ip_forward: %w", err)
	}
	prev = strings.TrimSpace(prev)
	if prev != "1" {
		if _, err := o.runner.Run(ctx, "sysctl", "-w", "net.ipv4.ip_forward=1"); err != nil {
			return fmt.Errorf("failed to enable ip_forward: %w", err)
		}
		p[paramForwardPrev] = prev
	}

	// The guard sits in FORWARD right behind the jump, so hotspot traffic
	// HOTSPOT_FWD does not accept is dropped even while that chain is
	// being rewritten.
	for _, rule := range [][]string{
		{"-N", chainForward},
		guardRule("-I", p[paramInterface]),
		{"-I", "FORWARD", "1", "-j", chainForward},
		{"-t", "nat", "-N", chainNAT},
		{"-t", "nat", "-I", "POSTROUTING", "1", "-j", chainNAT},
	} {
		if err := o.iptables(ctx, rule...); err != nil {
			return err
		}
	}
	return o.populateForwarding(ctx, p)
}

// populateForwarding (re)writes the contents of the hotspot chains for the
// upstream in p. Accept rules go in last, after masquerading is in place;
// anything they do not accept falls through to the guard.
func (o *Orchestrator) populateForwarding(ctx context.Context, p map[string]string) error {
	iface, up, subnet := p[paramInterface], p[paramUpstream], p[paramSubnet]

	rules := [][]string{
		{"-F", chainForward},
		{"-t", "nat", "-F", chainNAT},
	}
	if up != "" && up != iface {
		rules = append(rules,
			[]string{"-t", "nat", "-A", chainNAT, "-s", subnet, "-o", up, "-j", "MASQUERADE"},
			[]string{"-A", chainForward, "-i", up, "-o", iface, "-m", "conntrack", "--ctstate", "RELATED,ESTABLISHED", "-j", "ACCEPT"},
			[]string{"-A", chainForward, "-i", iface, "-o", up, "-p", "tcp", "--tcp-flags", "SYN,RST", "SYN", "-j", "TCPMSS", "--clamp-mss-to-pmtu"},
			[]string{"-A", chainForward, "-i", iface, "-o", up, "-j", "ACCEPT"},
		)
	}

	for _, rule := range rules {
		if err := o.iptables(ctx, rule...); err != nil {
			return err
		}
	}
	return nil
}

func guardRule(op, iface string) []string {
	return []string{op, "FORWARD", "-i", iface, "-j", "DROP"}
}

func (o *Orchestrator) revertNAT(ctx context.Context, p map[string]string) error {
	err := o.removeForwardingChains(ctx, p[paramInterface])
	if prev, ok := p[paramForwardPrev]; ok && prev != "" && prev != "1" {
		if _, serr := o.runner.Run(ctx, "sysctl", "-w", "net.ipv4.ip_forward="+prev); serr != nil {
			err = errors.Join(err, fmt.Errorf("failed to restore ip_forward: %w", serr))
		}
	}
	return err
}

// removeForwardingChains drops the guard last, once nothing can accept
// hotspot traffic any more.
func (o *Orchestrator) removeForwardingChains(ctx context.Context, iface string) error {
	err := errors.Join(
		o.removeChain(ctx, "", chainForward, []string{"FORWARD", "-j", chainForward}),
		o.removeChain(ctx, "nat", chainNAT, []string{"POSTROUTING", "-j", chainNAT}),
	)
	if iface == "" {
		return err
	}
	if gerr := o.iptables(ctx, guardRule("-D", iface)...); gerr != nil && !iptablesMissing(gerr) {
		err = errors.Join(err, gerr)
	}
	return err
}

// --- MAC filter ---

func (o *Orchestrator) applyMACFilter(ctx context.Context, p map[string]string) error {
	iface, mode := p[paramInterface], p[paramMode]
	_ = o.revertMACFilter(ctx, p)

	rules := [][]string{{"-N", chainMAC}}
	verdict := "DROP"
	if mode == string(session.MACFilterAllow) {
		verdict = "RETURN"
	}
	for _, mac := range splitList(p[paramAddresses]) {
		rules = append(rules, []string{"-A", chainMAC, "-m", "mac", "--mac-source", mac, "-j", verdict})
	}
	if mode == string(session.MACFilterAllow) {
		rules = append(rules, []string{"-A", chainMAC, "-j", "DROP"})
	}
	rules = append(rules, []string{"-I", "FORWARD", "1", "-i", iface, "-j", chainMAC})

	for _, rule := range rules {
		if err := o.iptables(ctx, rule...); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) revertMACFilter(ctx context.Context, p map[string]string) error {
	return o.removeChain(ctx, "", chainMAC, []string{"FORWARD", "-i", p[paramInterface], "-j", chainMAC})
}

// --- DNS override ---

func (o *Orchestrator) applyDNSOverride(ctx context.Context, p map[string]string) error {
	iface, dns := p[paramInterface], p[paramDNS]
	_ = o.revertDNSOverride(ctx, p)

	for _, rule := range [][]string{
		{"-t", "nat", "-N", chainDNS},
		{"-t", "nat", "-A", chainDNS, "-p", "udp", "--dport", "53", "-j", "DNAT", "--to-destination", dns + ":53"},
		{"-t", "nat", "-A", chainDNS, "-p", "tcp", "--dport", "53", "-j", "DNAT", "--to-destination", dns + ":53"},
		{"-t", "nat", "-I", "PREROUTING", "1", "-i", iface, "-j", chainDNS},
	} {
		if err := o.iptables(ctx, rule...); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) revertDNSOverride(ctx context.Context, p map[string]string) error {
	return o.removeChain(ctx, "nat", chainDNS, []string{"PREROUTING", "-i", p[paramInterface], "-j", chainDNS})
}

// --- iptables helpers ---

func (o *Orchestrator) iptables(ctx context.Context, args ...string) error {
	if _, err := o.runner.Run(ctx, "iptables", append([]string{"-w"}, args...)...); err != nil {
		return fmt.Errorf("iptables %s: %w", strings.Join(args, " "), err)
	}
	return nil
}

// removeChain deletes the jump into chain, then flushes and deletes it.
// Missing rules and chains are not errors.
func (o *Orchestrator) removeChain(ctx context.Context, table, chain string, jump []string) error {
	var prefix []string
	if table != "" {
		prefix = []string{"-t", table}
	}
	var errs []error
	for _, rule := range [][]string{
		append(append(append([]string{}, prefix...), "-D"), jump...),
		append(append([]string{}, prefix...), "-F", chain),
		append(append([]string{}, prefix...), "-X", chain),
	} {
		if err := o.iptables(ctx, rule...); err != nil && !iptablesMissing(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func iptablesMissing(err error) bool {
	for _, s := range []string{
		"No chain/target/match",
		"does a matching rule exist",
		"Bad rule",
		"doesn't exist",
		"No such file or directory",
	} {
		if command_runner.StderrContains(err, s) {
			return true
		}
	}
	return false
}

// --- small helpers ---

func boolParam(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func yesNo(s string) string {
	if s == "true" {
		return "yes"
	}
	return "no"
}

func joinList(items []string) string {
	return strings.Join(items, ",")
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func copyParams(p map[string]string) map[string]string {
	out := make(map[string]string, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
