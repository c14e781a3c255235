// Package session holds the data model shared by every hotspot component:
// the operator's request, the persisted session state and its action log,
// and the error taxonomy used to pick exit codes.
package session

import (
	"time"
)

// Band selects the radio band of the access point. Values are the ones
// NetworkManager accepts for 802-11-wireless.band.
type Band string

const (
	Band24GHz Band = "bg"
	Band5GHz  Band = "a"
)

// RoutingMode controls which interface hotspot traffic leaves through.
type RoutingMode string

const (
	// RoutingAuto follows the kernel's own route decision.
	RoutingAuto RoutingMode = "auto"
	// RoutingVPN requires an active tunnel and fails closed without one.
	RoutingVPN RoutingMode = "vpn"
	// RoutingExcludeVPN uses the first physical default route.
	RoutingExcludeVPN RoutingMode = "exclude-vpn"
)

// MACFilterMode selects how MACFilter.Addresses is interpreted.
type MACFilterMode string

const (
	MACFilterNone  MACFilterMode = "none"
	MACFilterAllow MACFilterMode = "allow" // default-deny
	MACFilterBlock MACFilterMode = "block" // default-allow
)

// MACFilter is an allow-list or block-list of client hardware addresses.
type MACFilter struct {
	Mode      MACFilterMode `json:"mode"`
	Addresses []string      `json:"addresses,omitempty"`
}

// Request is the operator's intent for one hotspot session.
type Request struct {
	SSID              string      `json:"ssid"`
	Passphrase        string      `json:"passphrase,omitempty"`
	Open              bool        `json:"open,omitempty"`
	HotspotInterface  string      `json:"hotspot_interface,omitempty"`
	InternetInterface string      `json:"internet_interface,omitempty"`
	Band              Band        `json:"band"`
	Hidden            bool        `json:"hidden"`
	DNSOverride       string      `json:"dns_override,omitempty"`
	Routing           RoutingMode `json:"routing"`
	MACFilter         MACFilter   `json:"mac_filter"`
	AutoOffMinutes    int         `json:"auto_off_minutes,omitempty"`

	// ForceSingleInterface downgrades the single-adapter lockout to a warning.
	ForceSingleInterface bool `json:"force_single_interface,omitempty"`
}

// Phase is a lifecycle state.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseValidating Phase = "validating"
	PhaseStarting   Phase = "starting"
	PhaseActive     Phase = "active"
	PhaseStopping   Phase = "stopping"
	PhaseError      Phase = "error"
)

// Transient reports whether a controlling process must be alive for the
// phase to be meaningful.
func (p Phase) Transient() bool {
	switch p {
	case PhaseValidating, PhaseStarting, PhaseActive, PhaseStopping:
		return true
	}
	return false
}

// ActionKind names a reversible system change.
type ActionKind string

const (
	ActionAPProfile   ActionKind = "ap_profile"
	ActionNAT         ActionKind = "nat"
	ActionMACFilter   ActionKind = "mac_filter"
	ActionDNSOverride ActionKind = "dns_override"
)

// Action is one entry of the applied-action log. Params carry everything
// needed to undo the change from a different process.
type Action struct {
	Kind      ActionKind        `json:"kind"`
	Params    map[string]string `json:"params"`
	AppliedAt time.Time         `json:"applied_at"`
}

// Param returns a parameter or the empty string.
func (a Action) Param(key string) string {
	if a.Params == nil {
		return ""
	}
	return a.Params[key]
}

// ErrorRecord is the persisted form of the error that put a session in
// the Error phase.
type ErrorRecord struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StateVersion is the current layout of the persisted state record.
const StateVersion = 1

// State is the durable session record shared across invocations.
type State struct {
	Version   int          `json:"version"`
	SessionID string       `json:"session_id,omitempty"`
	Phase     Phase        `json:"phase"`
	Request   *Request     `json:"request,omitempty"`
	PID       int          `json:"pid,omitempty"`
	Deadline  *time.Time   `json:"deadline,omitempty"`
	Actions   []Action     `json:"actions"`
	LastError *ErrorRecord `json:"last_error,omitempty"`
	Warnings  []string     `json:"warnings,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// NewIdleState returns the state of a machine with no hotspot.
func NewIdleState() *State {
	return &State{
		Version: StateVersion,
		Phase:   PhaseIdle,
		Actions: []Action{},
	}
}

// FindAction returns the index of the newest logged action of kind, or -1.
func (s *State) FindAction(kind ActionKind) int {
	for i := len(s.Actions) - 1; i >= 0; i-- {
		if s.Actions[i].Kind == kind {
			return i
		}
	}
	return -1
}
