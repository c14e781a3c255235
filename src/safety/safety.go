// Package safety runs the pre-flight checks that decide whether a hotspot
// may be started on the chosen adapter.
package safety

import (
	"fmt"
	"strings"

	"github.com/MintHotspot/hotspot-backend-go/src/inventory"
	"github.com/MintHotspot/hotspot-backend-go/src/session"
	"github.com/sirupsen/logrus"
)

// Module-level logger with pre-configured module field
var logger = logrus.WithField("module", "safety")

// Violation is a blocking finding.
type Violation struct {
	Check     string            `json:"check"`
	Kind      session.ErrorKind `json:"-"`
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Interface string            `json:"interface,omitempty"`
}

// Warning is a non-blocking finding shown to the operator.
type Warning struct {
	Check     string `json:"check"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Interface string `json:"interface,omitempty"`
}

// Report is the outcome of validation together with the interfaces it
// resolved.
type Report struct {
	Hotspot  inventory.Interface `json:"hotspot"`
	Upstream inventory.Upstream  `json:"upstream"`
	Blocking []Violation         `json:"blocking,omitempty"`
	Warnings []Warning           `json:"warnings,omitempty"`
}

// OK reports whether nothing blocks the start.
func (r *Report) OK() bool {
	return len(r.Blocking) == 0
}

// Err returns nil when OK, otherwise an error carrying the kind and code of
// the first blocking violation and the messages of all of them.
func (r *Report) Err() error {
	if r.OK() {
		return nil
	}
	first := r.Blocking[0]
	msgs := make([]string, 0, len(r.Blocking))
	for _, v := range r.Blocking {
		msgs = append(msgs, v.Message)
	}
	return &session.Error{Kind: first.Kind, Code: first.Code, Message: strings.Join(msgs, "; ")}
}

// WarningMessages returns the warning texts.
func (r *Report) WarningMessages() []string {
	out := make([]string, 0, len(r.Warnings))
	for _, w := range r.Warnings {
		out = append(out, w.Message)
	}
	return out
}

func (r *Report) block(check string, kind session.ErrorKind, code, iface, format string, args ...interface{}) {
	r.Blocking = append(r.Blocking, Violation{
		Check:     check,
		Kind:      kind,
		Code:      kind.String() + "." + code,
		Message:   fmt.Sprintf(format, args...),
		Interface: iface,
	})
}

// warningPrefix namespaces warning codes the way error kinds namespace
// blocking codes.
const warningPrefix = "warning."

func (r *Report) warn(check, code, iface, format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, Warning{
		Check:     check,
		Code:      warningPrefix + code,
		Message:   fmt.Sprintf(format, args...),
		Interface: iface,
	})
}

// Target is the resolved subject of the checks.
type Target struct {
	Request   session.Request
	Inventory *inventory.Inventory

	Hotspot      inventory.Interface
	HotspotFound bool

	Upstream inventory.Upstream
	// Carrier is the physical interface providing connectivity right now,
	// underneath any tunnel.
	Carrier string
}

// Check is one independently evaluable pre-flight check.
type Check struct {
	Name string
	Run  func(t *Target, r *Report)
}

// Checks are evaluated in order. Environment and hardware checks come
// before the lockout check so the first blocking entry names the most
// fundamental problem.
var Checks = []Check{
	{Name: "network_manager", Run: checkNetworkManager},
	{Name: "rfkill", Run: checkRFKill},
	{Name: "interface_mode", Run: checkInterfaceMode},
	{Name: "ap_mode", Run: checkAPMode},
	{Name: "band", Run: checkBand},
	{Name: "single_adapter", Run: checkSingleAdapter},
	{Name: "upstream", Run: checkUpstream},
	{Name: "ssid", Run: checkSSID},
}

// Resolve works out the hotspot interface and internet source for req.
func Resolve(req session.Request, inv *inventory.Inventory) *Target {
	t := &Target{Request: req, Inventory: inv}
	t.Carrier = inv.ResolveUpstream(session.RoutingExcludeVPN, "").Interface
	t.Upstream = inv.ResolveUpstream(req.Routing, req.InternetInterface)

	if req.HotspotInterface != "" {
		t.Hotspot, t.HotspotFound = inv.Find(req.HotspotInterface)
	} else {
		t.Hotspot, t.HotspotFound = inv.SelectHotspotInterface(t.Carrier)
	}
	return t
}

// Validate resolves req against inv and runs every check. Interface
// resolution failures short-circuit the per-interface checks.
func Validate(req session.Request, inv *inventory.Inventory) *Report {
	t := Resolve(req, inv)
	r := &Report{Hotspot: t.Hotspot, Upstream: t.Upstream}

	switch {
	case !t.HotspotFound && req.HotspotInterface != "":
		r.block("interface", session.HardwareError, "interface_not_found", req.HotspotInterface,
			"interface %s does not exist", req.HotspotInterface)
	case !t.HotspotFound:
		r.block("interface", session.HardwareError, "no_wireless_interface", "",
			"no Wi-Fi interface found to host the hotspot")
	case !t.Hotspot.Wireless():
		r.block("interface", session.HardwareError, "not_wireless", t.Hotspot.Name,
			"%s is a %s interface, not Wi-Fi", t.Hotspot.Name, t.Hotspot.Type.Label())
	default:
		for _, c := range Checks {
			c.Run(t, r)
		}
		// the lockout check may have picked an alternate upstream
		r.Upstream = t.Upstream
	}

	logger.WithFields(logrus.Fields{
		"hotspot":  t.Hotspot.Name,
		"upstream": r.Upstream.Interface,
		"blocking": len(r.Blocking),
		"warnings": len(r.Warnings),
	}).Info("Pre-flight validation finished")
	return r
}
