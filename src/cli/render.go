package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/MintHotspot/hotspot-backend-go/src/inventory"
	"github.com/MintHotspot/hotspot-backend-go/src/lifecycle"
	"github.com/MintHotspot/hotspot-backend-go/src/safety"
	"github.com/MintHotspot/hotspot-backend-go/src/session"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// printer writes human readable output. Colors are only emitted when the
// writer is a terminal.
type printer struct {
	out io.Writer

	good  lipgloss.Style
	warn  lipgloss.Style
	bad   lipgloss.Style
	muted lipgloss.Style
	head  lipgloss.Style
}

func newPrinter(w io.Writer) *printer {
	r := lipgloss.NewRenderer(w)
	return &printer{
		out:   w,
		good:  r.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		warn:  r.NewStyle().Foreground(lipgloss.Color("3")),
		bad:   r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		muted: r.NewStyle().Faint(true),
		head:  r.NewStyle().Bold(true),
	}
}

func (p *printer) printf(format string, args ...interface{}) {
	fmt.Fprintf(p.out, format, args...)
}

func (p *printer) json(v interface{}) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) jsonLine(v interface{}) error {
	return json.NewEncoder(p.out).Encode(v)
}

func (p *printer) phase(ph session.Phase) string {
	switch ph {
	case session.PhaseActive:
		return p.good.Render(string(ph))
	case session.PhaseError:
		return p.bad.Render(string(ph))
	case session.PhaseIdle:
		return p.muted.Render(string(ph))
	}
	return p.warn.Render(string(ph))
}

func (p *printer) warnings(ws []string) {
	for _, w := range ws {
		p.printf("%s %s\n", p.warn.Render("warning:"), w)
	}
}

func (p *printer) failure(err error) {
	rec := session.RecordOf(err)
	p.printf("%s %s %s\n", p.bad.Render("error:"), rec.Message, p.muted.Render("["+rec.Code+"]"))
}

func (p *printer) result(res *lifecycle.Result) {
	mark := p.good.Render("✓")
	if res.Outcome == lifecycle.OutcomeNotRunning || res.Outcome == lifecycle.OutcomeAlreadyRunning {
		mark = p.muted.Render("•")
	}
	p.printf("%s %s\n", mark, res.Message)
	p.warnings(res.Warnings)
	if res.Outcome == lifecycle.OutcomeStarted && res.State != nil && res.State.Deadline != nil {
		p.printf("  auto-off at %s\n", res.State.Deadline.Local().Format("15:04"))
	}
}

// fields prints label/value pairs with the values aligned.
func (p *printer) fields(pairs [][2]string) {
	width := 0
	for _, kv := range pairs {
		width = max(width, runewidth.StringWidth(kv[0]))
	}
	for _, kv := range pairs {
		if kv[1] == "" {
			continue
		}
		p.printf("%s  %s\n", p.head.Render(runewidth.FillRight(kv[0]+":", width+1)), kv[1])
	}
}

func (p *printer) status(view statusView, now time.Time) {
	rec := view.Record
	pairs := [][2]string{
		{"Phase", p.phase(rec.Phase)},
		{"Message", rec.Message},
		{"Interface", rec.Interface},
		{"SSID", rec.SSID},
		{"Upstream", rec.Upstream},
	}
	if rec.Clients != nil {
		pairs = append(pairs, [2]string{"Clients", fmt.Sprint(*rec.Clients)})
	}
	if rec.Deadline != nil {
		left := rec.Deadline.Sub(now).Round(time.Minute)
		pairs = append(pairs, [2]string{"Auto-off", fmt.Sprintf("%s (in %s)", rec.Deadline.Local().Format("15:04"), left)})
	}
	if rec.ErrorCode != "" {
		pairs = append(pairs, [2]string{"Error", rec.ErrorCode})
	}
	if rec.PID != 0 {
		pairs = append(pairs, [2]string{"PID", fmt.Sprint(rec.PID)})
	}
	if !rec.Timestamp.IsZero() {
		pairs = append(pairs, [2]string{"Updated", rec.Timestamp.Local().Format(time.DateTime)})
	}
	p.fields(pairs)
	p.warnings(rec.Warnings)
	if view.Stale {
		p.printf("%s the controlling process is gone; run with --stop to clean up\n", p.warn.Render("stale:"))
	}
}

// table prints rows under a header, padding by display width so SSIDs and
// connection names with wide characters stay aligned.
func (p *printer) table(header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}
	line := func(cells []string, style *lipgloss.Style) {
		parts := make([]string, len(cells))
		for i, c := range cells {
			if i < len(cells)-1 {
				c = runewidth.FillRight(c, widths[i])
			}
			if style != nil {
				c = style.Render(c)
			}
			parts[i] = c
		}
		p.printf("%s\n", strings.TrimRight(strings.Join(parts, "  "), " "))
	}
	line(header, &p.head)
	for _, row := range rows {
		line(row, nil)
	}
}

func (p *printer) interfaces(inv *inventory.Inventory) {
	rows := make([][]string, 0, len(inv.Interfaces))
	for _, i := range inv.Interfaces {
		state := "down"
		if i.Up {
			state = "up"
		}
		ap, band5 := "-", "-"
		if i.Wireless() {
			ap, band5 = capabilityText(i.APMode), capabilityText(i.Band5GHz)
		}
		var notes []string
		if i.Name == inv.KernelRoute {
			notes = append(notes, "internet")
		}
		if i.RFKill.Blocked() {
			notes = append(notes, "rfkill")
		}
		if i.Mode != "" && i.Mode != "managed" {
			notes = append(notes, i.Mode)
		}
		if i.ConnectedNetwork != "" {
			notes = append(notes, "on "+i.ConnectedNetwork)
		}
		if i.ProbeError != "" {
			notes = append(notes, "probe failed")
		}
		rows = append(rows, []string{
			i.Name, i.Type.Label(), state, strings.Join(i.Addresses, ","), ap, band5, strings.Join(notes, ", "),
		})
	}
	p.table([]string{"NAME", "TYPE", "STATE", "ADDRESS", "AP", "5GHZ", "NOTES"}, rows)
	if inv.NetworkManager != inventory.CapabilitySupported {
		p.printf("%s NetworkManager is %s\n", p.warn.Render("warning:"), inv.NetworkManager)
	}
}

func capabilityText(c inventory.Capability) string {
	switch c {
	case inventory.CapabilitySupported:
		return "yes"
	case inventory.CapabilityUnsupported:
		return "no"
	}
	return "?"
}

func (p *printer) report(r *safety.Report) {
	upstream := r.Upstream.Interface
	if upstream == "" {
		upstream = "none"
	}
	p.fields([][2]string{
		{"Hotspot", r.Hotspot.Name},
		{"Upstream", upstream},
	})
	for _, v := range r.Blocking {
		p.printf("%s %s %s\n", p.bad.Render("blocked:"), v.Message, p.muted.Render("["+v.Code+"]"))
	}
	for _, w := range r.Warnings {
		p.printf("%s %s\n", p.warn.Render("warning:"), w.Message)
	}
	if r.OK() {
		p.printf("%s ready to start\n", p.good.Render("✓"))
	}
}
