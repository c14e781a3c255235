package cli

import (
	"time"

	"github.com/MintHotspot/hotspot-backend-go/src/session"
	"github.com/MintHotspot/hotspot-backend-go/src/status_publisher"
	"github.com/spf13/cobra"
)

// statusView is the published record plus what only a reader can tell:
// whether the process that wrote it is still there.
type statusView struct {
	*status_publisher.Record
	Stale bool `json:"stale,omitempty"`
}

func newStatusCommand(o *options) *cobra.Command {
	var asJSON, watch bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the hotspot status",
		Long: `Show the last published hotspot status. With --watch every update is
printed as it is published until interrupted.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd.OutOrStdout())
			show := func(view statusView) error {
				if asJSON {
					if watch {
						return p.jsonLine(view)
					}
					return p.json(view)
				}
				p.status(view, time.Now())
				return nil
			}

			if watch {
				return status_publisher.Watch(cmd.Context(), o.settings.StatusFile, func(rec *status_publisher.Record) {
					if err := show(o.decorate(rec)); err != nil {
						logger.WithError(err).Warn("Failed to print status")
					}
					if !asJSON {
						p.printf("\n")
					}
				})
			}

			rec, err := status_publisher.ReadStatus(o.settings.StatusFile)
			if err != nil {
				return session.NewError(session.ConfigurationError, "status_unreadable", "failed to read status", err)
			}
			return show(o.decorate(rec))
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the status record as JSON")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "follow status updates")
	return cmd
}

// decorate adds liveness to rec. The session state is consulted
// when readable; otherwise the PID in the record decides.
func (o *options) decorate(rec *status_publisher.Record) statusView {
	if rec == nil {
		rec = &status_publisher.Record{Phase: session.PhaseIdle, Message: "Hotspot is not running"}
	}
	view := statusView{Record: rec}
	if !rec.Phase.Transient() {
		return view
	}

	app, err := o.application()
	if err != nil {
		logger.WithError(err).Debug("Cannot check controller liveness")
		return view
	}
	if snap, err := app.Manager.Status(); err == nil {
		view.Stale = snap.Stale && snap.State.SessionID == rec.SessionID
		return view
	}
	if rec.PID != 0 && app.Processes != nil {
		view.Stale = !app.Processes.Alive(rec.PID)
	}
	return view
}

func newInterfacesCommand(o *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "interfaces",
		Aliases: []string{"ifaces"},
		Short:   "List network interfaces and their hotspot capabilities",
		Args:    noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := o.application()
			if err != nil {
				return err
			}
			inv, err := app.Inventory.List(cmd.Context())
			if err != nil {
				return err
			}
			p := newPrinter(cmd.OutOrStdout())
			if asJSON {
				return p.json(inv)
			}
			p.interfaces(inv)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the inventory as JSON")
	return cmd
}

func newCheckCommand(o *options) *cobra.Command {
	var (
		flags  requestFlags
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run the pre-flight checks without starting",
		Long: `Resolve the interfaces and run every safety check for the given options
without changing anything. The exit code is the one a start would have.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := o.application()
			if err != nil {
				return err
			}
			req, err := flags.build(cmd, lastRequest(app.Config))
			if err != nil {
				return err
			}
			report, _, err := app.Manager.Check(cmd.Context(), req)
			if err != nil {
				return err
			}
			p := newPrinter(cmd.OutOrStdout())
			if asJSON {
				if err := p.json(report); err != nil {
					return err
				}
			} else {
				p.report(report)
			}
			return report.Err()
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}
