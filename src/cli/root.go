package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MintHotspot/hotspot-backend-go/src/config_manager"
	"github.com/MintHotspot/hotspot-backend-go/src/lifecycle"
	"github.com/MintHotspot/hotspot-backend-go/src/session"
	"github.com/spf13/cobra"
)

// options is shared by every command of one invocation.
type options struct {
	factory  AppFactory
	logLevel string
	settings *config_manager.Settings
	app      *App
}

// application builds the App on first use, so commands that need no
// system access never touch it.
func (o *options) application() (*App, error) {
	if o.app != nil {
		return o.app, nil
	}
	app, err := o.factory(o.settings)
	if err != nil {
		return nil, session.NewError(session.ConfigurationError, "setup_failed", "failed to initialize", err)
	}
	o.app = app
	return app, nil
}

func (o *options) loadSettings(cmd *cobra.Command) error {
	settings, err := config_manager.LoadSettings(config_manager.SettingsPath())
	if err != nil {
		return session.NewError(session.ConfigurationError, "invalid_settings", "failed to load settings", err)
	}
	o.settings = settings

	level := settings.LogLevel
	if cmd.Flags().Changed("log-level") {
		level = o.logLevel
	}
	InitializeGlobalLogger(level)
	return nil
}

func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return session.Invalidf("unexpected_argument", "unexpected argument %q for %q", args[0], cmd.CommandPath())
	}
	return nil
}

// NewRootCommand builds the command tree. factory is called at most once,
// after settings and logging are set up.
func NewRootCommand(factory AppFactory) *cobra.Command {
	o := &options{factory: factory}
	var (
		flags requestFlags
		stop  bool
	)

	rootCmd := &cobra.Command{
		Use:   "hotspot-backend",
		Short: "Run a Wi-Fi hotspot from this machine",
		Long: `hotspot-backend turns a Wi-Fi adapter into an access point sharing this
machine's internet connection. Starting keeps the process in the foreground
until the hotspot is stopped, the auto-off timer fires or a signal arrives.

Exit codes: 0 success, 1 blocked by a safety or hardware check,
2 configuration or tool failure, 3 invalid argument.`,
		Example: `  sudo hotspot-backend -s Cafe -p 'correct horse' -t 60
  sudo hotspot-backend --stop
  hotspot-backend status --watch`,
		Args:          noArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.loadSettings(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := o.application()
			if err != nil {
				return err
			}
			if stop {
				if name := flags.given(cmd); name != "" {
					return session.Invalidf("invalid_flag", "--stop cannot be combined with --%s", name)
				}
				return runStop(cmd, app)
			}
			req, err := flags.build(cmd, lastRequest(app.Config))
			if err != nil {
				return err
			}
			return runStart(cmd, app, req)
		},
	}
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return session.NewError(session.InvalidArgument, "invalid_flag", err.Error(), nil)
	})

	flags.register(rootCmd)
	rootCmd.Flags().BoolVar(&stop, "stop", false, "stop the running hotspot")
	rootCmd.PersistentFlags().StringVar(&o.logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(
		newStatusCommand(o),
		newInterfacesCommand(o),
		newCheckCommand(o),
		newVersionCommand(),
	)
	return rootCmd
}

func runStart(cmd *cobra.Command, app *App, req session.Request) error {
	if err := app.requireRoot(); err != nil {
		return err
	}
	ctx := cmd.Context()
	p := newPrinter(cmd.OutOrStdout())

	res, err := app.Manager.Start(ctx, req)
	if err != nil {
		return err
	}
	p.result(res)
	if res.Outcome != lifecycle.OutcomeStarted {
		return nil
	}

	if app.Config != nil {
		if err := app.Config.SaveLastRequest(req); err != nil {
			logger.WithError(err).Warn("Failed to save last used configuration")
		}
	}

	err = app.Manager.Supervise(ctx, res.State.SessionID)
	if err != nil {
		return err
	}
	p.printf("%s Hotspot stopped\n", p.good.Render("✓"))
	return nil
}

func runStop(cmd *cobra.Command, app *App) error {
	if err := app.requireRoot(); err != nil {
		return err
	}
	// a second signal must not abandon the revert half way
	res, err := app.Manager.Stop(context.WithoutCancel(cmd.Context()))
	if err != nil {
		return err
	}
	newPrinter(cmd.OutOrStdout()).result(res)
	return nil
}

func newVersionCommand() *cobra.Command {
	var asJSON, short bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case asJSON:
				return newPrinter(cmd.OutOrStdout()).json(GetFullVersionInfo())
			case short:
				fmt.Fprintln(cmd.OutOrStdout(), GetVersionInfo())
			default:
				fmt.Fprintln(cmd.OutOrStdout(), GetFormattedVersionInfo())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print build information as JSON")
	cmd.Flags().BoolVar(&short, "short", false, "print only the version line")
	cmd.MarkFlagsMutuallyExclusive("json", "short")
	return cmd
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	cmd := NewRootCommand(NewSystemApp)
	err := cmd.ExecuteContext(ctx)
	if err != nil {
		newPrinter(os.Stderr).failure(err)
	}
	return ExitCode(err)
}
