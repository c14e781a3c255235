// Package cli is the hotspot-backend command line: flag parsing, the
// cobra command tree and the mapping of errors to exit codes.
package cli

import (
	"context"

	"github.com/MintHotspot/hotspot-backend-go/src/command_runner"
	"github.com/MintHotspot/hotspot-backend-go/src/config_manager"
	"github.com/MintHotspot/hotspot-backend-go/src/inventory"
	"github.com/MintHotspot/hotspot-backend-go/src/lifecycle"
	"github.com/MintHotspot/hotspot-backend-go/src/orchestrator"
	"github.com/MintHotspot/hotspot-backend-go/src/safety"
	"github.com/MintHotspot/hotspot-backend-go/src/session"
	"github.com/MintHotspot/hotspot-backend-go/src/status_publisher"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Module-level logger with pre-configured module field
var logger = logrus.WithField("module", "cli")

// GetLogger returns a logger instance for the cli module
func GetLogger() *logrus.Entry {
	return logger
}

// Controller is the part of the lifecycle the commands drive.
type Controller interface {
	Start(ctx context.Context, req session.Request) (*lifecycle.Result, error)
	Stop(ctx context.Context) (*lifecycle.Result, error)
	Supervise(ctx context.Context, sessionID string) error
	Status() (*lifecycle.Snapshot, error)
	Check(ctx context.Context, req session.Request) (*safety.Report, *inventory.Inventory, error)
}

var _ Controller = (*lifecycle.Manager)(nil)

// App bundles what a command needs.
type App struct {
	Settings  *config_manager.Settings
	Config    *config_manager.ConfigManager
	Manager   Controller
	Inventory inventory.Provider
	Processes status_publisher.ProcessTable
	IsRoot    func() bool
}

// AppFactory builds the App once settings are known.
type AppFactory func(settings *config_manager.Settings) (*App, error)

// NewSystemApp wires the real collaborators.
func NewSystemApp(settings *config_manager.Settings) (*App, error) {
	cm, err := config_manager.NewUserConfigManager()
	if err != nil {
		return nil, err
	}

	runner := command_runner.NewExecRunner(settings.ToolTimeout, settings.Tools)
	lister := inventory.NewSystemLister(runner)
	manager := lifecycle.New(lifecycle.Components{
		Store:     lifecycle.NewStateStore(settings.StateFile),
		Lock:      lifecycle.NewFileLock(settings.LockFile),
		Inventory: lister,
		Configurator: orchestrator.New(runner, orchestrator.Settings{
			ProfileName:    settings.ProfileName,
			HotspotAddress: settings.HotspotAddress,
		}),
		Publisher: status_publisher.NewPublisher(settings.StatusFile, settings.PIDFile),
	}, lifecycle.Settings{
		LockTimeout:     settings.LockTimeout,
		StopGracePeriod: settings.StopGracePeriod,
		MonitorInterval: settings.MonitorInterval,
	})

	return &App{
		Settings:  settings,
		Config:    cm,
		Manager:   manager,
		Inventory: lister,
		Processes: status_publisher.SystemProcesses{},
		IsRoot:    func() bool { return unix.Geteuid() == 0 },
	}, nil
}

// requireRoot fails unless the process may change network configuration.
func (a *App) requireRoot() error {
	if a.IsRoot != nil && !a.IsRoot() {
		return session.NewError(session.ConfigurationError, "not_root",
			"changing the hotspot requires root privileges", nil)
	}
	return nil
}
