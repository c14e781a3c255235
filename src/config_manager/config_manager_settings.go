package config_manager

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSettingsPath is read when HOTSPOT_SETTINGS_PATH is unset.
const DefaultSettingsPath = "/etc/hotspot/backend.yaml"

// Settings are the backend's own knobs. Every field has a default, so the
// file is optional.
type Settings struct {
	LogLevel string `yaml:"log_level"`

	StatusFile string `yaml:"status_file"`
	PIDFile    string `yaml:"pid_file"`
	StateFile  string `yaml:"state_file"`
	LockFile   string `yaml:"lock_file"`

	ProfileName    string `yaml:"profile_name"`
	HotspotAddress string `yaml:"hotspot_address"`

	ToolTimeout     time.Duration `yaml:"tool_timeout"`
	LockTimeout     time.Duration `yaml:"lock_timeout"`
	StopGracePeriod time.Duration `yaml:"stop_grace_period"`
	MonitorInterval time.Duration `yaml:"monitor_interval"`

	// Tools maps a tool name (nmcli, iw, iptables, sysctl) to its path.
	Tools map[string]string `yaml:"tools"`
}

// NewDefaultSettings returns the built-in settings.
func NewDefaultSettings() *Settings {
	return &Settings{
		LogLevel:        "info",
		StatusFile:      "/tmp/hotspot_status.json",
		PIDFile:         "/tmp/hotspot_backend.pid",
		StateFile:       "/tmp/hotspot_state.json",
		LockFile:        "/tmp/hotspot_backend.lock",
		ProfileName:     "temp_hotspot_con",
		HotspotAddress:  "10.42.0.1/24",
		ToolTimeout:     20 * time.Second,
		LockTimeout:     90 * time.Second,
		StopGracePeriod: 10 * time.Second,
		MonitorInterval: 5 * time.Second,
		Tools:           map[string]string{},
	}
}

// SettingsPath returns the settings location.
func SettingsPath() string {
	if p := os.Getenv("HOTSPOT_SETTINGS_PATH"); p != "" {
		return p
	}
	return DefaultSettingsPath
}

// LoadSettings reads settings from filePath over the defaults. A missing
// or empty file yields the defaults.
func LoadSettings(filePath string) (*Settings, error) {
	settings := NewDefaultSettings()
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return nil, fmt.Errorf("error reading settings file: %w", err)
	}
	if len(data) == 0 {
		return settings, nil
	}
	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("error parsing settings file %s: %w", filePath, err)
	}
	if err := settings.validate(); err != nil {
		return nil, fmt.Errorf("invalid settings file %s: %w", filePath, err)
	}
	if settings.Tools == nil {
		settings.Tools = map[string]string{}
	}
	return settings, nil
}

func (s *Settings) validate() error {
	for name, d := range map[string]time.Duration{
		"tool_timeout":      s.ToolTimeout,
		"lock_timeout":      s.LockTimeout,
		"stop_grace_period": s.StopGracePeriod,
		"monitor_interval":  s.MonitorInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	for name, path := range map[string]string{
		"status_file": s.StatusFile,
		"pid_file":    s.PIDFile,
		"state_file":  s.StateFile,
		"lock_file":   s.LockFile,
	} {
		if path == "" {
			return fmt.Errorf("%s must not be empty", name)
		}
	}
	return nil
}
