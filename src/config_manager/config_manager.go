// Package config_manager loads the backend settings and keeps the
// invoking user's last-used hotspot configuration.
package config_manager

import (
	"encoding/json"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"

	"github.com/MintHotspot/hotspot-backend-go/src/session"
	"github.com/MintHotspot/hotspot-backend-go/src/status_publisher"
	"github.com/hashicorp/go-version"
	"github.com/sirupsen/logrus"
)

// Module-level logger with pre-configured module field
var logger = logrus.WithField("module", "config_manager")

// GetLogger returns a logger instance for the config_manager module
func GetLogger() *logrus.Entry {
	return logger
}

// CurrentConfigVersion is the latest version of the config.json format.
const CurrentConfigVersion = "v0.1.0"

// legacyConfigVersion is assumed for files without config_version, which
// were written by the desktop front end.
const legacyConfigVersion = "v0.0.0"

// Config is the user-scoped configuration file. The passphrase is kept in
// cleartext; the file is readable by its owner only.
type Config struct {
	ConfigVersion string          `json:"config_version"`
	LastRequest   session.Request `json:"last_request"`
}

// NewDefaultConfig creates a Config with default values. There is no
// default passphrase.
func NewDefaultConfig() *Config {
	req := session.Request{SSID: "MintHotspot"}
	req.Normalize()
	return &Config{
		ConfigVersion: CurrentConfigVersion,
		LastRequest:   req,
	}
}

// Owner identifies the account whose config is managed.
type Owner struct {
	UID  int
	GID  int
	Home string
}

// ConfigManager reads and writes one config file.
type ConfigManager struct {
	FilePath string
	owner    *Owner
}

// NewConfigManager creates a ConfigManager for filePath. When owner is
// set and differs from the current user, written files are handed to it.
func NewConfigManager(filePath string, owner *Owner) *ConfigManager {
	return &ConfigManager{FilePath: filePath, owner: owner}
}

// NewUserConfigManager resolves the config location for the user who
// invoked the backend, seeing through sudo.
func NewUserConfigManager() (*ConfigManager, error) {
	owner, err := InvokingUser()
	if err != nil {
		return nil, err
	}
	if p := os.Getenv("HOTSPOT_CONFIG_PATH"); p != "" {
		return NewConfigManager(p, owner), nil
	}
	return NewConfigManager(filepath.Join(owner.Home, ".config", "hotspot", "config.json"), owner), nil
}

// InvokingUser returns SUDO_USER's account when running under sudo,
// otherwise the current user.
func InvokingUser() (*Owner, error) {
	var (
		u   *user.User
		err error
	)
	if name := os.Getenv("SUDO_USER"); name != "" && os.Geteuid() == 0 {
		u, err = user.Lookup(name)
	} else {
		u, err = user.Current()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve invoking user: %w", err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return nil, fmt.Errorf("unexpected uid %q: %w", u.Uid, err)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return nil, fmt.Errorf("unexpected gid %q: %w", u.Gid, err)
	}
	return &Owner{UID: uid, GID: gid, Home: u.HomeDir}, nil
}

// LoadConfig reads the config, migrating older layouts. It returns nil
// when the file does not exist or is empty.
func (cm *ConfigManager) LoadConfig() (*Config, error) {
	data, err := os.ReadFile(cm.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	config, migrated, err := decodeConfig(data)
	if err != nil {
		return nil, fmt.Errorf("error parsing config file %s: %w", cm.FilePath, err)
	}
	if migrated {
		logger.WithFields(logrus.Fields{
			"path":    cm.FilePath,
			"version": CurrentConfigVersion,
		}).Info("Migrated config file")
		if err := cm.SaveConfig(config); err != nil {
			logger.WithError(err).Warn("Failed to write migrated config")
		}
	}
	return config, nil
}

// SaveConfig atomically writes config with owner-only permissions.
func (cm *ConfigManager) SaveConfig(config *Config) error {
	config.ConfigVersion = CurrentConfigVersion
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(cm.FilePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := status_publisher.WriteFileAtomic(cm.FilePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	cm.chown(dir)
	cm.chown(cm.FilePath)
	return nil
}

// EnsureDefaultConfig loads the config, writing the defaults when there
// is none yet.
func (cm *ConfigManager) EnsureDefaultConfig() (*Config, error) {
	config, err := cm.LoadConfig()
	if err != nil {
		return nil, err
	}
	if config != nil {
		return config, nil
	}
	config = NewDefaultConfig()
	if err := cm.SaveConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveLastRequest records req as the last-used configuration.
func (cm *ConfigManager) SaveLastRequest(req session.Request) error {
	config, err := cm.LoadConfig()
	if err != nil || config == nil {
		config = NewDefaultConfig()
	}
	config.LastRequest = req
	return cm.SaveConfig(config)
}

func (cm *ConfigManager) chown(path string) {
	if cm.owner == nil || os.Geteuid() != 0 || cm.owner.UID == 0 {
		return
	}
	if err := os.Chown(path, cm.owner.UID, cm.owner.GID); err != nil {
		logger.WithError(err).WithField("path", path).Warn("Failed to hand config to invoking user")
	}
}

// decodeConfig parses any supported layout and reports whether it had to
// be migrated.
func decodeConfig(data []byte) (*Config, bool, error) {
	var probe struct {
		ConfigVersion string `json:"config_version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, false, err
	}
	raw := probe.ConfigVersion
	if raw == "" {
		raw = legacyConfigVersion
	}
	fileVersion, err := version.NewVersion(raw)
	if err != nil {
		return nil, false, fmt.Errorf("invalid config_version %q: %w", probe.ConfigVersion, err)
	}
	current := version.Must(version.NewVersion(CurrentConfigVersion))
	if fileVersion.GreaterThan(current) {
		return nil, false, fmt.Errorf("config version %s is newer than supported version %s", fileVersion, current)
	}

	if fileVersion.LessThan(version.Must(version.NewVersion("v0.1.0"))) {
		config, err := migrateGUILayout(data)
		return config, true, err
	}

	config := NewDefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, false, err
	}
	return config, false, nil
}
