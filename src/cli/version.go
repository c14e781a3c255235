package cli

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Build information. These variables are set via -ldflags at build time.
var (
	// Version is the semantic version (e.g., "v0.1.0")
	Version = "v0.0.0"

	// GitCommit is the git commit hash
	GitCommit = "unknown"

	// BuildTime is the build timestamp
	BuildTime = "unknown"

	// GoVersion is the Go version used to build
	GoVersion = runtime.Version()
)

var osReleasePath = "/etc/os-release"

// getOSVersion reads PRETTY_NAME from os-release
func getOSVersion() string {
	data, err := os.ReadFile(osReleasePath)
	if err != nil {
		return "unknown"
	}

	for _, line := range strings.Split(string(data), "\n") {
		if value, ok := strings.CutPrefix(line, "PRETTY_NAME="); ok {
			return strings.Trim(value, "'\"")
		}
	}

	return "unknown"
}

// GetVersionInfo returns a formatted version string
func GetVersionInfo() string {
	return fmt.Sprintf("hotspot-backend %s", Version)
}

// GetFullVersionInfo returns detailed version information as a map
func GetFullVersionInfo() map[string]string {
	return map[string]string{
		"version":    Version,
		"commit":     GitCommit,
		"build_time": BuildTime,
		"go_version": GoVersion,
		"os":         getOSVersion(),
	}
}

// GetFormattedVersionInfo returns a formatted multi-line version string
func GetFormattedVersionInfo() string {
	return fmt.Sprintf(`hotspot-backend
version: %s
commit: %s
build_time: %s
go_version: %s
os: %s`,
		Version, GitCommit, BuildTime, GoVersion, getOSVersion())
}
