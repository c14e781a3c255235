// Package command_runner executes the external network tools the backend
// drives (nmcli, iw, iptables, sysctl) with a bounded timeout.
package command_runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Module-level logger with pre-configured module field
var logger = logrus.WithField("module", "command_runner")

// GetLogger returns a logger instance for the command_runner module
func GetLogger() *logrus.Entry {
	return logger
}

// DefaultTimeout bounds every tool invocation unless the caller's context
// expires first.
const DefaultTimeout = 20 * time.Second

// Runner runs a command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ToolError describes a failed invocation.
type ToolError struct {
	Command  string
	ExitCode int
	Stderr   string
	TimedOut bool
	Cause    error
}

func (e *ToolError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("%s timed out", e.Command)
	}
	msg := fmt.Sprintf("%s failed (exit %d)", e.Command, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *ToolError) Unwrap() error {
	return e.Cause
}

// IsTimeout reports whether err is a tool timeout.
func IsTimeout(err error) bool {
	var te *ToolError
	return errors.As(err, &te) && te.TimedOut
}

// StderrContains reports whether err is a tool failure whose stderr
// contains substr.
func StderrContains(err error, substr string) bool {
	var te *ToolError
	return errors.As(err, &te) && strings.Contains(te.Stderr, substr)
}

// ExecRunner runs real binaries.
type ExecRunner struct {
	Timeout time.Duration
	// Paths maps a tool name to an absolute binary path.
	Paths map[string]string
}

var _ Runner = (*ExecRunner)(nil)

// NewExecRunner creates a runner with the given timeout and path overrides.
func NewExecRunner(timeout time.Duration, paths map[string]string) *ExecRunner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ExecRunner{Timeout: timeout, Paths: paths}
}

// Run executes name with args. The process is killed when the timeout or
// ctx expires.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	bin := name
	if p, ok := r.Paths[name]; ok && p != "" {
		bin = p
	}

	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	display := name + " " + strings.Join(Redact(args), " ")
	logger.WithField("command", display).Debug("Executing command")

	start := time.Now()
	err := cmd.Run()
	if err == nil {
		logger.WithFields(logrus.Fields{
			"command":  display,
			"duration": time.Since(start).String(),
		}).Debug("Command finished")
		return stdout.String(), nil
	}

	te := &ToolError{Command: display, Stderr: stderr.String(), ExitCode: -1, Cause: err}
	if ctx.Err() != nil {
		te.TimedOut = errors.Is(ctx.Err(), context.DeadlineExceeded)
		te.Cause = ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		te.ExitCode = exitErr.ExitCode()
	}
	logger.WithFields(logrus.Fields{
		"command":   display,
		"exit_code": te.ExitCode,
		"timed_out": te.TimedOut,
		"stderr":    strings.TrimSpace(te.Stderr),
	}).Debug("Command failed")
	return stdout.String(), te
}

// secretFlags are argument names whose following value is never logged.
var secretFlags = map[string]bool{
	"wifi-sec.psk":                 true,
	"802-11-wireless-security.psk": true,
}

// Redact returns a copy of args with secret values masked.
func Redact(args []string) []string {
	out := make([]string, len(args))
	copy(out, args)
	for i := 0; i < len(out)-1; i++ {
		if secretFlags[out[i]] {
			out[i+1] = "******"
		}
	}
	return out
}
