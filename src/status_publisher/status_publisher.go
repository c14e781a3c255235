// Package status_publisher writes the status record and PID marker that
// unprivileged front ends read to follow the hotspot.
package status_publisher

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/MintHotspot/hotspot-backend-go/src/session"
	"github.com/sirupsen/logrus"
)

// Module-level logger with pre-configured module field
var logger = logrus.WithField("module", "status_publisher")

// GetLogger returns a logger instance for the status_publisher module
func GetLogger() *logrus.Entry {
	return logger
}

const (
	DefaultStatusPath = "/tmp/hotspot_status.json"
	DefaultPIDPath    = "/tmp/hotspot_backend.pid"
)

// Record is the published status.
type Record struct {
	Phase     session.Phase `json:"phase"`
	Message   string        `json:"message"`
	Timestamp time.Time     `json:"timestamp"`
	ErrorCode string        `json:"errorCode,omitempty"`

	SessionID string     `json:"sessionId,omitempty"`
	PID       int        `json:"pid,omitempty"`
	Interface string     `json:"interface,omitempty"`
	SSID      string     `json:"ssid,omitempty"`
	Upstream  string     `json:"upstream,omitempty"`
	Clients   *int       `json:"clients,omitempty"`
	Deadline  *time.Time `json:"deadline,omitempty"`
	Warnings  []string   `json:"warnings,omitempty"`
}

// Publisher owns the status and PID files.
type Publisher struct {
	statusPath string
	pidPath    string
	now        func() time.Time
}

// NewPublisher creates a Publisher. Empty paths use the defaults.
func NewPublisher(statusPath, pidPath string) *Publisher {
	if statusPath == "" {
		statusPath = DefaultStatusPath
	}
	if pidPath == "" {
		pidPath = DefaultPIDPath
	}
	return &Publisher{statusPath: statusPath, pidPath: pidPath, now: time.Now}
}

// StatusPath returns the status file location.
func (p *Publisher) StatusPath() string {
	return p.statusPath
}

// Publish atomically replaces the status file. Readers never observe a
// partial record.
func (p *Publisher) Publish(rec Record) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = p.now()
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}
	if err := WriteFileAtomic(p.statusPath, data, 0644); err != nil {
		return fmt.Errorf("failed to publish status: %w", err)
	}
	logger.WithFields(logrus.Fields{
		"phase":   rec.Phase,
		"message": rec.Message,
	}).Debug("Status published")
	return nil
}

// Read returns the current record, or nil when none was published.
func (p *Publisher) Read() (*Record, error) {
	return ReadStatus(p.statusPath)
}

// ReadStatus reads a status file. A missing or empty file yields nil.
func ReadStatus(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("corrupt status file %s: %w", path, err)
	}
	return &rec, nil
}

// WritePID records pid as the controlling process.
func (p *Publisher) WritePID(pid int) error {
	return WriteFileAtomic(p.pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644)
}

// ReadPID returns the recorded controller, 0 when there is none.
func (p *Publisher) ReadPID() (int, error) {
	data, err := os.ReadFile(p.pidPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	s := strings.TrimSpace(string(data))
	if s == "" {
		return 0, nil
	}
	pid, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("corrupt pid file %s: %w", p.pidPath, err)
	}
	return pid, nil
}

// RemovePID deletes the PID marker if it still names pid.
func (p *Publisher) RemovePID(pid int) error {
	current, err := p.ReadPID()
	if err != nil || current != pid {
		return err
	}
	if err := os.Remove(p.pidPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// WriteFileAtomic writes data to a temporary file in the target directory
// and renames it over path.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
