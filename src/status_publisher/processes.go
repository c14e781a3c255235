package status_publisher

import (
	"errors"
	"syscall"

	"golang.org/x/sys/unix"
)

// ProcessTable answers liveness questions about controller processes.
type ProcessTable interface {
	Alive(pid int) bool
	Signal(pid int, sig syscall.Signal) error
}

// SystemProcesses uses kill(2).
type SystemProcesses struct{}

var _ ProcessTable = SystemProcesses{}

// Alive reports whether pid exists. A process owned by another user still
// counts as alive.
func (SystemProcesses) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// Signal delivers sig to pid.
func (SystemProcesses) Signal(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return unix.ESRCH
	}
	return unix.Kill(pid, sig)
}
