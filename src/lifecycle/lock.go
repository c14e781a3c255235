package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

const DefaultLockPath = "/tmp/hotspot_backend.lock"

const lockPollInterval = 50 * time.Millisecond

// Locker serializes state transitions across processes.
type Locker interface {
	Lock(ctx context.Context) (unlock func(), err error)
}

// FileLock is an exclusive flock(2) on a lock file. The kernel drops it
// when the holder dies, so a crash never leaves the machine locked.
type FileLock struct {
	path string
}

var _ Locker = (*FileLock)(nil)

// NewFileLock creates a lock at path, or at the default location.
func NewFileLock(path string) *FileLock {
	if path == "" {
		path = DefaultLockPath
	}
	return &FileLock{path: path}
}

// Lock blocks until the lock is held or ctx is done.
func (l *FileLock) Lock(ctx context.Context) (func(), error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	fd := int(f.Fd())

	for {
		err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return func() {
				_ = unix.Flock(fd, unix.LOCK_UN)
				f.Close()
			}, nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			f.Close()
			return nil, fmt.Errorf("failed to lock %s: %w", l.path, err)
		}

		select {
		case <-ctx.Done():
			f.Close()
			return nil, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}
