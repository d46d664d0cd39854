package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

var (
	// ErrLockTimeout is returned when acquiring a lock times out.
	ErrLockTimeout = fmt.Errorf("timeout acquiring lock")
	// ErrDirRequired is returned when a directory path is empty.
	ErrDirRequired = fmt.Errorf("directory is required")
	// ErrNilLock is returned when a nil lock handle is provided to Release.
	ErrNilLock = fmt.Errorf("nil lock handle")
)

const (
	// LockFileName is the advisory lock file placed in a directory while a
	// mutating operation runs against it.
	LockFileName = ".file-manager.lock"

	// shortPollInterval is the interval to sleep when polling for a lock.
	shortPollInterval = 10 * time.Millisecond
)

// DirLock represents a handle to an OS-level lock on a directory.
type DirLock struct {
	Dir   string
	flock *flock.Flock
}

// Manager defines the methods a lock manager should implement. Acquire
// obtains an exclusive OS-level lock on a directory and returns a handle
// which must be provided back to Release.
type Manager interface {
	Acquire(dir string, timeout time.Duration) (*DirLock, error)
	Release(l *DirLock) error
	SweepStale(dirs []string, maxAge time.Duration) int
}

// FlockManager implements Manager with github.com/gofrs/flock.
type FlockManager struct{}

// NewFlockManager initializes and returns a new FlockManager.
func NewFlockManager() *FlockManager {
	return &FlockManager{}
}

var _ Manager = (*FlockManager)(nil)

// Acquire attempts to acquire an exclusive OS-level lock for the given
// directory within the timeout.
func (m *FlockManager) Acquire(dir string, timeout time.Duration) (*DirLock, error) {
	if dir == "" {
		return nil, ErrDirRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	fl := flock.New(filepath.Join(dir, LockFileName))
	locked, err := fl.TryLockContext(ctx, shortPollInterval)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrLockTimeout
		}
		return nil, fmt.Errorf("error acquiring lock for %s: %w", dir, err)
	}
	if !locked {
		return nil, ErrLockTimeout
	}
	return &DirLock{Dir: dir, flock: fl}, nil
}

// Release releases the given OS-level lock.
func (m *FlockManager) Release(l *DirLock) error {
	if l == nil {
		return ErrNilLock
	}
	if l.flock != nil {
		_ = l.flock.Unlock()
	}
	return nil
}

// SweepStale removes abandoned lock files in the given directories. A lock
// file is removed only when it is older than maxAge and no process holds it
// (a non-blocking TryLock succeeds). Returns the number of files removed.
func (m *FlockManager) SweepStale(dirs []string, maxAge time.Duration) int {
	removed := 0
	for _, dir := range dirs {
		path := filepath.Join(dir, LockFileName)
		info, err := os.Stat(path)
		if err != nil || time.Since(info.ModTime()) < maxAge {
			continue
		}
		fl := flock.New(path)
		held, err := fl.TryLock()
		if err != nil || !held {
			continue
		}
		if err := os.Remove(path); err == nil {
			removed++
		}
		_ = fl.Unlock()
	}
	return removed
}
