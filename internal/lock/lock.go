// Package lock guards a shared dependency cache directory so two concurrent
// collection runs never write into it at the same time.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// FileName is the lock file created inside the guarded directory.
const FileName = ".covdiff.lock"

// ErrHeld is returned when another process already holds the lock.
var ErrHeld = errors.New("cache directory is locked by another run")

// FileLock is an exclusive advisory lock on a directory.
type FileLock struct {
	path string
	f    *os.File
}

// TryLock takes the lock on dir without blocking, creating dir if needed.
func TryLock(dir string) (*FileLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	path := filepath.Join(dir, FileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%s: %w", dir, ErrHeld)
		}
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}
	return &FileLock{path: path, f: f}, nil
}

// Path returns the lock file location.
func (l *FileLock) Path() string {
	return l.path
}

// Unlock releases the lock. Calling it more than once is a no-op.
func (l *FileLock) Unlock() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}
