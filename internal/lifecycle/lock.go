package lifecycle

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// ProcessLock is an advisory, file-based exclusive lock preventing two
// daemon processes from mutating the same on-disk git workspace
// concurrently.
type ProcessLock struct {
	path string
	file *os.File
	held bool
}

// NewProcessLock builds a lock at {dir}/gitops-sync.lock.
func NewProcessLock(dir string) *ProcessLock {
	return &ProcessLock{path: filepath.Join(dir, "gitops-sync.lock")}
}

// Acquire takes a non-blocking exclusive flock. If another process
// already holds it, Acquire returns an error immediately rather than
// blocking.
func (l *ProcessLock) Acquire() error {
	if l.held {
		return nil
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("lifecycle: create lock file %s: %w", l.path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return fmt.Errorf("lifecycle: another gitops-sync instance holds %s: %w", l.path, err)
	}
	l.file = f
	l.held = true
	return nil
}

// Release releases the lock. Safe to call multiple times.
func (l *ProcessLock) Release() error {
	if !l.held || l.file == nil {
		return nil
	}
	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	l.file.Close()
	l.file = nil
	l.held = false
	return err
}
