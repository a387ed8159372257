package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// Manager hands out named advisory locks backed by files in a run directory.
// Locks are process-wide: two processes (or two goroutines holding separate
// file descriptors) contending for the same name serialize on flock(2).
type Manager struct {
	dir string
}

// NewManager returns a lock manager rooted at the given directory.
func NewManager(dir string) *Manager {
	return &Manager{dir: dir}
}

// Lock is a held advisory lock. Release must be called on every exit path.
type Lock struct {
	file *os.File
}

// Acquire blocks until the named lock is held and returns a handle that
// releases it. The lock file is created if absent.
func (m *Manager) Acquire(name string) (*Lock, error) {
	path := filepath.Join(m.dir, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	return &Lock{file: file}, nil
}

// Release unlocks and closes the underlying lock file. Calling Release on an
// already-released lock is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	unlockErr := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	if unlockErr != nil {
		return unlockErr
	}
	return closeErr
}
