// Package pidfile guards a daemon instance with an advisory lock on a file
// holding its process id.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/gofrs/flock"
)

// ErrLocked is returned by Acquire when another process holds the lock.
var ErrLocked = errors.New("pidfile: already locked by another process")

// PIDFile is a held lock. Release unlocks and removes it.
type PIDFile struct {
	lock *flock.Flock
}

// Acquire locks path without blocking and writes the current pid into it.
func Acquire(path string) (*PIDFile, error) {
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("pidfile: lock %q: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}

	pid := []byte(strconv.Itoa(os.Getpid()) + "\n")
	if err := os.WriteFile(path, pid, 0o644); err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("pidfile: write %q: %w", path, err)
	}
	return &PIDFile{lock: lock}, nil
}

// Path returns the locked file.
func (p *PIDFile) Path() string { return p.lock.Path() }

// Release removes the file and drops the lock.
func (p *PIDFile) Release() error {
	rmErr := os.Remove(p.lock.Path())
	if err := p.lock.Unlock(); err != nil {
		return fmt.Errorf("pidfile: unlock: %w", err)
	}
	if rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		return fmt.Errorf("pidfile: remove: %w", rmErr)
	}
	return nil
}
