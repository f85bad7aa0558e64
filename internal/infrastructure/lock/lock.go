// Package lock keeps two processes on one host from running batches against
// the authority at the same time.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/kirillkom/prn-reconciler/internal/core/domain"
)

type Lock struct {
	path string
	file *flock.Flock
}

// Acquire takes the lock at path without blocking. An empty path returns a
// no-op lock.
func Acquire(path string) (*Lock, error) {
	if path == "" {
		return &Lock{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	file := flock.New(path)
	ok, err := file.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	if !ok {
		return nil, domain.WrapError(domain.ErrBatchRunning, "acquire lock", fmt.Errorf("%s is held by another process", path))
	}
	return &Lock{path: path, file: file}, nil
}

func (l *Lock) Path() string {
	return l.path
}

func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := l.file.Unlock(); err != nil {
		return fmt.Errorf("release lock %s: %w", l.path, err)
	}
	return nil
}

// IsHeld reports whether err came from a lock owned by someone else.
func IsHeld(err error) bool {
	return errors.Is(err, domain.ErrBatchRunning)
}
