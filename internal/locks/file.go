package locks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/charlesng35/formgate/pkg/logger"
)

const fileLockRetryDelay = 20 * time.Millisecond

// FileLocker holds an advisory OS lock on a sidecar file, so the server and
// formgatectl on the same host exclude each other. All keys share the one file.
// Waiters inside one process queue on a MemoryLocker before polling the file.
type FileLocker struct {
	path  string
	local *MemoryLocker
	log   *zap.Logger
}

// SidecarPath returns the hidden lock file kept next to target.
func SidecarPath(target string) string {
	return filepath.Join(filepath.Dir(target), "."+filepath.Base(target)+".lock")
}

// NewFileLocker locks path, creating its directory when needed.
func NewFileLocker(path string) (*FileLocker, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("locks: lock file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("locks: create lock directory: %w", err)
	}
	return &FileLocker{path: path, local: NewMemoryLocker(), log: logger.WithModule("locks")}, nil
}

// Path returns the lock file location.
func (l *FileLocker) Path() string {
	return l.path
}

// Acquire polls for the exclusive file lock until it is held or ctx is done.
func (l *FileLocker) Acquire(ctx context.Context, key string) (func(), error) {
	releaseLocal, err := l.local.Acquire(ctx, key)
	if err != nil {
		return nil, err
	}

	// a fresh handle per acquisition; flock(2) excludes separate descriptors in one process too
	fl := flock.New(l.path)

	ok, err := fl.TryLockContext(ctx, fileLockRetryDelay)
	if err != nil || !ok {
		releaseLocal()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrNotAcquired, key, ctxErr)
		}
		if err == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotAcquired, key)
		}
		return nil, fmt.Errorf("locks: acquire %s: %w", key, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := fl.Unlock(); err != nil {
				l.log.Warn("release file lock failed", zap.String("path", l.path), zap.Error(err))
			}
			releaseLocal()
		})
	}, nil
}
