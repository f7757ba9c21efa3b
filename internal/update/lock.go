package update

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// lockPollInterval is how often Lock retries a lock held by another process.
const lockPollInterval = 50 * time.Millisecond

// errLockHeld means another holder has the lock.
var errLockHeld = errors.New("lock held by another process")

// fileLock is an advisory, exclusive lock on a file. It excludes other
// processes and other opens of the same file within this process.
type fileLock struct {
	f *os.File
}

// tryLockFile takes the lock at path without waiting. It returns
// errLockHeld if someone else has it.
func tryLockFile(path string) (*fileLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	ok, err := tryLock(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	if !ok {
		_ = f.Close()
		return nil, errLockHeld
	}
	return &fileLock{f: f}, nil
}

// lockFile waits for the lock at path until ctx is done.
func lockFile(ctx context.Context, path string) (*fileLock, error) {
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		l, err := tryLockFile(path)
		if !errors.Is(err, errLockHeld) {
			return l, err
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for %s: %w", path, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *fileLock) unlock() {
	_ = unlock(l.f)
	_ = l.f.Close()
}
