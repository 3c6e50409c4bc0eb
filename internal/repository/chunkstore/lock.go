package chunkstore

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/notedex/notedex/internal/domain"
)

const lockPollInterval = 25 * time.Millisecond

// unitLock is an exclusive per-unit file lock. Acquisition spins on
// O_EXCL creation until the timeout elapses; Release removes the file.
type unitLock struct {
	path string
}

// acquireLock blocks until the lock file can be created exclusively or
// the timeout expires, whichever comes first.
func acquireLock(ctx context.Context, path string, timeout time.Duration) (*unitLock, error) {
	deadline := time.Now().Add(timeout)
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return &unitLock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock %s: %w", path, err)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("lock %s held after %s: %w", path, timeout, domain.ErrLockTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

func (l *unitLock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release lock %s: %w", l.path, err)
	}
	return nil
}
