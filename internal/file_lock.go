package internal

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// lockRetryDelay is how often a waiting Acquire polls the lock.
const lockRetryDelay = 100 * time.Millisecond

// FileLock keeps two builders from writing the same output at once.
type FileLock struct {
	lock    *flock.Flock
	wait    time.Duration
	verbose bool
}

// NewFileLock creates a lock at path. Acquire waits up to wait for another
// holder to release it; a zero wait fails immediately.
func NewFileLock(path string, wait time.Duration, verbose bool) (*FileLock, error) {
	err := os.MkdirAll(filepath.Dir(path), 0o750)
	if err != nil {
		return nil, fmt.Errorf("creating lock file directory: %w", err)
	}

	if verbose {
		log.Printf("Initializing file lock at %s", path)
	}

	return &FileLock{
		lock:    flock.New(path),
		wait:    wait,
		verbose: verbose,
	}, nil
}

// Acquire takes the lock. The lock only guards against other processes;
// goroutines of the same process share it.
func (f *FileLock) Acquire(ctx context.Context) error {
	var ok bool
	var err error
	if f.wait > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, f.wait)
		defer cancel()
		ok, err = f.lock.TryLockContext(waitCtx, lockRetryDelay)
		if err != nil && waitCtx.Err() != nil && ctx.Err() == nil {
			// The wait ran out; report it like an immediate failure.
			ok, err = false, nil
		}
	} else {
		ok, err = f.lock.TryLock()
	}
	if err != nil {
		return fmt.Errorf("acquiring file lock at %s: %w", f.lock.Path(), err)
	}
	if !ok {
		return fmt.Errorf("lock %s already acquired by another process", f.lock.Path())
	}
	if f.verbose {
		log.Printf("Acquired lock file at %s", f.lock.Path())
	}
	return nil
}

// Release unlocks the file lock. The lock file itself is left in place.
func (f *FileLock) Release() error {
	if err := f.lock.Unlock(); err != nil {
		return fmt.Errorf("releasing file lock at %s: %w", f.lock.Path(), err)
	}
	if f.verbose {
		log.Printf("Lock file %s successfully released", f.lock.Path())
	}
	return nil
}
