// Package lock provides the cross-process exclusive lease that guards a
// repository's mutating operations and the operation log's head-pointer
// read-modify-rename sequence. It is a thin wrapper over gofrs/flock,
// giving every mutation a repo-wide advisory file lock for its duration.
package lock

import (
	"context"
	"time"

	"github.com/gofrs/flock"

	"github.com/jjcore/jjcore/internal/jjerrors"
)

// Lease holds an exclusive advisory lock on a single file for the
// duration of a mutating operation.
type Lease struct {
	fl *flock.Flock
}

// New returns a Lease backed by a lock file at path. The file is created
// if it does not exist; it is never written to beyond flock's own use.
func New(path string) *Lease {
	return &Lease{fl: flock.New(path)}
}

// Acquire blocks (subject to ctx) until the exclusive lock is held.
func (l *Lease) Acquire(ctx context.Context) error {
	locked, err := l.fl.TryLockContext(ctx, 25*time.Millisecond)
	if err != nil {
		return jjerrors.Newf(jjerrors.CodeOperationConflict, "acquire repository lease: %v", err)
	}
	if !locked {
		return jjerrors.New(jjerrors.CodeOperationConflict, "could not acquire repository lease")
	}
	return nil
}

// Release drops the lock. Safe to call on a Lease that was never
// acquired.
func (l *Lease) Release() error {
	if !l.fl.Locked() {
		return nil
	}
	return l.fl.Unlock()
}

// WithLease acquires the lease, runs fn, and releases the lease
// regardless of fn's outcome.
func WithLease(ctx context.Context, path string, fn func() error) error {
	l := New(path)
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()
	return fn()
}
