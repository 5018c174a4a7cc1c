// Package lock is a contention-avoidance optimization ahead of the
// catalog's WorkerMessage row lock (section 5): when several
// Scheduler instances run side by side, each can take this lock
// before spending a transaction on a run that another instance
// already claimed. The catalog row stays the sole source of truth; a
// holder that crashes before releasing simply leaves the row
// reclaimable once the lease here expires.
package lock

import (
	"context"
	"time"
)

// Lock is a distributed mutual-exclusion primitive keyed by an
// arbitrary string.
type Lock interface {
	// Acquire attempts to take key for ttl, returning false if another
	// holder already has it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release gives up key early. Holders are not tracked: Release
	// frees key whichever holder acquired it, and is a no-op only when
	// key is not held at all.
	Release(ctx context.Context, key string) error
}
