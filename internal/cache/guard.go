package cache

import (
	"context"
	"time"
)

// Guard tracks which keys have work in flight.
// The memory implementation covers one process; the Redis implementation
// holds a lease shared by every instance pointing at the same Redis.
type Guard interface {
	// TryAcquire marks key as in flight and returns the owner token for the lease.
	// It reports false when key is already held.
	TryAcquire(ctx context.Context, key string) (token string, ok bool, err error)

	// Release clears key if token still owns its lease. A stale or unknown
	// token is a no-op, so an expired holder never drops a newer lease.
	Release(ctx context.Context, key, token string) error

	// InFlight returns the number of keys this guard currently holds.
	InFlight() int
}

// DefaultLeaseTTL bounds how long a key stays held if Release is never called.
const DefaultLeaseTTL = 15 * time.Minute
