package storage

import (
	"context"
	"time"
)

// ReplayGuard remembers request ids for a TTL so a retried mutation is
// refused instead of being served twice.
type ReplayGuard interface {
	// Reserve claims id; false means it is already held.
	Reserve(ctx context.Context, id string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, id string) error
}
