// Package entitlement holds unredeemed keys and per-user grants.
//
// Grants are never swept: an expired grant stays stored and evaluates as
// expired on every lookup. Growth is bounded by the number of distinct users.
package entitlement

import (
	"context"
	"errors"

	"github.com/example/keygate/internal/expiry"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")
)

type Store interface {
	PutUnredeemed(ctx context.Context, key string, exp expiry.Expiry) error
	Peek(ctx context.Context, key string) (expiry.Expiry, error)
	// Consume removes key and returns its expiry. Exactly one of any set
	// of concurrent callers for the same key succeeds.
	Consume(ctx context.Context, key string) (expiry.Expiry, error)
	Grant(ctx context.Context, user string, exp expiry.Expiry) error
	EntitlementOf(ctx context.Context, user string) (expiry.Expiry, error)
	Grants(ctx context.Context) (map[string]expiry.Expiry, error)
	Persist(ctx context.Context) error
	Reload(ctx context.Context) error
}
