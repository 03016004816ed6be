// Package storage holds the dedup ledger: the durable record of every item
// ever delivered, across all users and pools.
package storage

import "context"

// Ledger is append-only. Callers that read a Snapshot and then Commit must
// serialize that sequence themselves.
type Ledger interface {
	Snapshot(ctx context.Context) (map[string]struct{}, error)
	Contains(ctx context.Context, item string) (bool, error)
	Commit(ctx context.Context, items []string) error
	Count(ctx context.Context) (int, error)
}
