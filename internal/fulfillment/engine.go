// Package fulfillment selects undelivered pool records for entitled users.
package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/example/keygate/internal/lock"
	"github.com/example/keygate/internal/pool"
	"github.com/example/keygate/internal/storage"
)

var (
	ErrNoAccess = errors.New("no access")
	ErrEmpty    = errors.New("no matching items available")
)

// LedgerLock names the scope held from ledger snapshot through commit.
const LedgerLock = "ledger"

// Gate answers whether a user currently holds an entitlement.
type Gate interface {
	HasAccess(ctx context.Context, user string) (bool, error)
}

type Engine struct {
	gate         Gate
	ledger       storage.Ledger
	pools        *pool.Set
	locker       lock.Locker
	defaultQuota int
	log          logrus.FieldLogger
}

func New(gate Gate, ledger storage.Ledger, pools *pool.Set, locker lock.Locker, defaultQuota int, log logrus.FieldLogger) *Engine {
	if locker == nil {
		locker = lock.NewMemoryLocker()
	}
	if defaultQuota <= 0 {
		defaultQuota = 100
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{
		gate:         gate,
		ledger:       ledger,
		pools:        pools,
		locker:       locker,
		defaultQuota: defaultQuota,
		log:          log.WithField("component", "fulfillment"),
	}
}

func (e *Engine) DefaultQuota() int { return e.defaultQuota }

// Fulfill returns up to quota undelivered items matching category and
// records them in the ledger before returning. quota <= 0 uses the default.
// The scan itself is not cancellable; ctx is checked before it starts.
func (e *Engine) Fulfill(ctx context.Context, user, category string, quota int) ([]string, error) {
	ok, err := e.gate.HasAccess(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("access check: %w", err)
	}
	if !ok {
		return nil, ErrNoAccess
	}
	if quota <= 0 {
		quota = e.defaultQuota
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	unlock := e.locker.Lock(LedgerLock)
	defer unlock()

	delivered, err := e.ledger.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger snapshot: %w", err)
	}
	items, report := e.pools.Select(category, quota, func(item string) bool {
		_, seen := delivered[item]
		return seen
	})
	fields := logrus.Fields{"user": user, "category": category, "quota": quota, "pools_opened": len(report.Opened), "pools_skipped": len(report.Skipped)}
	if len(items) == 0 {
		e.log.WithFields(fields).Info("no undelivered items")
		return nil, ErrEmpty
	}
	if err := e.ledger.Commit(ctx, items); err != nil {
		return nil, fmt.Errorf("ledger commit: %w", err)
	}
	fields["count"] = len(items)
	e.log.WithFields(fields).Info("batch fulfilled")
	return items, nil
}
