// Package service is the entry point the presentation layer calls: key
// issuance and redemption, access checks, fulfillment and admin reports.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/keygate/internal/access"
	"github.com/example/keygate/internal/expiry"
	"github.com/example/keygate/internal/fulfillment"
	"github.com/example/keygate/internal/history"
	"github.com/example/keygate/internal/storage"
)

var ErrUnknownCategory = errors.New("unknown category")

type Stats struct {
	Delivered  int `json:"delivered"`
	Categories int `json:"categories"`
	Pools      int `json:"pools"`
	Quota      int `json:"quota"`
	Batches    int `json:"batches_served"`
}

type Service struct {
	access     *access.Service
	engine     *fulfillment.Engine
	ledger     storage.Ledger
	history    history.Store
	categories []string
	known      map[string]struct{}
	pools      int
}

type Deps struct {
	Access     *access.Service
	Engine     *fulfillment.Engine
	Ledger     storage.Ledger
	History    history.Store
	Categories []string
	PoolCount  int
}

func New(d Deps) *Service {
	if d.History == nil {
		d.History = history.NewMemoryStore(nil)
	}
	known := make(map[string]struct{}, len(d.Categories))
	for _, c := range d.Categories {
		known[c] = struct{}{}
	}
	return &Service{
		access:     d.Access,
		engine:     d.Engine,
		ledger:     d.Ledger,
		history:    d.History,
		categories: append([]string(nil), d.Categories...),
		known:      known,
		pools:      d.PoolCount,
	}
}

func (s *Service) Issue(ctx context.Context, requestedBy, duration string) (access.Key, error) {
	return s.access.Issue(ctx, requestedBy, duration)
}

func (s *Service) Redeem(ctx context.Context, user, key string) (expiry.Expiry, error) {
	return s.access.Redeem(ctx, user, key)
}

func (s *Service) HasAccess(ctx context.Context, user string) (bool, error) {
	return s.access.HasAccess(ctx, user)
}

// Fulfill draws a batch for category. Categories outside the configured
// enumeration are refused before any access or pool work.
func (s *Service) Fulfill(ctx context.Context, user, category string, quota int) ([]string, error) {
	if _, ok := s.known[category]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	items, err := s.engine.Fulfill(ctx, user, category, quota)
	if err != nil {
		return nil, err
	}
	s.history.Add(user, category, len(items))
	return items, nil
}

func (s *Service) Users(ctx context.Context, requestedBy string) (access.UserReport, error) {
	return s.access.Users(ctx, requestedBy)
}

func (s *Service) History(user string, page, pageSize int) []history.Record {
	return s.history.List(user, page, pageSize)
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	delivered, err := s.ledger.Count(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("ledger count: %w", err)
	}
	return Stats{
		Delivered:  delivered,
		Categories: len(s.categories),
		Pools:      s.pools,
		Quota:      s.engine.DefaultQuota(),
		Batches:    s.history.Totals().Batches,
	}, nil
}

func (s *Service) Categories() []string {
	return append([]string(nil), s.categories...)
}

func (s *Service) DurationLabels() []string {
	return expiry.Labels()
}
