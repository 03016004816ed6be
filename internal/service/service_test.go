package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/example/keygate/internal/access"
	"github.com/example/keygate/internal/clock"
	"github.com/example/keygate/internal/entitlement"
	"github.com/example/keygate/internal/expiry"
	"github.com/example/keygate/internal/fulfillment"
	"github.com/example/keygate/internal/history"
	"github.com/example/keygate/internal/lock"
	"github.com/example/keygate/internal/pool"
	"github.com/example/keygate/internal/storage"
)

type stringSource struct{ name, body string }

func (s stringSource) Name() string { return s.name }

func (s stringSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(s.body)), nil
}

func newService(t *testing.T) (*Service, *clock.FakeClock) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	clk := clock.Fake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	locker := lock.NewMemoryLocker()
	ledger := storage.NewMemoryLedger()
	acc := access.New(entitlement.NewFileStore("", logger), access.Options{AdminID: "admin", Clock: clk, Locker: locker, Log: logger})
	pools := pool.NewSet(logger, stringSource{name: "logs.txt", body: "roblox_1\nroblox_2\nfacebook_1\n"})
	return New(Deps{
		Access:     acc,
		Engine:     fulfillment.New(acc, ledger, pools, locker, 100, logger),
		Ledger:     ledger,
		History:    history.NewMemoryStore(clk),
		Categories: []string{"roblox", "facebook"},
		PoolCount:  pools.Len(),
	}), clk
}

func grant(t *testing.T, s *Service, user, duration string) {
	t.Helper()
	ctx := context.Background()
	key, err := s.Issue(ctx, "admin", duration)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := s.Redeem(ctx, user, key.ID); err != nil {
		t.Fatalf("redeem: %v", err)
	}
}

func TestFulfillRecordsHistoryAndStats(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)
	grant(t, s, "u", "lifetime")

	items, err := s.Fulfill(ctx, "u", "roblox", 0)
	if err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %+v", items)
	}
	records := s.History("u", 1, 10)
	if len(records) != 1 || records[0].Category != "roblox" || records[0].Count != 2 {
		t.Fatalf("unexpected history: %+v", records)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	want := Stats{Delivered: 2, Categories: 2, Pools: 1, Quota: 100, Batches: 1}
	if stats != want {
		t.Fatalf("expected %+v, got %+v", want, stats)
	}
}

func TestFulfillRejectsUnknownCategory(t *testing.T) {
	s, _ := newService(t)
	grant(t, s, "u", "1d")
	if _, err := s.Fulfill(context.Background(), "u", "ROBLOX", 1); !errors.Is(err, ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
	if got := s.History("", 1, 10); len(got) != 0 {
		t.Fatalf("expected no history, got %+v", got)
	}
}

func TestFulfillFailureIsNotRecorded(t *testing.T) {
	s, _ := newService(t)
	if _, err := s.Fulfill(context.Background(), "nobody", "roblox", 1); !errors.Is(err, fulfillment.ErrNoAccess) {
		t.Fatalf("expected ErrNoAccess, got %v", err)
	}
	stats, err := s.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Batches != 0 || stats.Delivered != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestAccessFollowsExpiry(t *testing.T) {
	ctx := context.Background()
	s, clk := newService(t)
	grant(t, s, "u", "1h")
	if ok, err := s.HasAccess(ctx, "u"); err != nil || !ok {
		t.Fatalf("expected access, got %v %v", ok, err)
	}
	clk.Advance(2 * time.Hour)
	if ok, err := s.HasAccess(ctx, "u"); err != nil || ok {
		t.Fatalf("expected expired access, got %v %v", ok, err)
	}
	rep, err := s.Users(ctx, "admin")
	if err != nil {
		t.Fatalf("users: %v", err)
	}
	if rep.Expired != 1 || rep.Active != 0 {
		t.Fatalf("unexpected report: %+v", rep)
	}
}

func TestCatalogAccessors(t *testing.T) {
	s, _ := newService(t)
	cats := s.Categories()
	cats[0] = "mutated"
	if s.Categories()[0] != "roblox" {
		t.Fatal("categories should be copied")
	}
	labels := s.DurationLabels()
	if labels[len(labels)-1] != expiry.Lifetime {
		t.Fatalf("unexpected labels: %+v", labels)
	}
}
