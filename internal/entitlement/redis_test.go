package entitlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/example/keygate/internal/expiry"
	"github.com/example/keygate/pkg/keygateconfig"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "kg:"), srv
}

func TestRedisStoreKeyLifecycle(t *testing.T) {
	ctx := context.Background()
	s, srv := newRedisStore(t)
	exp := expiry.At(time.Unix(1800000000, 0))

	if err := s.PutUnredeemed(ctx, "NAME-00001", exp); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if !srv.Exists("kg:key:NAME-00001") {
		t.Fatal("expected key stored under prefix")
	}
	if err := s.PutUnredeemed(ctx, "NAME-00001", expiry.Never()); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected duplicate key, got %v", err)
	}
	if got, err := s.Peek(ctx, "NAME-00001"); err != nil || got.Time().Unix() != 1800000000 {
		t.Fatalf("peek: got %v err=%v", got, err)
	}
	if got, err := s.Consume(ctx, "NAME-00001"); err != nil || got.Time().Unix() != 1800000000 {
		t.Fatalf("consume: got %v err=%v", got, err)
	}
	if _, err := s.Consume(ctx, "NAME-00001"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found after consume, got %v", err)
	}
	if _, err := s.Peek(ctx, "NAME-00001"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on peek, got %v", err)
	}
}

func TestRedisStoreConcurrentConsumeSingleWinner(t *testing.T) {
	ctx := context.Background()
	s, _ := newRedisStore(t)
	if err := s.PutUnredeemed(ctx, "K", expiry.Never()); err != nil {
		t.Fatalf("put: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Consume(ctx, "K"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestRedisStoreGrants(t *testing.T) {
	ctx := context.Background()
	s, _ := newRedisStore(t)
	if _, err := s.EntitlementOf(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := s.Grant(ctx, "u1", expiry.At(time.Unix(1700000000, 0))); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := s.Grant(ctx, "u1", expiry.Never()); err != nil {
		t.Fatalf("grant overwrite: %v", err)
	}
	if err := s.Grant(ctx, "u2", expiry.At(time.Unix(1700000000, 0))); err != nil {
		t.Fatalf("grant u2: %v", err)
	}
	if exp, err := s.EntitlementOf(ctx, "u1"); err != nil || !exp.IsNever() {
		t.Fatalf("expected overwritten lifetime grant, got %v err=%v", exp, err)
	}
	all, err := s.Grants(ctx)
	if err != nil || len(all) != 2 || all["u2"].Time().Unix() != 1700000000 {
		t.Fatalf("unexpected grants: %v err=%v", all, err)
	}
	if err := s.Persist(ctx); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if err := s.Reload(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
}

func TestRedisStoreDefaultPrefix(t *testing.T) {
	if s := NewRedisStore(nil, ""); s.prefix != "keygate:" {
		t.Fatalf("expected default prefix, got %s", s.prefix)
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	s, srv := newRedisStore(t)
	srv.Close()
	if _, err := s.Consume(context.Background(), "K"); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestFromConfigRedis(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	store, err := FromConfig(context.Background(), keygateconfig.Entitlements{Backend: "redis"}, client, "kg:", nil)
	if err != nil {
		t.Fatalf("redis backend: %v", err)
	}
	if _, ok := store.(*RedisStore); !ok {
		t.Fatalf("expected RedisStore, got %T", store)
	}
}
