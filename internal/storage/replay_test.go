package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/example/keygate/internal/clock"
	"github.com/example/keygate/pkg/keygateconfig"
)

func TestMemoryReplayGuardReserveRelease(t *testing.T) {
	clk := clock.Fake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	guard := NewMemoryReplayGuard(clk)
	ctx := context.Background()

	ok, err := guard.Reserve(ctx, "r1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first reserve ok, got ok=%v err=%v", ok, err)
	}
	ok, err = guard.Reserve(ctx, "r1", time.Minute)
	if err != nil || ok {
		t.Fatalf("expected second reserve to be rejected, got ok=%v err=%v", ok, err)
	}
	if err := guard.Release(ctx, "r1"); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	ok, err = guard.Reserve(ctx, "r1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected reserve after release ok, got ok=%v err=%v", ok, err)
	}

	clk.Advance(time.Minute)
	ok, err = guard.Reserve(ctx, "r1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected reserve after ttl ok, got ok=%v err=%v", ok, err)
	}
}

func TestMemoryReplayGuardZeroTTL(t *testing.T) {
	guard := NewMemoryReplayGuard(nil)
	for i := 0; i < 2; i++ {
		if ok, err := guard.Reserve(context.Background(), "r", 0); err != nil || !ok {
			t.Fatalf("expected zero ttl to always pass, got ok=%v err=%v", ok, err)
		}
	}
}

func TestRedisReplayGuardReserveRelease(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	guard := NewRedisReplayGuard(client, "keygate:")

	ctx := context.Background()
	ok, err := guard.Reserve(ctx, "r1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected reserve ok, got ok=%v err=%v", ok, err)
	}
	if !srv.Exists("keygate:replay:r1") {
		t.Fatal("expected replay key in redis")
	}
	ok, err = guard.Reserve(ctx, "r1", time.Minute)
	if err != nil || ok {
		t.Fatalf("expected second reserve to fail, got ok=%v err=%v", ok, err)
	}
	srv.FastForward(2 * time.Minute)
	ok, err = guard.Reserve(ctx, "r1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected reserve after expiry ok, got ok=%v err=%v", ok, err)
	}
	if err := guard.Release(ctx, "r1"); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if srv.Exists("keygate:replay:r1") {
		t.Fatal("expected replay key released")
	}
}

func TestReplayFromConfig(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})

	cfg, err := ReplayFromConfig(keygateconfig.Replay{Backend: "redis", TTL: "30s"}, client, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Guard == nil || cfg.Label != "redis" || cfg.TTL != 30*time.Second {
		t.Fatalf("unexpected replay config: %+v", cfg)
	}

	cfg, err = ReplayFromConfig(keygateconfig.Replay{Backend: "memory"}, nil, "", nil)
	if err != nil || cfg.TTL != 5*time.Minute || cfg.Label != "memory" {
		t.Fatalf("unexpected memory config: %+v %v", cfg, err)
	}

	cfg, err = ReplayFromConfig(keygateconfig.Replay{Backend: "off"}, nil, "", nil)
	if err != nil || cfg.Guard != nil {
		t.Fatalf("expected disabled guard, got %+v %v", cfg, err)
	}

	if _, err := ReplayFromConfig(keygateconfig.Replay{Backend: "redis"}, nil, "", nil); err == nil {
		t.Fatal("expected error without client")
	}
	if _, err := ReplayFromConfig(keygateconfig.Replay{Backend: "memory", TTL: "soon"}, nil, "", nil); err == nil {
		t.Fatal("expected ttl parse error")
	}
	if _, err := ReplayFromConfig(keygateconfig.Replay{Backend: "tape"}, nil, "", nil); err == nil {
		t.Fatal("expected invalid backend error")
	}
}
