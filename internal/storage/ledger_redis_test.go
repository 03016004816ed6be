package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisLedgerCommitAndSnapshot(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	l := NewRedisLedger(client, "kg:")
	ctx := context.Background()

	if err := l.Commit(ctx, []string{"x:1", "y:2", "x:1"}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := l.Commit(ctx, nil); err != nil {
		t.Fatalf("empty commit: %v", err)
	}
	if ok, err := srv.SIsMember("kg:delivered", "y:2"); err != nil || !ok {
		t.Fatalf("expected y:2 in redis set, ok=%v err=%v", ok, err)
	}
	if ok, err := l.Contains(ctx, "x:1"); err != nil || !ok {
		t.Fatalf("expected x:1, ok=%v err=%v", ok, err)
	}
	if ok, _ := l.Contains(ctx, "z:3"); ok {
		t.Fatal("did not expect z:3")
	}
	snap, err := l.Snapshot(ctx)
	if err != nil || len(snap) != 2 {
		t.Fatalf("unexpected snapshot %v err=%v", snap, err)
	}
	if n, err := l.Count(ctx); err != nil || n != 2 {
		t.Fatalf("expected count 2, got %d err=%v", n, err)
	}
}

func TestNewRedisLedgerDefaultPrefix(t *testing.T) {
	if l := NewRedisLedger(nil, ""); l.key != "keygate:delivered" {
		t.Fatalf("expected default key, got %s", l.key)
	}
}
