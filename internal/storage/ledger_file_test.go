package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileLedgerMissingFileIsEmpty(t *testing.T) {
	l := NewFileLedger(filepath.Join(t.TempDir(), "used_accounts.txt"))
	ctx := context.Background()
	snap, err := l.Snapshot(ctx)
	if err != nil || len(snap) != 0 {
		t.Fatalf("expected empty snapshot, got %v err=%v", snap, err)
	}
	if n, err := l.Count(ctx); err != nil || n != 0 {
		t.Fatalf("expected zero count, got %d err=%v", n, err)
	}
}

func TestFileLedgerCommitAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "used_accounts.txt")
	l := NewFileLedger(path)
	ctx := context.Background()

	if err := l.Commit(ctx, []string{"a:1", "b:2"}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := l.Commit(ctx, []string{"c:3"}); err != nil {
		t.Fatalf("second commit: %v", err)
	}
	if err := l.Commit(ctx, nil); err != nil {
		t.Fatalf("empty commit: %v", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(content) != "a:1\nb:2\nc:3\n" {
		t.Fatalf("unexpected ledger contents: %q", content)
	}
	if ok, _ := l.Contains(ctx, "b:2"); !ok {
		t.Fatal("expected b:2 in ledger")
	}
	if ok, _ := l.Contains(ctx, "d:4"); ok {
		t.Fatal("did not expect d:4 in ledger")
	}
	if n, _ := l.Count(ctx); n != 3 {
		t.Fatalf("expected 3 items, got %d", n)
	}
}

func TestFileLedgerRepairsMissingTrailingNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "used_accounts.txt")
	if err := os.WriteFile(path, []byte("old:1\r\n\nold:2"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	l := NewFileLedger(path)
	ctx := context.Background()
	if err := l.Commit(ctx, []string{"new:3"}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	snap, err := l.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	for _, want := range []string{"old:1", "old:2", "new:3"} {
		if _, ok := snap[want]; !ok {
			t.Fatalf("expected %q in snapshot %v", want, snap)
		}
	}
	if len(snap) != 3 {
		t.Fatalf("expected 3 items, got %v", snap)
	}
}

func TestFileLedgerReadsPastOversizedLine(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "used_accounts.txt")
	body := "roblox_a:1\n" + strings.Repeat("x", 2<<20) + "\nroblox_b:2\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}
	l := NewFileLedger(path)

	snap, err := l.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap) != 2 {
		t.Fatalf("expected two items, got %d", len(snap))
	}
	if _, ok := snap["roblox_b:2"]; !ok {
		t.Fatal("item after oversized line missing")
	}
	if ok, err := l.Contains(ctx, "roblox_b:2"); err != nil || !ok {
		t.Fatalf("contains: %v %v", ok, err)
	}
	if n, err := l.Count(ctx); err != nil || n != 2 {
		t.Fatalf("count: %d %v", n, err)
	}
}
