package storage

import (
	"context"
	"sync"
)

type MemoryLedger struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{seen: map[string]struct{}{}}
}

func (l *MemoryLedger) Snapshot(context.Context) (map[string]struct{}, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]struct{}, len(l.seen))
	for k := range l.seen {
		out[k] = struct{}{}
	}
	return out, nil
}

func (l *MemoryLedger) Contains(_ context.Context, item string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.seen[item]
	return ok, nil
}

func (l *MemoryLedger) Commit(_ context.Context, items []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, item := range items {
		l.seen[item] = struct{}{}
	}
	return nil
}

func (l *MemoryLedger) Count(context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.seen), nil
}
