package storage

import (
	"context"
	"sync"
	"time"

	"github.com/example/keygate/internal/clock"
)

type MemoryReplayGuard struct {
	mu      sync.Mutex
	clock   clock.Clock
	expires map[string]time.Time
}

func NewMemoryReplayGuard(c clock.Clock) *MemoryReplayGuard {
	if c == nil {
		c = clock.Real()
	}
	return &MemoryReplayGuard{clock: c, expires: map[string]time.Time{}}
}

func (g *MemoryReplayGuard) Reserve(_ context.Context, id string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return true, nil
	}
	now := g.clock.Now()
	g.mu.Lock()
	defer g.mu.Unlock()
	for k, exp := range g.expires {
		if !exp.After(now) {
			delete(g.expires, k)
		}
	}
	if _, held := g.expires[id]; held {
		return false, nil
	}
	g.expires[id] = now.Add(ttl)
	return true, nil
}

func (g *MemoryReplayGuard) Release(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.expires, id)
	return nil
}
