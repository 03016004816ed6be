// Package history records served batches for the lifetime of the process.
package history

import (
	"sort"
	"sync"
	"time"

	"github.com/example/keygate/internal/clock"
)

type Record struct {
	ID        int64     `json:"id"`
	User      string    `json:"user"`
	Category  string    `json:"category"`
	Count     int       `json:"count"`
	CreatedAt time.Time `json:"created_at"`
}

type Totals struct {
	Batches int `json:"batches"`
	Items   int `json:"items"`
}

type Store interface {
	Add(user, category string, count int) Record
	// List pages records newest first; an empty user lists everyone.
	List(user string, page, pageSize int) []Record
	Totals() Totals
}

type MemoryStore struct {
	mu     sync.Mutex
	clock  clock.Clock
	nextID int64
	byID   map[int64]Record
	byUser map[string][]int64
	order  []int64
	totals Totals
}

func NewMemoryStore(c clock.Clock) *MemoryStore {
	if c == nil {
		c = clock.Real()
	}
	return &MemoryStore{clock: c, nextID: 1, byID: map[int64]Record{}, byUser: map[string][]int64{}}
}

func (s *MemoryStore) Add(user, category string, count int) Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := Record{ID: s.nextID, User: user, Category: category, Count: count, CreatedAt: s.clock.Now().UTC()}
	s.nextID++
	s.byID[r.ID] = r
	s.byUser[user] = append(s.byUser[user], r.ID)
	s.order = append(s.order, r.ID)
	s.totals.Batches++
	s.totals.Items += count
	return r
}

func (s *MemoryStore) List(user string, page, pageSize int) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	if user == "" {
		ids = append([]int64{}, s.order...)
	} else {
		ids = append([]int64{}, s.byUser[user]...)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	if pageSize <= 0 {
		pageSize = 20
	}
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= len(ids) {
		return nil
	}
	end := start + pageSize
	if end > len(ids) {
		end = len(ids)
	}
	out := make([]Record, 0, end-start)
	for _, id := range ids[start:end] {
		out = append(out, s.byID[id])
	}
	return out
}

func (s *MemoryStore) Totals() Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals
}
