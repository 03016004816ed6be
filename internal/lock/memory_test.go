package lock

import (
	"sync"
	"testing"
	"time"
)

func (m *MemoryLocker) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

func lockWithin(t *testing.T, l Locker, name string, d time.Duration) func() {
	t.Helper()
	got := make(chan func(), 1)
	go func() { got <- l.Lock(name) }()
	select {
	case unlock := <-got:
		return unlock
	case <-time.After(d):
		t.Fatalf("lock %q not acquired within %v", name, d)
		return nil
	}
}

func TestMemoryLockerLockRelease(t *testing.T) {
	l := NewMemoryLocker()
	unlock := l.Lock("ledger")
	other := lockWithin(t, l, "entitlements", time.Second)
	if l.size() != 2 {
		t.Fatalf("expected two held names, got %d", l.size())
	}
	other()
	unlock()
	unlock()

	again := lockWithin(t, l, "ledger", time.Second)
	again()
	if n := l.size(); n != 0 {
		t.Fatalf("expected idle names to be dropped, got %d", n)
	}
}

func TestMemoryLockerBlocksHeldName(t *testing.T) {
	l := NewMemoryLocker()
	unlock := l.Lock("ledger")

	acquired := make(chan struct{})
	go func() {
		release := l.Lock("ledger")
		close(acquired)
		release()
	}()
	select {
	case <-acquired:
		t.Fatal("second holder acquired a held name")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter not woken after release")
	}
}

func TestMemoryLockerSerializes(t *testing.T) {
	l := NewMemoryLocker()
	var wg sync.WaitGroup
	inside := 0
	maxInside := 0
	var mu sync.Mutex
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("ledger")
			defer unlock()
			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()
	if maxInside != 1 {
		t.Fatalf("expected serialized access, saw %d concurrent holders", maxInside)
	}
}
