package lock

import "sync"

// Locker hands out named mutual-exclusion scopes.
type Locker interface {
	// Lock blocks until name is free and returns the release func.
	Lock(name string) (unlock func())
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// MemoryLocker keeps one mutex per name. A name is dropped once nobody
// holds or waits on it.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: map[string]*entry{}}
}

func (m *MemoryLocker) Lock(name string) func() {
	e := m.ref(name)
	e.mu.Lock()
	return m.releaser(name, e)
}

func (m *MemoryLocker) ref(name string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.locks[name]
	if !ok {
		e = &entry{}
		m.locks[name] = e
	}
	e.refs++
	return e
}

func (m *MemoryLocker) unref(name string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.locks, name)
	}
}

func (m *MemoryLocker) releaser(name string, e *entry) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			m.unref(name, e)
		})
	}
}
