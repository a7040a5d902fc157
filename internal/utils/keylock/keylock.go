// Package keylock provides a mutex per int64 key.
package keylock

import (
	"context"
	"sync"
)

type entry struct {
	sem  chan struct{}
	refs int
}

// Map hands out exclusive access per key. Entries are dropped once no
// goroutine holds or waits for them, so the map stays bounded by concurrency.
type Map struct {
	mu      sync.Mutex
	entries map[int64]*entry
}

// New creates an empty lock map.
func New() *Map {
	return &Map{entries: make(map[int64]*entry)}
}

// Lock blocks until key is free or ctx is done.
func (m *Map) Lock(ctx context.Context, key int64) error {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		m.entries[key] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		m.release(key, e)
		return ctx.Err()
	}
}

// Unlock frees key. Calling it without holding key panics.
func (m *Map) Unlock(key int64) {
	m.mu.Lock()
	e, ok := m.entries[key]
	m.mu.Unlock()
	if !ok {
		panic("keylock: unlock of unlocked key")
	}
	select {
	case <-e.sem:
	default:
		panic("keylock: unlock of unlocked key")
	}
	m.release(key, e)
}

func (m *Map) release(key int64, e *entry) {
	m.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(m.entries, key)
	}
	m.mu.Unlock()
}

// Len returns the number of keys currently held or awaited.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
