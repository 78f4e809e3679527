package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry[R any] struct {
	value    []R
	storedAt time.Time
}

// Memory is an in-process TTL store. Eviction is lazy: expired entries are
// treated as absent on read and dropped in passing; no background sweep.
type Memory[R any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry[R]
}

// MemoryOption configures a Memory store.
type MemoryOption[R any] func(*Memory[R])

// WithClock overrides the time source, for tests.
func WithClock[R any](now func() time.Time) MemoryOption[R] {
	return func(m *Memory[R]) {
		m.now = now
	}
}

// NewMemory creates an in-memory store whose entries expire after ttl.
func NewMemory[R any](ttl time.Duration, opts ...MemoryOption[R]) *Memory[R] {
	m := &Memory[R]{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry[R]),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the value stored under key if it has not expired.
func (m *Memory[R]) Get(_ context.Context, key string) ([]R, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if m.now().Sub(entry.storedAt) >= m.ttl {
		delete(m.entries, key)
		return nil, false
	}
	return entry.value, true
}

// Set stores value under key, replacing any earlier entry.
func (m *Memory[R]) Set(_ context.Context, key string, value []R) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memoryEntry[R]{value: value, storedAt: m.now()}
}
