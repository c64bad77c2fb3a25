package cache

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL applies when a cache is created with a non-positive ttl.
const DefaultTTL = 5 * time.Minute

// Cache stores rendered read models by key, next to per-owner generation
// counters that writers bump to retire every key built before the write.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key string, value string) error

	// Generation returns the counter stored at key, zero if it was never bumped.
	Generation(ctx context.Context, key string) (int64, error)
	// Bump increments the counter stored at key and returns the new value.
	Bump(ctx context.Context, key string) (int64, error)
}

type memoryEntry struct {
	value   string
	expires time.Time
}

// MemoryCache is a process-local Cache with a fixed time to live. Expired
// entries are dropped on read and swept out at most once per ttl on write.
type MemoryCache struct {
	mu        sync.Mutex
	ttl       time.Duration
	data      map[string]memoryEntry
	counters  map[string]int64
	nextPurge time.Time
	now       func() time.Time
}

// NewMemoryCache creates a MemoryCache. A non-positive ttl means DefaultTTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{
		ttl:      ttl,
		data:     make(map[string]memoryEntry),
		counters: make(map[string]int64),
		now:      time.Now,
	}
}

func (m *MemoryCache) Get(_ context.Context, key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.data[key]
	if !ok {
		return "", false
	}
	if m.now().After(e.expires) {
		delete(m.data, key)
		return "", false
	}
	return e.value, true
}

func (m *MemoryCache) Set(_ context.Context, key string, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if now.After(m.nextPurge) {
		for k, e := range m.data {
			if now.After(e.expires) {
				delete(m.data, k)
			}
		}
		m.nextPurge = now.Add(m.ttl)
	}
	m.data[key] = memoryEntry{value: value, expires: now.Add(m.ttl)}
	return nil
}

func (m *MemoryCache) Generation(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[key], nil
}

func (m *MemoryCache) Bump(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[key]++
	return m.counters[key], nil
}
