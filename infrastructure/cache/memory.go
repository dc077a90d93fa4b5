// Package cache implements ports.CacheStore for inference responses, in
// process memory or in Redis.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/ahrav/go-wattwise/internal/ports"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore is an in-process CacheStore with per-entry expiry. Expired
// entries are removed lazily on read and when the store grows past
// maxEntries.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	maxEntries int
	now        func() time.Time
}

var _ ports.CacheStore = (*MemoryStore)(nil)

// DefaultMaxEntries bounds a MemoryStore created with a non-positive limit.
const DefaultMaxEntries = 1024

// NewMemoryStore returns an empty store holding at most maxEntries entries.
func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryStore{
		entries:    make(map[string]memoryEntry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (m *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, ports.NewCacheError(key, "get", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return "", false, nil
	}
	if m.expired(e) {
		delete(m.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *MemoryStore) Set(ctx context.Context, key, value string, expiration time.Duration) error {
	if err := ctx.Err(); err != nil {
		return ports.NewCacheError(key, "set", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var expiresAt time.Time
	if expiration > 0 {
		expiresAt = m.now().Add(expiration)
	}
	if _, exists := m.entries[key]; !exists && len(m.entries) >= m.maxEntries {
		m.evictLocked()
	}
	m.entries[key] = memoryEntry{value: value, expiresAt: expiresAt}
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return ports.NewCacheError(key, "delete", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Len returns the number of stored entries, including expired ones not yet
// evicted.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MemoryStore) expired(e memoryEntry) bool {
	return !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt)
}

// evictLocked drops expired entries, then the entry closest to expiry if
// the store is still full. Entries without expiry are evicted last.
func (m *MemoryStore) evictLocked() {
	for k, e := range m.entries {
		if m.expired(e) {
			delete(m.entries, k)
		}
	}
	if len(m.entries) < m.maxEntries {
		return
	}

	var (
		victim string
		soonest time.Time
		found  bool
	)
	for k, e := range m.entries {
		switch {
		case !found:
			victim, soonest, found = k, e.expiresAt, true
		case soonest.IsZero() && !e.expiresAt.IsZero():
			victim, soonest = k, e.expiresAt
		case !e.expiresAt.IsZero() && e.expiresAt.Before(soonest):
			victim, soonest = k, e.expiresAt
		}
	}
	delete(m.entries, victim)
}
