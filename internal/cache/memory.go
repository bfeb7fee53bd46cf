package cache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

type entry struct {
	value   []byte
	created time.Time
	ttl     time.Duration
}

func (e entry) expired(now time.Time) bool {
	return now.Sub(e.created) > e.ttl
}

// Memory is a process-local store. Expired entries are evicted lazily on read.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]entry
	defaultTTL time.Duration
	now        func() time.Time

	hits          int64
	misses        int64
	sets          int64
	invalidations int64
}

// MemoryOption customises a Memory store.
type MemoryOption func(*Memory)

// WithDefaultTTL overrides the ttl used when Set receives ttl <= 0.
func WithDefaultTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) {
		if ttl > 0 {
			m.defaultTTL = ttl
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemory builds an empty in-memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries:    make(map[string]entry),
		defaultTTL: DefaultTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		m.misses++
		return nil, ErrCacheMiss
	}
	if e.expired(m.now()) {
		delete(m.entries, key)
		m.misses++
		m.invalidations++
		return nil, ErrCacheMiss
	}
	m.hits++
	return e.value, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = entry{value: value, created: m.now(), ttl: ttl}
	m.sets++
	return nil
}

func (m *Memory) Invalidate(_ context.Context, pattern string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key := range m.entries {
		if strings.Contains(key, pattern) {
			delete(m.entries, key)
			removed++
		}
	}
	m.invalidations += int64(removed)
	return removed, nil
}

// Clear drops every entry and resets the counters.
func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]entry)
	m.hits, m.misses, m.sets, m.invalidations = 0, 0, 0, 0
	return nil
}

// Keys lists live keys in lexical order.
func (m *Memory) Keys(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	keys := make([]string, 0, len(m.entries))
	for key, e := range m.entries {
		if !e.expired(now) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) Stats(context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	live := 0
	for _, e := range m.entries {
		if !e.expired(now) {
			live++
		}
	}
	return Stats{
		Hits:          m.hits,
		Misses:        m.misses,
		Sets:          m.sets,
		Invalidations: m.invalidations,
		Total:         m.hits + m.misses,
		HitRate:       hitRate(m.hits, m.misses),
		CurrentSize:   live,
	}, nil
}
