// Package cache is an explicit TTL cache facade. Callers invoke Get/Put/
// Evict directly; there is no declarative interception layer in front of
// the repositories.
package cache

import (
	"sync"
	"time"

	"medguard.org/internal/obs"
)

// Cache is the facade consumed by the auth service and anything else that
// wants short-lived read-through caching.
type Cache interface {
	Get(key string) (any, bool)
	Put(key string, value any, ttl time.Duration)
	Evict(key string)
}

type item struct {
	value     any
	expiresAt time.Time
}

// Memory is an in-process Cache with lazy expiry. Hits and misses are
// counted in the metrics registry; the health evaluator reads the ratio.
type Memory struct {
	mu      sync.Mutex
	items   map[string]item
	now     func() time.Time
	metrics *obs.Registry
}

// Option configures a Memory cache.
type Option func(*Memory)

// WithClock overrides the time source (tests).
func WithClock(fn func() time.Time) Option {
	return func(m *Memory) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewMemory constructs an empty in-process cache.
func NewMemory(metrics *obs.Registry, opts ...Option) *Memory {
	m := &Memory{
		items:   make(map[string]item),
		now:     time.Now,
		metrics: metrics,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var _ Cache = (*Memory)(nil)

// Get returns the cached value for key. An entry past its TTL is removed
// and counted as a miss.
func (m *Memory) Get(key string) (any, bool) {
	m.mu.Lock()
	it, ok := m.items[key]
	if ok && m.now().After(it.expiresAt) {
		delete(m.items, key)
		ok = false
	}
	m.mu.Unlock()
	if ok {
		m.count("hit")
		return it.value, true
	}
	m.count("miss")
	return nil, false
}

// Put stores value under key for ttl. Non-positive ttl stores nothing.
func (m *Memory) Put(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	m.mu.Lock()
	m.items[key] = item{value: value, expiresAt: m.now().Add(ttl)}
	m.mu.Unlock()
}

// Evict removes key if present.
func (m *Memory) Evict(key string) {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
}

func (m *Memory) count(result string) {
	if m.metrics != nil {
		m.metrics.Increment("cache", obs.T("result", result))
	}
}
