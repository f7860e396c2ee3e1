// Package cache implements the ephemeral key-value layer with TTL.
//
// Expiry is lazy: an entry is checked only when it is read, and an expired
// hit is deleted before absent is returned. There is no background sweep and
// no capacity bound.
package cache

import (
	"log/slog"
	"sync"
	"time"
)

type entry struct {
	value     string
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// Memory is a mutex-guarded in-process cache.
// It is safe for concurrent use by multiple goroutines.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	log     *slog.Logger
	metrics Metrics
	now     func() time.Time
}

type Option func(*options)

type options struct {
	metrics Metrics
	now     func() time.Time
}

// WithClock replaces time.Now, tests use it to simulate elapsed time.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithMetrics(m Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func buildOptions(opts []Option) options {
	o := options{metrics: NoopMetrics{}, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = NoopMetrics{}
	}
	return o
}

func NewMemory(log *slog.Logger, opts ...Option) *Memory {
	o := buildOptions(opts)
	return &Memory{
		entries: make(map[string]entry),
		log:     log,
		metrics: o.metrics,
		now:     o.now,
	}
}

// Set stores value until now+ttl, replacing any previous entry.
// A non-positive ttl is rejected since the entry would be born expired.
func (m *Memory) Set(key, value string, ttl time.Duration) bool {
	if ttl <= 0 {
		m.log.Warn("Cache set rejected, non positive ttl", "key", key, "ttl", ttl)
		m.metrics.Failure()
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry{value: value, expiresAt: m.now().Add(ttl)}
	m.metrics.Write()
	return true
}

func (m *Memory) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		m.metrics.Miss()
		return "", false
	}
	if e.expired(m.now()) {
		delete(m.entries, key)
		m.metrics.Expire()
		m.metrics.Miss()
		return "", false
	}
	m.metrics.Hit()
	return e.value, true
}

// Delete is idempotent, removing an absent key still succeeds.
func (m *Memory) Delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return true
}

// Len counts stored entries, expired ones included until they are read.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
