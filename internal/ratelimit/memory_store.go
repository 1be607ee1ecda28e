package ratelimit

import (
	"context"
	"sync"
	"time"
)

type counter struct {
	count       int64
	windowStart time.Time
	resetAt     time.Time
}

// MemoryStore is a process-local Store. Counters are evicted once their window
// has passed, either lazily on the next hit or by the cleanup loop.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*counter
	now      func() time.Time
	done     chan struct{}
	stopOnce sync.Once
}

func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		counters: make(map[string]*counter),
		now:      now,
		done:     make(chan struct{}),
	}
}

func (m *MemoryStore) Hit(_ context.Context, key string, window time.Duration) (int64, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	c, exists := m.counters[key]
	if !exists || !now.Before(c.resetAt) {
		c = &counter{
			windowStart: now,
			resetAt:     now.Add(window),
		}
		m.counters[key] = c
	}
	c.count++

	return c.count, c.resetAt, nil
}

// StartCleanup evicts expired counters every interval until Stop is called.
func (m *MemoryStore) StartCleanup(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-m.done:
				return
			case <-ticker.C:
				m.evictExpired()
			}
		}
	}()
}

func (m *MemoryStore) evictExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, c := range m.counters {
		if !now.Before(c.resetAt) {
			delete(m.counters, key)
		}
	}
}

func (m *MemoryStore) Stop() {
	m.stopOnce.Do(func() { close(m.done) })
}

// Len returns the number of live counters.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.counters)
}
