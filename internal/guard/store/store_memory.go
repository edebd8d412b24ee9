package store

import (
	"context"
	"sync"
	"time"

	"stayguard/internal/guard/models"
)

// MemoryStore implements Store with in-process fixed-window counters.
//
// Counters here are worker-local: under a multi-process deployment each
// worker would count independently and under-enforce. Production uses
// RedisStore; main logs loudly when this fallback is selected.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*counterEntry
	blocks   map[string]models.BlockEntry

	// now is swappable for tests.
	now func() time.Time
}

type counterEntry struct {
	count       int64
	windowStart time.Time
	expiresAt   time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: make(map[string]*counterEntry),
		blocks:   make(map[string]models.BlockEntry),
		now:      time.Now,
	}
}

// WithClock overrides the store's clock. Test hook.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// IncrementAndGet implements CounterStore with fixed-window reset: once a
// window elapses the counter restarts at 1 with a fresh TTL.
func (s *MemoryStore) IncrementAndGet(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry, ok := s.counters[key]
	if !ok || !now.Before(entry.expiresAt) {
		entry = &counterEntry{windowStart: now, expiresAt: now.Add(window)}
		s.counters[key] = entry
	}
	entry.count++

	return entry.count, entry.expiresAt.Sub(now), nil
}

// Peek implements CounterStore.
func (s *MemoryStore) Peek(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.counters[key]
	if !ok || !s.now().Before(entry.expiresAt) {
		return 0, nil
	}
	return entry.count, nil
}

// Clear implements CounterStore.
func (s *MemoryStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counters, key)
	return nil
}

// GetBlock implements BlockStore with lazy expiry.
func (s *MemoryStore) GetBlock(_ context.Context, key string) (*models.BlockEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.blocks[key]
	if !ok {
		return nil, nil
	}
	if !entry.Active(s.now()) {
		delete(s.blocks, key)
		return nil, nil
	}
	out := entry
	return &out, nil
}

// SetBlock implements BlockStore.
func (s *MemoryStore) SetBlock(_ context.Context, key string, duration time.Duration, reason models.DenyReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blocks[key] = models.BlockEntry{
		Key:          key,
		Reason:       reason,
		BlockedUntil: s.now().Add(duration),
	}
	return nil
}

// ClearBlock implements BlockStore.
func (s *MemoryStore) ClearBlock(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blocks, key)
	return nil
}
