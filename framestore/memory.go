package framestore

import (
	"context"
	"sync"
	"time"
)

// MemoryStore provides an in-memory implementation of the Store interface.
// It is thread-safe and suitable for development, testing, and single-instance
// deployments. For distributed systems, use RedisStore.
//
// Expiry is lazy: entries past their deadline are dropped on the read path,
// so no background sweep goroutine is required.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry

	// now is the clock used for TTL checks. Tests inject a fake clock here.
	now func() time.Time
}

type memoryEntry struct {
	value    []byte
	deadline time.Time // zero means no expiry
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock sets the time source used for TTL bookkeeping.
// Defaults to time.Now. Intended for tests that need deterministic expiry.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates a new in-memory frame store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put stores value under key with the given TTL.
func (s *MemoryStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}

	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.deadline = s.now().Add(ttl)
	}

	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()

	return nil
}

// Get retrieves the value stored under key, honoring TTL expiry.
// Returns a copy to prevent external mutations.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}

	s.mu.RLock()
	entry, exists := s.entries[key]
	s.mu.RUnlock()

	if !exists {
		return nil, ErrNotFound
	}

	if s.expired(entry) {
		// Drop the stale entry so the map doesn't grow unbounded.
		s.mu.Lock()
		if cur, ok := s.entries[key]; ok && s.expired(cur) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, ErrNotFound
	}

	return append([]byte(nil), entry.value...), nil
}

// Delete removes the entry under key.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrInvalidKey
	}

	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()

	return nil
}

// Has reports whether key holds an unexpired entry.
func (s *MemoryStore) Has(ctx context.Context, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	if err != nil {
		if err == ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// expired reports whether an entry's deadline has passed.
func (s *MemoryStore) expired(entry memoryEntry) bool {
	return !entry.deadline.IsZero() && s.now().After(entry.deadline)
}
