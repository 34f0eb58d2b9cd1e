package screenshots

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store implementation. Records are held per
// client, sorted most-recent-first on insert so LatestFor is a slice peek.
type MemoryStore struct {
	mu      sync.RWMutex
	byCli   map[string][]*Screenshot
	maxPer  int
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithMaxPerClient bounds how many records are retained per client.
// Oldest records are dropped first. Zero means unbounded.
func WithMaxPerClient(n int) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.maxPer = n
	}
}

// NewMemoryStore creates an in-memory screenshot store.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		byCli: make(map[string][]*Screenshot),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add records a screenshot for a client.
func (s *MemoryStore) Add(ctx context.Context, shot *Screenshot) error {
	if shot == nil || shot.ClientID == "" || shot.FilePath == "" {
		return ErrInvalidScreenshot
	}

	cp := *shot
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records := append(s.byCli[shot.ClientID], &cp)
	sort.Slice(records, func(i, j int) bool {
		return records[i].CapturedAt.After(records[j].CapturedAt)
	})
	if s.maxPer > 0 && len(records) > s.maxPer {
		records = records[:s.maxPer]
	}
	s.byCli[shot.ClientID] = records

	return nil
}

// LatestFor returns the client's most recent screenshot by capture time.
func (s *MemoryStore) LatestFor(ctx context.Context, clientID string) (*Screenshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.byCli[clientID]
	if len(records) == 0 {
		return nil, ErrNoScreenshots
	}

	cp := *records[0]
	return &cp, nil
}

// ListFor returns the client's screenshots, most recent first.
func (s *MemoryStore) ListFor(ctx context.Context, clientID string, limit int) ([]*Screenshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.byCli[clientID]
	if limit <= 0 || limit > len(records) {
		limit = len(records)
	}

	out := make([]*Screenshot, 0, limit)
	for _, r := range records[:limit] {
		cp := *r
		out = append(out, &cp)
	}

	return out, nil
}
