package stream

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/glassdesk/relay/framestore"
	"github.com/glassdesk/relay/logger"
	"github.com/glassdesk/relay/metrics/prometheus"
	"github.com/glassdesk/relay/registry"
	"github.com/glassdesk/relay/storage"
)

// IngestRequest carries one producer-submitted frame. Data is base64.
type IngestRequest struct {
	ClientID   string
	Data       string
	Sequence   int64
	Quality    Quality
	StreamType StreamType
}

// IngestResult reports what the relay did with an accepted frame.
type IngestResult struct {
	Sequence int64 `json:"sequence"`
	Bytes    int   `json:"bytes"`
}

// Ingestor accepts producer frames and fans them out: per-sequence catch-up
// keys, latest-frame keys for the resolver cascade, and decoded bytes on disk
// for push channel delivery.
type Ingestor struct {
	store       framestore.Store
	chunks      storage.ChunkStore
	clients     registry.Registry
	latestTTL   time.Duration
	sequenceTTL time.Duration
	now         func() time.Time

	rateLimit rate.Limit
	rateBurst int
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
}

// IngestOption configures an Ingestor.
type IngestOption func(*Ingestor)

// WithLatestTTL overrides the latest-frame key lifetime.
func WithLatestTTL(ttl time.Duration) IngestOption {
	return func(i *Ingestor) {
		if ttl > 0 {
			i.latestTTL = ttl
		}
	}
}

// WithSequenceTTL overrides the per-sequence key lifetime.
func WithSequenceTTL(ttl time.Duration) IngestOption {
	return func(i *Ingestor) {
		if ttl > 0 {
			i.sequenceTTL = ttl
		}
	}
}

// WithRateLimit caps per-client ingest to r frames per second with the given
// burst. Zero disables limiting.
func WithRateLimit(r float64, burst int) IngestOption {
	return func(i *Ingestor) {
		i.rateLimit = rate.Limit(r)
		i.rateBurst = burst
	}
}

// WithIngestClock overrides the time source for tests.
func WithIngestClock(now func() time.Time) IngestOption {
	return func(i *Ingestor) {
		if now != nil {
			i.now = now
		}
	}
}

// NewIngestor creates an ingestor. The chunk store may be nil, in which case
// frames are cached but never spooled to disk and push channels see nothing.
func NewIngestor(store framestore.Store, chunks storage.ChunkStore, clients registry.Registry, opts ...IngestOption) *Ingestor {
	i := &Ingestor{
		store:       store,
		chunks:      chunks,
		clients:     clients,
		latestTTL:   DefaultLatestTTL,
		sequenceTTL: DefaultSequenceTTL,
		now:         time.Now,
		limiters:    make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Ingestor) limiter(clientID string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()
	lim, ok := i.limiters[clientID]
	if !ok {
		lim = rate.NewLimiter(i.rateLimit, i.rateBurst)
		i.limiters[clientID] = lim
	}
	return lim
}

// Ingest validates and stores one frame. Validation happens before any store
// mutation: a rejected frame leaves no trace in the cache or on disk.
func (i *Ingestor) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if req.Data == "" {
		prometheus.RecordChunkIngested(string(req.StreamType), "rejected", 0)
		return nil, ErrEmptyPayload
	}

	decoded, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		prometheus.RecordChunkIngested(string(req.StreamType), "rejected", 0)
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if len(decoded) == 0 {
		prometheus.RecordChunkIngested(string(req.StreamType), "rejected", 0)
		return nil, ErrEmptyPayload
	}

	if _, err := i.clients.Lookup(ctx, req.ClientID); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("looking up client %s: %w", req.ClientID, err)
	}

	if i.rateLimit > 0 {
		if !i.limiter(req.ClientID).Allow() {
			prometheus.RecordChunkIngested(string(req.StreamType), "throttled", 0)
			return nil, ErrRateLimited
		}
	}

	streamType := req.StreamType
	if streamType == "" {
		streamType = TypeVideo
	}
	frame := Frame{
		ClientID:   req.ClientID,
		Data:       req.Data,
		Sequence:   req.Sequence,
		Quality:    req.Quality,
		StreamType: streamType,
		Timestamp:  i.now().UTC(),
	}
	encoded, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}

	// Per-sequence key first so a viewer who sees the latest pointer can
	// always fetch the frame it points at.
	if err := i.store.Put(ctx, keySequence(req.ClientID, req.Sequence), encoded, i.sequenceTTL); err != nil {
		logger.IngestError(req.ClientID, req.Sequence, err, "step", "sequence_key")
		return nil, fmt.Errorf("storing sequence key: %w", err)
	}
	if err := i.store.Put(ctx, keyLatestChunk(req.ClientID), encoded, i.latestTTL); err != nil {
		logger.IngestError(req.ClientID, req.Sequence, err, "step", "latest_chunk")
		return nil, fmt.Errorf("storing latest chunk: %w", err)
	}
	typeKey := keyLatestVideo(req.ClientID)
	if streamType == TypeScreenshot {
		typeKey = keyLatestScreenshot(req.ClientID)
	}
	if err := i.store.Put(ctx, typeKey, encoded, i.latestTTL); err != nil {
		logger.IngestError(req.ClientID, req.Sequence, err, "step", "latest_typed")
		return nil, fmt.Errorf("storing typed latest key: %w", err)
	}

	// Spool decoded bytes for push channels. A disk failure degrades push
	// delivery but must not fail the producer: the cache write succeeded.
	if i.chunks != nil {
		if err := i.chunks.Put(ctx, req.ClientID, req.Sequence, decoded); err != nil {
			logger.IngestError(req.ClientID, req.Sequence, err, "step", "chunk_file")
		}
	}

	prometheus.RecordChunkIngested(string(streamType), "accepted", len(decoded))
	logger.ChunkReceived(req.ClientID, req.Sequence, string(streamType), len(decoded))
	return &IngestResult{Sequence: req.Sequence, Bytes: len(decoded)}, nil
}
