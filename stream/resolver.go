package stream

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glassdesk/relay/framestore"
	"github.com/glassdesk/relay/logger"
	"github.com/glassdesk/relay/media"
	"github.com/glassdesk/relay/metrics/prometheus"
	"github.com/glassdesk/relay/registry"
	"github.com/glassdesk/relay/screenshots"
	"github.com/glassdesk/relay/storage"
)

// Resolution is the outcome of a latest-frame lookup: the freshest frame the
// relay could find plus the tier that produced it.
type Resolution struct {
	Data       string     `json:"data"`
	Sequence   int64      `json:"sequence"`
	Quality    Quality    `json:"quality,omitempty"`
	StreamType StreamType `json:"stream_type,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
	Tier       string     `json:"source"`
	Dimensions string     `json:"resolution,omitempty"`
}

// Resolver answers "show me the freshest frame" with a tiered cascade:
// generic latest chunk, then latest video, then latest screenshot frame, and
// finally the most recent stored screenshot file. Each tier trades freshness
// for availability; a viewer always prefers something stale over nothing.
type Resolver struct {
	store       framestore.Store
	clients     registry.Registry
	screenshots screenshots.Store
	files       storage.FileReader
	now         func() time.Time
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithResolverClock overrides the time source for tests.
func WithResolverClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// NewResolver creates a resolver. The screenshot store and file reader may be
// nil; the final fallback tier is skipped when either is missing.
func NewResolver(store framestore.Store, clients registry.Registry, shots screenshots.Store, files storage.FileReader, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:       store,
		clients:     clients,
		screenshots: shots,
		files:       files,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Latest walks the cascade for the client and returns the freshest frame
// available, or ErrNoData when every tier comes up empty.
func (r *Resolver) Latest(ctx context.Context, clientID string) (*Resolution, error) {
	if _, err := r.clients.Lookup(ctx, clientID); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("looking up client %s: %w", clientID, err)
	}

	tiers := []struct {
		key  string
		tier string
	}{
		{keyLatestChunk(clientID), TierLiveChunk},
		{keyLatestVideo(clientID), TierVideoStream},
		{keyLatestScreenshot(clientID), TierScreenshotStream},
	}
	for _, t := range tiers {
		res, ok := r.fromCache(ctx, clientID, t.key, t.tier)
		if ok {
			prometheus.RecordCascadeServe(t.tier)
			logger.CascadeServed(clientID, t.tier, res.Sequence)
			return res, nil
		}
	}

	if res, ok := r.fromScreenshotFile(ctx, clientID); ok {
		prometheus.RecordCascadeServe(TierScreenshotFallback)
		logger.CascadeServed(clientID, TierScreenshotFallback, res.Sequence)
		return res, nil
	}

	return nil, ErrNoData
}

// fromCache reads one cached frame tier. Store failures and undecodable
// entries count as a miss so the cascade can keep descending.
func (r *Resolver) fromCache(ctx context.Context, clientID, key, tier string) (*Resolution, bool) {
	data, err := r.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, framestore.ErrNotFound) {
			logger.Warn("Frame cache read failed", "client_id", clientID, "tier", tier, "error", err)
		}
		return nil, false
	}
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		logger.Warn("Discarding undecodable cached frame", "client_id", clientID, "tier", tier, "error", err)
		return nil, false
	}
	if frame.Data == "" {
		return nil, false
	}
	return &Resolution{
		Data:       frame.Data,
		Sequence:   frame.Sequence,
		Quality:    frame.Quality,
		StreamType: frame.StreamType,
		Timestamp:  frame.Timestamp,
		Tier:       tier,
	}, true
}

// fromScreenshotFile is the last-resort tier: the most recent screenshot on
// disk, re-encoded as a frame. A file in hand beats a cache miss even when it
// is minutes old. The pseudo-sequence is the current unix time so viewers
// that dedupe by sequence still advance.
func (r *Resolver) fromScreenshotFile(ctx context.Context, clientID string) (*Resolution, bool) {
	if r.screenshots == nil || r.files == nil {
		return nil, false
	}
	shot, err := r.screenshots.LatestFor(ctx, clientID)
	if err != nil {
		if !errors.Is(err, screenshots.ErrNoScreenshots) {
			logger.Warn("Screenshot lookup failed", "client_id", clientID, "error", err)
		}
		return nil, false
	}
	if !shot.HasValidFilePath() {
		return nil, false
	}
	raw, err := r.files.ReadFile(ctx, shot.FilePath)
	if err != nil {
		logger.Warn("Screenshot file read failed",
			"client_id", clientID,
			"path", shot.FilePath,
			"error", err)
		return nil, false
	}

	// Stored screenshots can be far larger than a live frame; fit them to the
	// viewer's quality budget. Scaling is best-effort.
	quality := r.sessionQuality(ctx, clientID)
	if scaled, err := media.ScaleForQuality(raw, string(quality)); err == nil {
		raw = scaled
	} else {
		logger.Debug("Screenshot scaling skipped", "client_id", clientID, "error", err)
	}

	return &Resolution{
		Data:       base64.StdEncoding.EncodeToString(raw),
		Sequence:   r.now().Unix(),
		Quality:    quality,
		StreamType: TypeScreenshot,
		Timestamp:  shot.CapturedAt,
		Tier:       TierScreenshotFallback,
		Dimensions: shot.Resolution,
	}, true
}

// sessionQuality reads the viewer's requested quality off the active session,
// defaulting to medium when no session exists.
func (r *Resolver) sessionQuality(ctx context.Context, clientID string) Quality {
	data, err := r.store.Get(ctx, keyStreamRequest(clientID))
	if err != nil {
		return QualityMedium
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return QualityMedium
	}
	return sess.Quality
}
