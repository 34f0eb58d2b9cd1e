package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glassdesk/relay/framestore"
	"github.com/glassdesk/relay/logger"
	"github.com/glassdesk/relay/metrics/prometheus"
	"github.com/glassdesk/relay/registry"
)

// Session is the persisted state of one live-view request. Its presence in
// the frame store (under the session TTL) is what makes a stream "active";
// expiry is the implicit stop path when a viewer walks away.
type Session struct {
	Quality   Quality   `json:"quality"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionRegistry manages stream session lifecycle on top of a frame store.
type SessionRegistry struct {
	store   framestore.Store
	clients registry.Registry
	ttl     time.Duration
	now     func() time.Time
}

// SessionOption configures a SessionRegistry.
type SessionOption func(*SessionRegistry)

// WithSessionTTL overrides the session lifetime.
func WithSessionTTL(ttl time.Duration) SessionOption {
	return func(s *SessionRegistry) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithSessionClock overrides the registry's time source for tests.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *SessionRegistry) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSessionRegistry creates a session registry backed by the given stores.
func NewSessionRegistry(store framestore.Store, clients registry.Registry, opts ...SessionOption) *SessionRegistry {
	s := &SessionRegistry{
		store:   store,
		clients: clients,
		ttl:     DefaultSessionTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start activates (or refreshes) a stream session for the client. Starting an
// already-active session resets its TTL and updates the quality; viewers that
// re-request mid-stream keep the stream alive.
func (s *SessionRegistry) Start(ctx context.Context, clientID string, quality Quality) (*Session, error) {
	if _, err := s.clients.Lookup(ctx, clientID); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("looking up client %s: %w", clientID, err)
	}

	sess := &Session{
		Quality:   quality,
		Timestamp: s.now().UTC(),
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("encoding session: %w", err)
	}
	if err := s.store.Put(ctx, keyStreamRequest(clientID), data, s.ttl); err != nil {
		return nil, fmt.Errorf("storing session: %w", err)
	}

	prometheus.RecordSessionStart()
	logger.Info("Stream session started",
		"client_id", clientID,
		"quality", string(quality),
		"ttl", s.ttl.String())
	return sess, nil
}

// Stop tears down the client's session. Stopping an already-stopped stream is
// a no-op; the viewer only cares that the session is gone afterwards.
func (s *SessionRegistry) Stop(ctx context.Context, clientID string) error {
	if err := s.store.Delete(ctx, keyStreamRequest(clientID)); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	prometheus.RecordSessionStop()
	logger.Info("Stream session stopped", "client_id", clientID)
	return nil
}

// Get returns the client's active session, or ErrNoSession when none exists
// or the previous one expired.
func (s *SessionRegistry) Get(ctx context.Context, clientID string) (*Session, error) {
	data, err := s.store.Get(ctx, keyStreamRequest(clientID))
	if err != nil {
		if errors.Is(err, framestore.ErrNotFound) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("loading session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	return &sess, nil
}

// IsActive reports whether the client currently has a live session.
func (s *SessionRegistry) IsActive(ctx context.Context, clientID string) bool {
	ok, err := s.store.Has(ctx, keyStreamRequest(clientID))
	if err != nil {
		logger.Warn("Session liveness check failed", "client_id", clientID, "error", err)
		return false
	}
	return ok
}
