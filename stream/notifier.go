package stream

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"github.com/glassdesk/relay/logger"
	"github.com/glassdesk/relay/metrics/prometheus"
	"github.com/glassdesk/relay/storage"
)

// eventBuffer bounds each push channel. A viewer that stops draining loses
// frames rather than stalling the notifier goroutine.
const eventBuffer = 64

// Notifier runs push notification channels: per-viewer goroutines that poll
// the chunk store and emit frames as events until the session ends.
type Notifier struct {
	chunks   storage.ChunkStore
	sessions *SessionRegistry
	interval time.Duration
}

// NotifierOption configures a Notifier.
type NotifierOption func(*Notifier)

// WithPollInterval overrides the chunk poll cadence.
func WithPollInterval(d time.Duration) NotifierOption {
	return func(n *Notifier) {
		if d > 0 {
			n.interval = d
		}
	}
}

// NewNotifier creates a notifier over the given chunk store and sessions.
func NewNotifier(chunks storage.ChunkStore, sessions *SessionRegistry, opts ...NotifierOption) *Notifier {
	n := &Notifier{
		chunks:   chunks,
		sessions: sessions,
		interval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Stream opens a push channel for the client. The returned channel delivers a
// connected event first, then stream_data events in sequence order, and
// finally a single stream_ended event before closing. Chunks are deleted as
// they are emitted; concurrent viewers of the same client compete for frames.
//
// The channel closes when the session ends or ctx is cancelled.
func (n *Notifier) Stream(ctx context.Context, clientID string) <-chan Event {
	out := make(chan Event, eventBuffer)

	go func() {
		defer close(out)
		prometheus.RecordPushConnectionOpen()
		defer prometheus.RecordPushConnectionClose()

		if !n.send(ctx, out, ConnectedEvent(clientID)) {
			return
		}

		ticker := time.NewTicker(n.interval)
		defer ticker.Stop()

		var lastSequence int64 = -1
		for {
			lastSequence = n.drain(ctx, out, clientID, lastSequence)
			if ctx.Err() != nil {
				return
			}

			// Session check after the drain so frames ingested just before a
			// stop still reach the viewer, and a viewer of a stopped stream
			// sees stream_ended without waiting out a tick.
			if !n.sessions.IsActive(ctx, clientID) {
				n.send(ctx, out, StreamEndedEvent())
				logger.StreamEnded(clientID, lastSequence)
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return out
}

// drain emits every stored chunk past lastSequence in ascending order,
// deleting each as it goes, and returns the new high-water mark.
func (n *Notifier) drain(ctx context.Context, out chan<- Event, clientID string, lastSequence int64) int64 {
	sequences, err := n.chunks.List(ctx, clientID)
	if err != nil {
		logger.Warn("Chunk listing failed", "client_id", clientID, "error", err)
		return lastSequence
	}
	for _, seq := range sequences {
		if seq <= lastSequence {
			// Stale leftover below the high-water mark; drop it so the
			// sweep has less to do.
			_ = n.chunks.Delete(ctx, clientID, seq)
			continue
		}
		data, err := n.chunks.ReadAndDelete(ctx, clientID, seq)
		if err != nil {
			if !errors.Is(err, storage.ErrChunkNotFound) {
				logger.Warn("Chunk read failed", "client_id", clientID, "sequence", seq, "error", err)
			}
			continue
		}
		ev := StreamDataEvent(clientID, seq, base64.StdEncoding.EncodeToString(data))
		if !n.send(ctx, out, ev) {
			return lastSequence
		}
		prometheus.RecordFrameEmitted()
		lastSequence = seq
	}
	return lastSequence
}

// send delivers ev, dropping it when the viewer's buffer is full. Reports
// false only when ctx is done and the loop should exit.
func (n *Notifier) send(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case <-ctx.Done():
		return false
	default:
	}
	select {
	case out <- ev:
	default:
		// slow viewer — drop rather than stall the poll loop
	}
	return true
}
