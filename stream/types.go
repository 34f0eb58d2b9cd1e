// Package stream implements the live-view relay: session registry, chunk
// ingest, the tiered latest-frame resolver, and the push notification channel.
//
// Frames move from producer to viewer through an ephemeral TTL cache rather
// than a true peer-to-peer channel; viewers poll or hold a push channel and
// tolerate approximate freshness.
package stream

import (
	"errors"
	"fmt"
	"time"
)

// Quality is a stream quality profile requested by the viewer and echoed on
// every frame.
type Quality string

// Quality profiles.
const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// ParseQuality normalizes a quality string, defaulting to medium for empty or
// unknown values. Producers are not trusted to send well-formed profiles.
func ParseQuality(s string) Quality {
	switch Quality(s) {
	case QualityLow, QualityMedium, QualityHigh:
		return Quality(s)
	default:
		return QualityMedium
	}
}

// StreamType tags what kind of visual payload a frame carries. Producers are
// inconsistent: some send encoded video chunks, some raw screenshots, some
// generic chunk data.
type StreamType string

// Stream types.
const (
	TypeVideo      StreamType = "video"
	TypeScreenshot StreamType = "screenshot"
	TypeChunk      StreamType = "chunk"
)

// ParseStreamType normalizes a stream-type string, defaulting to video.
func ParseStreamType(s string) StreamType {
	switch StreamType(s) {
	case TypeVideo, TypeScreenshot, TypeChunk:
		return StreamType(s)
	default:
		return TypeVideo
	}
}

// Relay timing defaults.
const (
	// DefaultSessionTTL is how long a stream session lives without a refresh.
	DefaultSessionTTL = 5 * time.Minute

	// DefaultLatestTTL bounds how stale a "latest frame" cache entry may get.
	DefaultLatestTTL = 60 * time.Second

	// DefaultSequenceTTL bounds the per-sequence catch-up entries.
	DefaultSequenceTTL = 30 * time.Second

	// DefaultPollInterval is the push channel's file poll cadence.
	DefaultPollInterval = 50 * time.Millisecond
)

// Frame is one unit of visual data in transit through the relay.
// Data is base64-encoded for transport regardless of payload type.
type Frame struct {
	ClientID   string     `json:"client_id"`
	Data       string     `json:"data"`
	Sequence   int64      `json:"sequence"`
	Quality    Quality    `json:"quality"`
	StreamType StreamType `json:"stream_type"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Cascade tier tags, echoed to viewers so they can label freshness.
const (
	TierLiveChunk          = "live_chunk"
	TierVideoStream        = "video_stream"
	TierScreenshotStream   = "screenshot_stream"
	TierScreenshotFallback = "screenshot_fallback"
)

// Cache key helpers. Keys are client-scoped; concurrent producers for
// different clients never collide.

func keyStreamRequest(clientID string) string {
	return fmt.Sprintf("stream_request:%s", clientID)
}

func keyLatestChunk(clientID string) string {
	return fmt.Sprintf("latest_chunk:%s", clientID)
}

func keyLatestVideo(clientID string) string {
	return fmt.Sprintf("latest_video:%s", clientID)
}

func keyLatestScreenshot(clientID string) string {
	return fmt.Sprintf("latest_screenshot:%s", clientID)
}

func keySequence(clientID string, sequence int64) string {
	return fmt.Sprintf("chunk:%s:%d", clientID, sequence)
}

// EventType discriminates push channel events.
type EventType string

// Push channel event types.
const (
	EventConnected  EventType = "connected"
	EventStreamData EventType = "stream_data"
	EventStreamEnd  EventType = "stream_ended"
)

// Event is one message on a push notification channel. The Type tag
// determines which fields are populated; use the constructors rather than
// building Events by hand.
type Event struct {
	Type     EventType `json:"type"`
	ClientID string    `json:"client_id,omitempty"`
	Sequence int64     `json:"sequence,omitempty"`
	Data     string    `json:"data,omitempty"`
}

// ConnectedEvent builds the handshake event emitted when a channel opens.
func ConnectedEvent(clientID string) Event {
	return Event{Type: EventConnected, ClientID: clientID}
}

// StreamDataEvent builds a frame delivery event.
func StreamDataEvent(clientID string, sequence int64, data string) Event {
	return Event{Type: EventStreamData, ClientID: clientID, Sequence: sequence, Data: data}
}

// StreamEndedEvent builds the terminal event emitted when the session is gone.
func StreamEndedEvent() Event {
	return Event{Type: EventStreamEnd}
}

// Validate checks the event's tag and tag-dependent fields.
func (e Event) Validate() error {
	switch e.Type {
	case EventConnected:
		if e.ClientID == "" {
			return errors.New("connected event requires client_id")
		}
	case EventStreamData:
		if e.ClientID == "" || e.Data == "" {
			return errors.New("stream_data event requires client_id and data")
		}
	case EventStreamEnd:
		// No payload.
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	return nil
}

// Relay error taxonomy. HTTP handlers map these onto status codes.
var (
	// ErrClientNotFound marks operations against unregistered clients.
	ErrClientNotFound = errors.New("client not found")

	// ErrNoSession is returned when a session lookup finds nothing live.
	ErrNoSession = errors.New("no active stream session")

	// ErrEmptyPayload marks ingest requests with a missing or empty frame.
	ErrEmptyPayload = errors.New("no chunk data provided")

	// ErrInvalidPayload marks ingest payloads that fail base64 decoding.
	ErrInvalidPayload = errors.New("invalid chunk payload")

	// ErrNoData is returned when the latest-frame cascade exhausts all tiers.
	ErrNoData = errors.New("no stream data available")

	// ErrRateLimited marks producers pushing faster than their budget.
	ErrRateLimited = errors.New("chunk rate limit exceeded")
)
