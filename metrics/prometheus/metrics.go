// Package prometheus provides Prometheus metrics for the stream relay.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "relay"

var (
	// chunksIngestedTotal is a counter of ingested stream chunks.
	chunksIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_ingested_total",
			Help:      "Total number of stream chunks ingested",
		},
		[]string{"stream_type", "status"}, // status: success, error
	)

	// chunkBytes is a histogram of ingested chunk payload sizes.
	chunkBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunk_bytes",
			Help:      "Size distribution of ingested chunk payloads in bytes",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8), // 1KiB .. 16MiB
		},
	)

	// cascadeServesTotal is a counter of latest-frame requests by serving tier.
	cascadeServesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_serves_total",
			Help:      "Total latest-frame requests answered, by cascade tier",
		},
		[]string{"tier"}, // live_chunk, video_stream, screenshot_stream, screenshot_fallback, none
	)

	// sessionsTotal is a counter of session lifecycle transitions. Sessions can
	// also end by TTL expiry, so a start/stop gauge would drift; counters keep
	// the series honest.
	sessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total stream session transitions",
		},
		[]string{"event"}, // started, stopped
	)

	// pushConnectionsActive is a gauge of open push channels (SSE/WebSocket).
	pushConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "push_connections_active",
			Help:      "Number of currently open push notification channels",
		},
	)

	// framesEmittedTotal is a counter of frames delivered over push channels.
	framesEmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_emitted_total",
			Help:      "Total frames delivered to viewers over push channels",
		},
	)

	// allMetrics is a list of all metrics for registration.
	allMetrics = []prometheus.Collector{
		chunksIngestedTotal,
		chunkBytes,
		cascadeServesTotal,
		sessionsTotal,
		pushConnectionsActive,
		framesEmittedTotal,
	}
)

// RecordChunkIngested records one ingested chunk and its payload size.
func RecordChunkIngested(streamType, status string, bytes int) {
	chunksIngestedTotal.WithLabelValues(streamType, status).Inc()
	if status == "success" {
		chunkBytes.Observe(float64(bytes))
	}
}

// RecordCascadeServe records which tier answered a latest-frame request.
// Use tier "none" for requests that exhausted the cascade.
func RecordCascadeServe(tier string) {
	cascadeServesTotal.WithLabelValues(tier).Inc()
}

// RecordSessionStart records a session being created or refreshed.
func RecordSessionStart() {
	sessionsTotal.WithLabelValues("started").Inc()
}

// RecordSessionStop records an explicit session stop.
func RecordSessionStop() {
	sessionsTotal.WithLabelValues("stopped").Inc()
}

// RecordPushConnectionOpen increments the open push channel gauge.
func RecordPushConnectionOpen() {
	pushConnectionsActive.Inc()
}

// RecordPushConnectionClose decrements the open push channel gauge.
func RecordPushConnectionClose() {
	pushConnectionsActive.Dec()
}

// RecordFrameEmitted records one frame delivered over a push channel.
func RecordFrameEmitted() {
	framesEmittedTotal.Inc()
}
