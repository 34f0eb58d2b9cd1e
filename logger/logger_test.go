package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capture swaps DefaultLogger for one writing to a buffer and returns the buffer.
// The previous logger is restored via t.Cleanup.
func capture(t *testing.T, level slog.Level) *bytes.Buffer {
	t.Helper()
	prev := DefaultLogger
	t.Cleanup(func() { DefaultLogger = prev })

	var buf bytes.Buffer
	DefaultLogger = slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: level}))
	return &buf
}

func TestInfoIncludesAttributes(t *testing.T) {
	buf := capture(t, slog.LevelInfo)

	Info("test message", "client_id", "c1")

	out := buf.String()
	assert.Contains(t, out, "test message")
	assert.Contains(t, out, "client_id=c1")
}

func TestDebugSuppressedAtInfoLevel(t *testing.T) {
	buf := capture(t, slog.LevelInfo)

	Debug("hidden")

	assert.Empty(t, buf.String())
}

func TestChunkReceivedFields(t *testing.T) {
	buf := capture(t, slog.LevelInfo)

	ChunkReceived("c1", 42, "video", 1024)

	out := buf.String()
	require.Contains(t, out, "stream chunk received")
	assert.Contains(t, out, "client_id=c1")
	assert.Contains(t, out, "sequence=42")
	assert.Contains(t, out, "stream_type=video")
	assert.Contains(t, out, "bytes=1024")
}

func TestCascadeServedFields(t *testing.T) {
	buf := capture(t, slog.LevelInfo)

	CascadeServed("c1", "screenshot_fallback", 7)

	out := buf.String()
	assert.Contains(t, out, "serving cached frame")
	assert.Contains(t, out, "tier=screenshot_fallback")
}

func TestSetVerbose(t *testing.T) {
	prev := DefaultLogger
	t.Cleanup(func() { DefaultLogger = prev })

	SetVerbose(true)
	assert.True(t, DefaultLogger.Enabled(t.Context(), slog.LevelDebug))

	SetVerbose(false)
	assert.False(t, DefaultLogger.Enabled(t.Context(), slog.LevelDebug))
}
