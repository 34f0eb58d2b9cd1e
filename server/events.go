package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/glassdesk/relay/logger"
)

// wsWriteTimeout bounds a single websocket frame write; a viewer that stops
// reading gets disconnected instead of wedging the handler.
const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboard and relay are same-origin in production; cross-origin viewers
	// are tooling and local dev.
	CheckOrigin: func(*http.Request) bool { return true },
}

// acquireViewer reserves a viewer slot or rejects with 503.
func (s *Server) acquireViewer(w http.ResponseWriter) bool {
	if !s.viewerSem.TryAcquire(1) {
		writeError(w, http.StatusServiceUnavailable, "viewer limit reached")
		return false
	}
	return true
}

// handleStreamEvents serves a push channel over SSE. Each event goes out as
// one data: line; the channel closing ends the response.
func (s *Server) handleStreamEvents(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("clientId")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	if !s.acquireViewer(w) {
		return
	}
	defer s.viewerSem.Release(1)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	for ev := range s.notifier.Stream(r.Context(), clientID) {
		data, err := json.Marshal(ev)
		if err != nil {
			logger.Warn("Failed to encode push event", "client_id", clientID, "error", err)
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return
		}
		flusher.Flush()
	}
}

// handleStreamWS serves the same push channel over a websocket, for viewers
// behind proxies that buffer SSE.
func (s *Server) handleStreamWS(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("clientId")

	if !s.acquireViewer(w) {
		return
	}
	defer s.viewerSem.Release(1)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("Websocket upgrade failed", "client_id", clientID, "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	// Drain client frames so control messages (close, ping) are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for ev := range s.notifier.Stream(r.Context(), clientID) {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream ended"))
}
