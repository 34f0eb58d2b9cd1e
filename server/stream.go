package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/glassdesk/relay/stream"
)

// chunkRequest is the producer ingest payload. Producers disagree on the
// field name for the frame bytes; all three spellings are accepted.
type chunkRequest struct {
	Chunk      string `json:"chunk,omitempty"`
	VideoChunk string `json:"video_chunk,omitempty"`
	Screenshot string `json:"screenshot,omitempty"`
	Sequence   int64  `json:"sequence"`
	Quality    string `json:"quality,omitempty"`
	StreamType string `json:"type,omitempty"`
}

// payload returns the frame data and the stream type implied by whichever
// field the producer used, unless an explicit type overrides it.
func (c *chunkRequest) payload() (data string, streamType stream.StreamType) {
	switch {
	case c.Chunk != "":
		data, streamType = c.Chunk, stream.TypeChunk
	case c.VideoChunk != "":
		data, streamType = c.VideoChunk, stream.TypeVideo
	case c.Screenshot != "":
		data, streamType = c.Screenshot, stream.TypeScreenshot
	}
	if c.StreamType != "" {
		streamType = stream.ParseStreamType(c.StreamType)
	}
	return data, streamType
}

type startRequest struct {
	Quality string `json:"quality,omitempty"`
}

func (s *Server) handleStreamStart(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("clientId")

	var req startRequest
	if r.ContentLength > 0 && !decodeBody(w, r, &req) {
		return
	}

	sess, err := s.sessions.Start(r.Context(), clientID, stream.ParseQuality(req.Quality))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"streaming": true,
		"quality":   sess.Quality,
		"timestamp": sess.Timestamp,
	})
}

func (s *Server) handleStreamStop(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("clientId")

	if err := s.sessions.Stop(r.Context(), clientID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"streaming": false})
}

// handleStreamRequest is polled by producers: "does anyone want my frames
// right now, and at what quality?"
func (s *Server) handleStreamRequest(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("clientId")

	sess, err := s.sessions.Get(r.Context(), clientID)
	if err != nil {
		if errors.Is(err, stream.ErrNoSession) {
			writeJSON(w, http.StatusOK, map[string]any{"streaming": false})
			return
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"streaming": true,
		"quality":   sess.Quality,
		"timestamp": sess.Timestamp,
	})
}

// handleStreamStatus is the viewer-side view: session state plus whether the
// client has heartbeated recently enough to be worth watching.
func (s *Server) handleStreamStatus(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("clientId")

	client, err := s.clients.Lookup(r.Context(), clientID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := map[string]any{
		"client_id": client.ClientID,
		"online":    client.Online(time.Now()),
		"streaming": false,
	}
	if sess, err := s.sessions.Get(r.Context(), clientID); err == nil {
		resp["streaming"] = true
		resp["quality"] = sess.Quality
		resp["timestamp"] = sess.Timestamp
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStreamChunk(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("clientId")

	var req chunkRequest
	if !decodeBody(w, r, &req) {
		return
	}
	data, streamType := req.payload()

	res, err := s.ingestor.Ingest(r.Context(), stream.IngestRequest{
		ClientID:   clientID,
		Data:       data,
		Sequence:   req.Sequence,
		Quality:    stream.ParseQuality(req.Quality),
		StreamType: streamType,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "received",
		"sequence": res.Sequence,
		"bytes":    res.Bytes,
	})
}

func (s *Server) handleStreamLatest(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("clientId")

	res, err := s.resolver.Latest(r.Context(), clientID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
