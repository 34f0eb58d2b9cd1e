package server

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/glassdesk/relay/logger"
	"github.com/glassdesk/relay/media"
	"github.com/glassdesk/relay/screenshots"
)

const screenshotDirName = "screenshots"

// screenshotRequest is a producer screenshot upload. Image is base64.
type screenshotRequest struct {
	ClientID string `json:"client_id"`
	Image    string `json:"image"`
	Filename string `json:"filename,omitempty"`
	Monitor  int    `json:"monitor,omitempty"`
}

// handleScreenshotUpload stores a durable screenshot: decode, probe the image
// for its resolution, write the bytes under the storage root, and record it so
// the latest-frame fallback can find it.
func (s *Server) handleScreenshotUpload(w http.ResponseWriter, r *http.Request) {
	if s.screenshots == nil || s.files == nil {
		writeError(w, http.StatusNotImplemented, "screenshot storage not configured")
		return
	}

	var req screenshotRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ClientID == "" {
		writeError(w, http.StatusBadRequest, "client_id is required")
		return
	}
	if req.Image == "" {
		writeError(w, http.StatusBadRequest, "no image data provided")
		return
	}
	if _, err := s.clients.Lookup(r.Context(), req.ClientID); err != nil {
		writeDomainError(w, err)
		return
	}

	raw, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid image payload")
		return
	}

	// Resolution is best-effort; an undecodable image is still stored, the
	// record just carries no dimensions.
	var resolution string
	if info, err := media.Probe(raw); err == nil {
		resolution = info.Resolution()
	} else {
		logger.Debug("Screenshot probe failed", "client_id", req.ClientID, "error", err)
	}

	id := uuid.NewString()
	filename := req.Filename
	if filename == "" {
		filename = fmt.Sprintf("%s.png", id)
	}
	filePath := path.Join(screenshotDirName, req.ClientID, filename)

	if err := s.files.WriteFile(r.Context(), filePath, raw); err != nil {
		writeDomainError(w, err)
		return
	}

	shot := &screenshots.Screenshot{
		ID:         id,
		ClientID:   req.ClientID,
		Filename:   filename,
		FilePath:   filePath,
		Resolution: resolution,
		Monitor:    req.Monitor,
		FileSize:   int64(len(raw)),
		CapturedAt: time.Now().UTC(),
	}
	if err := s.screenshots.Add(r.Context(), shot); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shot)
}

// handleScreenshotList returns a client's stored screenshots, most recent
// first. An optional limit query parameter bounds the result.
func (s *Server) handleScreenshotList(w http.ResponseWriter, r *http.Request) {
	if s.screenshots == nil {
		writeError(w, http.StatusNotImplemented, "screenshot storage not configured")
		return
	}

	clientID := r.PathValue("clientId")
	if _, err := s.clients.Lookup(r.Context(), clientID); err != nil {
		writeDomainError(w, err)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	shots, err := s.screenshots.ListFor(r.Context(), clientID, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"screenshots": shots})
}
