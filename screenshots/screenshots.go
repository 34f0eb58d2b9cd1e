// Package screenshots stores durable screenshot records for monitored clients.
//
// The relay treats this store as its last-resort frame source: when no cached
// stream data exists, the cascade serves the most recently captured screenshot
// image instead of failing the viewer.
package screenshots

import (
	"context"
	"errors"
	"time"
)

// Screenshot is one persisted capture for a client.
type Screenshot struct {
	ID         string    `json:"id"`
	ClientID   string    `json:"client_id"`
	Filename   string    `json:"filename"`
	FilePath   string    `json:"file_path"`
	Resolution string    `json:"resolution,omitempty"`
	Monitor    int       `json:"monitor,omitempty"`
	FileSize   int64     `json:"file_size,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// HasValidFilePath reports whether the record points at stored image bytes.
func (s *Screenshot) HasValidFilePath() bool {
	return s.FilePath != ""
}

// Store persists screenshot records and answers "most recent capture" queries.
type Store interface {
	// Add records a screenshot for a client.
	Add(ctx context.Context, shot *Screenshot) error

	// LatestFor returns the client's most recent screenshot by capture time.
	// Returns ErrNoScreenshots if the client has none.
	LatestFor(ctx context.Context, clientID string) (*Screenshot, error)

	// ListFor returns the client's screenshots, most recent first.
	ListFor(ctx context.Context, clientID string, limit int) ([]*Screenshot, error)
}

// ErrNoScreenshots is returned when a client has no stored screenshots.
var ErrNoScreenshots = errors.New("no screenshots for client")

// ErrInvalidScreenshot is returned when required record fields are missing.
var ErrInvalidScreenshot = errors.New("invalid screenshot record")
