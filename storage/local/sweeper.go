package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glassdesk/relay/logger"
)

// SweepResult summarizes one pass of the chunk sweeper.
type SweepResult struct {
	ClientsProcessed int
	FilesScanned     int
	FilesDeleted     int
	BytesFreed       int64
}

// Sweeper removes chunk files older than a retention threshold. The push
// channel deletes chunks on read, so the sweeper only has to catch files
// orphaned by viewers that never connected.
type Sweeper struct {
	store  *ChunkStore
	maxAge time.Duration
	dryRun bool

	now func() time.Time
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithDryRun makes the sweeper report what it would delete without deleting.
func WithDryRun(dryRun bool) SweeperOption {
	return func(s *Sweeper) {
		s.dryRun = dryRun
	}
}

// WithSweeperClock sets the time source used for age checks. Defaults to time.Now.
func WithSweeperClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		s.now = now
	}
}

// NewSweeper creates a sweeper that removes chunks older than maxAge.
func NewSweeper(store *ChunkStore, maxAge time.Duration, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		store:  store,
		maxAge: maxAge,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep walks every client chunk directory and removes stale files.
// Empty client directories left behind are removed as well.
func (s *Sweeper) Sweep(ctx context.Context) (*SweepResult, error) {
	root := filepath.Join(s.store.BaseDir(), chunkDirName)
	cutoff := s.now().Add(-s.maxAge)

	clientDirs, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return &SweepResult{}, nil
		}
		return nil, fmt.Errorf("failed to read chunk root: %w", err)
	}

	result := &SweepResult{}
	for _, clientDir := range clientDirs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if !clientDir.IsDir() {
			continue
		}
		result.ClientsProcessed++

		dir := filepath.Join(root, clientDir.Name())
		if err := s.sweepClientDir(dir, cutoff, result); err != nil {
			logger.Warn("chunk sweep failed for client",
				"client_id", clientDir.Name(), "error", err)
		}
	}

	logger.Info("chunk sweep completed",
		"clients", result.ClientsProcessed,
		"scanned", result.FilesScanned,
		"deleted", result.FilesDeleted,
		"bytes_freed", result.BytesFreed,
		"dry_run", s.dryRun,
	)

	return result, nil
}

// Run sweeps on a fixed interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				logger.Error("chunk sweep pass failed", "error", err)
			}
		}
	}
}

// sweepClientDir removes stale chunk files from one client directory.
func (s *Sweeper) sweepClientDir(dir string, cutoff time.Time, result *SweepResult) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	remaining := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), chunkExt) {
			remaining++
			continue
		}

		info, err := entry.Info()
		if err != nil {
			remaining++
			continue
		}

		result.FilesScanned++
		if info.ModTime().After(cutoff) {
			remaining++
			continue
		}

		result.FilesDeleted++
		result.BytesFreed += info.Size()
		if s.dryRun {
			remaining++
			continue
		}

		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			remaining++
			return err
		}
	}

	if remaining == 0 && !s.dryRun {
		_ = os.Remove(dir)
	}

	return nil
}
