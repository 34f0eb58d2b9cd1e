// Package local provides local filesystem-based implementations of the relay
// storage interfaces.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/glassdesk/relay/storage"
)

const (
	// chunkExt is the file extension for persisted stream chunks.
	chunkExt = ".chunk"

	// chunkDirName is the subdirectory holding per-client chunk directories.
	chunkDirName = "stream_chunks"

	dirPerm  = 0750
	filePerm = 0600
)

// ChunkStore implements storage.ChunkStore on the local filesystem.
// Chunks live under {BaseDir}/stream_chunks/{clientID}/{sequence}.chunk,
// mirroring the per-client, per-sequence layout the push channel polls.
type ChunkStore struct {
	baseDir string
}

// NewChunkStore creates a filesystem chunk store rooted at baseDir.
func NewChunkStore(baseDir string) (*ChunkStore, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	if err := os.MkdirAll(filepath.Join(baseDir, chunkDirName), dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &ChunkStore{baseDir: baseDir}, nil
}

// BaseDir returns the storage root.
func (s *ChunkStore) BaseDir() string {
	return s.baseDir
}

// Put writes the raw chunk bytes for the given client and sequence.
func (s *ChunkStore) Put(ctx context.Context, clientID string, sequence int64, data []byte) error {
	path, err := s.chunkPath(clientID, sequence)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("failed to create chunk directory: %w", err)
	}

	return writeFileAtomic(path, data)
}

// List returns the sequences stored for the client in ascending order.
func (s *ChunkStore) List(ctx context.Context, clientID string) ([]int64, error) {
	dir, err := s.clientDir(clientID)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []int64{}, nil
		}
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}

	sequences := make([]int64, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), chunkExt) {
			continue
		}
		seq, err := strconv.ParseInt(strings.TrimSuffix(entry.Name(), chunkExt), 10, 64)
		if err != nil {
			// Foreign file in the chunk directory; skip it.
			continue
		}
		sequences = append(sequences, seq)
	}

	sort.Slice(sequences, func(i, j int) bool { return sequences[i] < sequences[j] })

	return sequences, nil
}

// Read returns the chunk bytes for the given client and sequence.
func (s *ChunkStore) Read(ctx context.Context, clientID string, sequence int64) ([]byte, error) {
	path, err := s.chunkPath(clientID, sequence)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrChunkNotFound
		}
		return nil, fmt.Errorf("failed to read chunk: %w", err)
	}

	return data, nil
}

// Delete removes the chunk for the given client and sequence.
func (s *ChunkStore) Delete(ctx context.Context, clientID string, sequence int64) error {
	path, err := s.chunkPath(clientID, sequence)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete chunk: %w", err)
	}

	return nil
}

// ReadAndDelete reads the chunk and removes it in one step.
func (s *ChunkStore) ReadAndDelete(ctx context.Context, clientID string, sequence int64) ([]byte, error) {
	data, err := s.Read(ctx, clientID, sequence)
	if err != nil {
		return nil, err
	}

	if err := s.Delete(ctx, clientID, sequence); err != nil {
		return nil, err
	}

	return data, nil
}

// ReadFile returns the bytes stored at the given storage-relative path.
func (s *ChunkStore) ReadFile(ctx context.Context, path string) ([]byte, error) {
	full := filepath.Join(s.baseDir, filepath.FromSlash(path))
	if err := s.validatePath(full); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrChunkNotFound
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return data, nil
}

// WriteFile stores data at the given storage-relative path.
func (s *ChunkStore) WriteFile(ctx context.Context, path string, data []byte) error {
	full := filepath.Join(s.baseDir, filepath.FromSlash(path))
	if err := s.validatePath(full); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(full), dirPerm); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	return writeFileAtomic(full, data)
}

// chunkPath builds and validates the path for a client's chunk file.
func (s *ChunkStore) chunkPath(clientID string, sequence int64) (string, error) {
	dir, err := s.clientDir(clientID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fmt.Sprintf("%d%s", sequence, chunkExt)), nil
}

// clientDir returns the per-client chunk directory, rejecting client IDs that
// would escape the storage root.
func (s *ChunkStore) clientDir(clientID string) (string, error) {
	if clientID == "" {
		return "", storage.ErrInvalidPath
	}

	dir := filepath.Join(s.baseDir, chunkDirName, sanitizeSegment(clientID))
	if err := s.validatePath(dir); err != nil {
		return "", err
	}

	return dir, nil
}

// validatePath checks that the given path stays within the base directory.
// This prevents path traversal via hostile client identifiers.
func (s *ChunkStore) validatePath(path string) error {
	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base directory: %w", err)
	}
	absBase = filepath.Clean(absBase)

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	absPath = filepath.Clean(absPath)

	if absPath != absBase &&
		!strings.HasPrefix(absPath+string(filepath.Separator), absBase+string(filepath.Separator)) {
		return storage.ErrInvalidPath
	}

	return nil
}

// writeFileAtomic writes to a temp file and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, filePerm); err != nil {
		return fmt.Errorf("failed to write chunk: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to finalize chunk: %w", err)
	}

	return nil
}

// sanitizeSegment replaces path-hostile characters in a single path segment.
func sanitizeSegment(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		"..", "_",
		":", "_",
	)
	return replacer.Replace(name)
}
