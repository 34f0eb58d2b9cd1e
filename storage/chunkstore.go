// Package storage defines the durable storage interfaces consumed by the relay:
// per-client chunk files for the push channel and screenshot image bytes for
// the cascade's last-resort fallback.
package storage

import (
	"context"
	"errors"
)

// ChunkStore persists stream chunks as one file per (client, sequence).
// Chunk files are transient: the push channel deletes each file after emitting
// it once, and a periodic sweep removes anything left behind.
type ChunkStore interface {
	// Put writes the raw chunk bytes for the given client and sequence,
	// overwriting any existing chunk at that sequence.
	Put(ctx context.Context, clientID string, sequence int64, data []byte) error

	// List returns the sequences with a stored chunk for the client,
	// in ascending order. A client with no chunks yields an empty slice.
	List(ctx context.Context, clientID string) ([]int64, error)

	// Read returns the chunk bytes for the given client and sequence.
	// Returns ErrChunkNotFound if no such chunk exists.
	Read(ctx context.Context, clientID string, sequence int64) ([]byte, error)

	// Delete removes the chunk for the given client and sequence.
	// Deleting an absent chunk is not an error.
	Delete(ctx context.Context, clientID string, sequence int64) error

	// ReadAndDelete reads the chunk and removes it in one step, giving the
	// push channel its consume-once semantics.
	ReadAndDelete(ctx context.Context, clientID string, sequence int64) ([]byte, error)
}

// FileReader reads raw bytes at a storage-relative path. The cascade uses it
// to load durable screenshot images.
type FileReader interface {
	// ReadFile returns the bytes stored at the given relative path.
	// Returns ErrChunkNotFound if the file doesn't exist.
	ReadFile(ctx context.Context, path string) ([]byte, error)
}

// FileWriter writes raw bytes at a storage-relative path.
type FileWriter interface {
	// WriteFile stores data at the given relative path, creating parent
	// directories as needed.
	WriteFile(ctx context.Context, path string, data []byte) error
}

// ErrChunkNotFound is returned when a requested chunk or file doesn't exist.
var ErrChunkNotFound = errors.New("chunk not found")

// ErrInvalidPath is returned when a path escapes the storage root.
var ErrInvalidPath = errors.New("invalid storage path")
