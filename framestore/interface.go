// Package framestore provides ephemeral, TTL-bounded key-value storage for
// stream frames and session records.
package framestore

import (
	"context"
	"errors"
	"time"
)

// Store defines the interface for TTL-based frame and session storage.
// Values are opaque byte slices; callers handle serialization. Every entry
// carries its own time-to-live, after which reads return ErrNotFound.
type Store interface {
	// Put stores value under key with the given TTL. A zero TTL means the
	// entry never expires. Overwrites any existing entry (last-writer-wins).
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get retrieves the value stored under key.
	// Returns ErrNotFound if the key is absent or its TTL has elapsed.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the entry under key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Has reports whether key holds an unexpired entry.
	Has(ctx context.Context, key string) (bool, error)
}

// ErrNotFound is returned when a key doesn't exist or has expired.
var ErrNotFound = errors.New("key not found")

// ErrInvalidKey is returned when an empty key is provided.
var ErrInvalidKey = errors.New("invalid key")
