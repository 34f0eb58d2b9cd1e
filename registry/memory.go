package registry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRegistry provides an in-memory implementation of the Registry
// interface. It is thread-safe and suitable for single-instance deployments
// and tests.
type MemoryRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client // client_id -> record

	now func() time.Time
}

// MemoryRegistryOption configures a MemoryRegistry.
type MemoryRegistryOption func(*MemoryRegistry)

// WithClock sets the time source used for first/last-seen bookkeeping.
// Defaults to time.Now.
func WithClock(now func() time.Time) MemoryRegistryOption {
	return func(r *MemoryRegistry) {
		r.now = now
	}
}

// NewMemoryRegistry creates a new in-memory client registry.
func NewMemoryRegistry(opts ...MemoryRegistryOption) *MemoryRegistry {
	r := &MemoryRegistry{
		clients: make(map[string]*Client),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register upserts a client record.
func (r *MemoryRegistry) Register(ctx context.Context, reg Registration) (*Client, error) {
	if reg.ClientID == "" || reg.Hostname == "" {
		return nil, ErrInvalidRegistration
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if existing, ok := r.clients[reg.ClientID]; ok {
		existing.LastSeen = now
		existing.Hostname = reg.Hostname
		if reg.IPAddress != "" {
			existing.IPAddress = reg.IPAddress
		}
		return copyClient(existing), nil
	}

	client := &Client{
		ID:        uuid.NewString(),
		ClientID:  reg.ClientID,
		Hostname:  reg.Hostname,
		IPAddress: reg.IPAddress,
		Username:  reg.Username,
		OSInfo:    reg.OSInfo,
		Timezone:  reg.Timezone,
		FirstSeen: now,
		LastSeen:  now,
	}
	r.clients[reg.ClientID] = client

	return copyClient(client), nil
}

// Lookup returns the client with the given external client_id.
func (r *MemoryRegistry) Lookup(ctx context.Context, clientID string) (*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, ok := r.clients[clientID]
	if !ok {
		return nil, ErrNotFound
	}

	return copyClient(client), nil
}

// Heartbeat refreshes the client's last-seen timestamp.
func (r *MemoryRegistry) Heartbeat(ctx context.Context, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	client, ok := r.clients[clientID]
	if !ok {
		return ErrNotFound
	}

	client.LastSeen = r.now()
	return nil
}

// List returns all registered clients.
func (r *MemoryRegistry) List(ctx context.Context) ([]*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, copyClient(c))
	}

	return clients, nil
}

// copyClient returns a shallow copy with its own OSInfo map, preventing
// callers from mutating registry state.
func copyClient(c *Client) *Client {
	cp := *c
	if c.OSInfo != nil {
		cp.OSInfo = make(map[string]string, len(c.OSInfo))
		for k, v := range c.OSInfo {
			cp.OSInfo[k] = v
		}
	}
	return &cp
}
