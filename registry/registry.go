// Package registry tracks monitored clients and their liveness.
//
// The relay consumes the registry as a collaborator: a client must be known
// before a stream session can start, and the latest-frame cascade
// short-circuits for unknown clients. Liveness is derived from the heartbeat
// timestamp, not recomputed by the relay.
package registry

import (
	"context"
	"errors"
	"time"
)

// OnlineWindow is how recently a client must have been seen to count as online.
const OnlineWindow = 5 * time.Minute

// Client is a registered monitored endpoint.
type Client struct {
	// ID is the internal identifier assigned at registration.
	ID string `json:"id"`
	// ClientID is the opaque external identifier the client self-reports.
	ClientID  string            `json:"client_id"`
	Hostname  string            `json:"hostname"`
	IPAddress string            `json:"ip_address,omitempty"`
	Username  string            `json:"username,omitempty"`
	OSInfo    map[string]string `json:"os_info,omitempty"`
	Timezone  string            `json:"timezone,omitempty"`
	FirstSeen time.Time         `json:"first_seen"`
	LastSeen  time.Time         `json:"last_seen"`
}

// Online reports whether the client's last heartbeat falls within the
// freshness window, evaluated against the given time.
func (c *Client) Online(now time.Time) bool {
	if c.LastSeen.IsZero() {
		return false
	}
	return now.Sub(c.LastSeen) <= OnlineWindow
}

// Registration carries the fields a client submits when registering.
type Registration struct {
	ClientID  string            `json:"client_id"`
	Hostname  string            `json:"hostname"`
	IPAddress string            `json:"ip_address,omitempty"`
	Username  string            `json:"username,omitempty"`
	OSInfo    map[string]string `json:"os_info,omitempty"`
	Timezone  string            `json:"timezone,omitempty"`
}

// Registry defines lookup and liveness tracking for monitored clients.
type Registry interface {
	// Register upserts a client record. Registering an existing client_id
	// refreshes its last-seen timestamp and returns the existing record.
	Register(ctx context.Context, reg Registration) (*Client, error)

	// Lookup returns the client with the given external client_id.
	// Returns ErrNotFound if the client is unknown.
	Lookup(ctx context.Context, clientID string) (*Client, error)

	// Heartbeat refreshes the client's last-seen timestamp.
	// Returns ErrNotFound if the client is unknown.
	Heartbeat(ctx context.Context, clientID string) error

	// List returns all registered clients.
	List(ctx context.Context) ([]*Client, error)
}

// ErrNotFound is returned when a client isn't registered.
var ErrNotFound = errors.New("client not found")

// ErrInvalidRegistration is returned when required registration fields are missing.
var ErrInvalidRegistration = errors.New("invalid registration")
