// Package registry owns the server-side table of live connections, indexed
// by user identity.
//
// The Registry is the single shared mutable resource of the realtime layer
// and its designated synchronization boundary: every register, unregister,
// and lookup is a short critical section with no I/O under the lock. Lookups
// return snapshots that are safe to iterate while registration churns.
package registry

import (
	"fmt"
	"sync"

	"github.com/Sirius-ashwak/curalink/internal/metrics"
)

// Registry maps user ids to their live connections. A user may hold several
// simultaneous connections (multiple tabs or devices); every one of them is
// a broadcast target.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]map[*Connection]struct{}

	// onFirstConnection fires when a user goes from zero to one connection,
	// onUserOffline when the last one is removed. Both run outside the lock.
	onFirstConnection func(userID string)
	onUserOffline     func(userID string)
}

// Option configures a Registry.
type Option func(*Registry)

// WithPresenceHooks installs the first-connection / last-disconnect
// callbacks consumed by the presence tracker.
func WithPresenceHooks(onFirst, onOffline func(userID string)) Option {
	return func(r *Registry) {
		r.onFirstConnection = onFirst
		r.onUserOffline = onOffline
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{byUser: make(map[string]map[*Connection]struct{})}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds c to the set for userID, creating the set if absent. The
// connection becomes a broadcast target immediately. A connection can belong
// to at most one user at a time.
func (r *Registry) Register(userID string, c *Connection) error {
	if userID == "" {
		return fmt.Errorf("user id must not be empty")
	}

	r.mu.Lock()
	if c.owner != "" {
		r.mu.Unlock()
		return fmt.Errorf("connection %s already registered for user %s", c.id, c.owner)
	}
	c.owner = userID

	conns, exists := r.byUser[userID]
	if !exists {
		conns = make(map[*Connection]struct{})
		r.byUser[userID] = conns
	}
	conns[c] = struct{}{}

	users, total := len(r.byUser), r.totalLocked()
	r.mu.Unlock()

	metrics.RegistryConnectedUsers.Set(float64(users))
	metrics.RegistryConnections.Set(float64(total))

	if !exists && r.onFirstConnection != nil {
		r.onFirstConnection(userID)
	}
	return nil
}

// Unregister removes c from whatever user set it belongs to. Idempotent:
// calling it again after the first removal is a no-op. It does not close the
// connection; the transport belongs to the connection's own lifecycle.
func (r *Registry) Unregister(c *Connection) {
	r.mu.Lock()
	owner := c.owner
	conns, ok := r.byUser[owner]
	if !ok {
		r.mu.Unlock()
		return
	}
	if _, ok := conns[c]; !ok {
		r.mu.Unlock()
		return
	}
	delete(conns, c)

	offline := len(conns) == 0
	if offline {
		delete(r.byUser, owner)
	}

	users, total := len(r.byUser), r.totalLocked()
	r.mu.Unlock()

	metrics.RegistryConnectedUsers.Set(float64(users))
	metrics.RegistryConnections.Set(float64(total))

	if offline && r.onUserOffline != nil {
		r.onUserOffline(owner)
	}
}

// ConnectionsFor returns a snapshot of the live connections for userID,
// empty if the user has none.
func (r *Registry) ConnectionsFor(userID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.byUser[userID]
	out := make([]*Connection, 0, len(conns))
	for c := range conns {
		out = append(out, c)
	}
	return out
}

// All returns a snapshot of every registered connection.
func (r *Registry) All() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Connection, 0)
	for _, conns := range r.byUser {
		for c := range conns {
			out = append(out, c)
		}
	}
	return out
}

// Users returns the number of users with at least one live connection.
func (r *Registry) Users() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// Len returns the total number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.totalLocked()
}

func (r *Registry) totalLocked() int {
	total := 0
	for _, conns := range r.byUser {
		total += len(conns)
	}
	return total
}
