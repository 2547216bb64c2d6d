package chat

import (
	"sync"
)

// Registry is the shared set of live connections, keyed by connection ID.
// Every entry belongs to a socket the transport still considers open;
// only authenticated entries are ever handed to the fan-out or history
// push. All mutation happens under the lock, so iteration snapshots never
// observe a partially built entry.
type Registry struct {
	mu     sync.RWMutex
	byConn map[string]*Client
}

func NewRegistry() *Registry {
	return &Registry{byConn: make(map[string]*Client)}
}

func (r *Registry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byConn[c.ConnID] = c
}

// Remove deletes and returns the entry, or nil when it was already gone.
// Calling twice for the same connection is fine.
func (r *Registry) Remove(connID string) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byConn[connID]
	if !ok {
		return nil
	}
	delete(r.byConn, connID)
	return c
}

func (r *Registry) Get(connID string) *Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byConn[connID]
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

// Snapshot returns all connections at this instant. A connection added
// after the snapshot is taken is not part of it.
func (r *Registry) Snapshot() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.byConn))
	for _, c := range r.byConn {
		out = append(out, c)
	}
	return out
}

// Authed returns the authenticated connections at this instant; the only
// ones eligible for broadcasts and history pushes.
func (r *Registry) Authed() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.byConn))
	for _, c := range r.byConn {
		if c.Authenticated() {
			out = append(out, c)
		}
	}
	return out
}
