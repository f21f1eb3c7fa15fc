// Package registry maps user identities to live connection ids.
//
// Registration is unauthenticated: whoever claims a user id on a connection
// receives that user's pushes. At most one connection per user is tracked and
// the most recent registration wins; a superseded connection stays open but is
// no longer reachable through Lookup.
package registry

import "sync"

// Registry is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{byUser: make(map[string]string)}
}

// Register binds userID to connID, replacing any previous binding for userID.
func (r *Registry) Register(userID, connID string) {
	r.mu.Lock()
	r.byUser[userID] = connID
	r.mu.Unlock()
}

// Unregister removes the entry whose connection id is connID and returns the
// user it belonged to. ok is false when connID is not the current binding of
// any user, including when it was superseded.
func (r *Registry) Unregister(connID string) (userID string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for u, c := range r.byUser {
		if c == connID {
			delete(r.byUser, u)
			return u, true
		}
	}
	return "", false
}

// Lookup returns the connection currently bound to userID.
func (r *Registry) Lookup(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byUser[userID]
	return c, ok
}

// Len returns the number of registered users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// Snapshot returns a copy of the user -> connection map.
func (r *Registry) Snapshot() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.byUser))
	for u, c := range r.byUser {
		out[u] = c
	}
	return out
}
