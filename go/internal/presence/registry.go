package presence

import (
	"sync"

	"github.com/gamenight/livescore/go/internal/models"
)

// Registry tracks the identity assigned to each live connection.
// Identities are created on connect and dropped on disconnect; nothing
// here survives the socket.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]models.Identity
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]models.Identity),
	}
}

// Register stores the identity for a connection, replacing any previous one.
func (r *Registry) Register(identity models.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[identity.ConnectionID] = identity
}

// Resolve returns the identity bound to a connection, if any.
func (r *Registry) Resolve(connectionID string) (models.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	identity, ok := r.conns[connectionID]
	return identity, ok
}

// Drop removes the identity for a connection and reports whether one existed.
func (r *Registry) Drop(connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[connectionID]; !ok {
		return false
	}
	delete(r.conns, connectionID)
	return true
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
