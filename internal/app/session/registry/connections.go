// Package registry keeps the records of attached clients.
package registry

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/osa030/mediad/internal/domain/client"
)

var (
	ErrUnknownConnection = errors.New("unknown connection")
)

// ConnectionRegistry manages connection records with thread-safe access.
type ConnectionRegistry struct {
	mu          sync.RWMutex
	connections map[string]*client.Connection
}

// NewConnectionRegistry creates a new connection registry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		connections: make(map[string]*client.Connection),
	}
}

// Add records a new connection and returns it.
func (r *ConnectionRegistry) Add(identity client.Identity, transport string, allowed bool, rootID string) *client.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.New().String()
	conn := client.NewConnection(id, identity, transport, allowed, rootID)
	r.connections[id] = conn
	return conn
}

// Get retrieves a connection by ID.
func (r *ConnectionRegistry) Get(connectionID string) (*client.Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.connections[connectionID]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownConnection, "connection %s", connectionID)
	}
	return conn, nil
}

// Remove destroys a connection record.
func (r *ConnectionRegistry) Remove(connectionID string) (*client.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.connections[connectionID]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownConnection, "connection %s", connectionID)
	}
	delete(r.connections, connectionID)
	return conn, nil
}

// All returns all connections, oldest first.
func (r *ConnectionRegistry) All() []*client.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*client.Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		result = append(result, conn)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].AttachedAt.Before(result[j].AttachedAt)
	})
	return result
}

// Count returns the number of connections.
func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}
