// Package session tracks which live connections belong to which
// authenticated users. It is the only owner of that mapping.
package session

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Identity is a verified user
type Identity struct {
	UserID   uuid.UUID
	Username string
}

// Registry maps connection ids to identities, with a username index so
// directed delivery does not scan every binding. Both maps change together
// under one lock.
type Registry struct {
	mu         sync.RWMutex
	bindings   map[uuid.UUID]Identity
	byUsername map[string]map[uuid.UUID]struct{}
	order      map[uuid.UUID]uint64
	seq        uint64
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		bindings:   make(map[uuid.UUID]Identity),
		byUsername: make(map[string]map[uuid.UUID]struct{}),
		order:      make(map[uuid.UUID]uint64),
	}
}

// Bind marks connID as authenticated as id, replacing any earlier binding
// for that connection. It returns the replaced identity, if any.
func (r *Registry) Bind(connID uuid.UUID, id Identity) (Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous, had := r.bindings[connID]
	if had {
		r.removeIndex(connID, previous.Username)
	}

	r.bindings[connID] = id
	conns, ok := r.byUsername[id.Username]
	if !ok {
		conns = make(map[uuid.UUID]struct{})
		r.byUsername[id.Username] = conns
	}
	conns[connID] = struct{}{}
	r.seq++
	r.order[connID] = r.seq

	return previous, had
}

// Unbind removes connID. remaining counts the user's other live
// connections. Unbinding an unknown connection is a no-op.
func (r *Registry) Unbind(connID uuid.UUID) (id Identity, remaining int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok = r.bindings[connID]
	if !ok {
		return Identity{}, 0, false
	}

	delete(r.bindings, connID)
	delete(r.order, connID)
	r.removeIndex(connID, id.Username)

	return id, len(r.byUsername[id.Username]), true
}

func (r *Registry) removeIndex(connID uuid.UUID, username string) {
	conns := r.byUsername[username]
	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.byUsername, username)
	}
}

// Lookup returns the identity bound to connID
func (r *Registry) Lookup(connID uuid.UUID) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.bindings[connID]
	return id, ok
}

// FindConnection returns the most recently bound connection of username
func (r *Registry) FindConnection(username string) (uuid.UUID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		best    uuid.UUID
		bestSeq uint64
		found   bool
	)
	for connID := range r.byUsername[username] {
		if seq := r.order[connID]; !found || seq > bestSeq {
			best, bestSeq, found = connID, seq, true
		}
	}
	return best, found
}

// ConnectionsOf returns every live connection of username in bind order
func (r *Registry) ConnectionsOf(username string) []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]uuid.UUID, 0, len(r.byUsername[username]))
	for connID := range r.byUsername[username] {
		conns = append(conns, connID)
	}
	r.sortByOrder(conns)
	return conns
}

// ConnectionsOfUser returns every live connection bound to userID
func (r *Registry) ConnectionsOfUser(userID uuid.UUID) []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var conns []uuid.UUID
	for connID, id := range r.bindings {
		if id.UserID == userID {
			conns = append(conns, connID)
		}
	}
	r.sortByOrder(conns)
	return conns
}

// Connections returns all authenticated connections in bind order
func (r *Registry) Connections() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]uuid.UUID, 0, len(r.bindings))
	for connID := range r.bindings {
		conns = append(conns, connID)
	}
	r.sortByOrder(conns)
	return conns
}

// Count returns the number of authenticated connections
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bindings)
}

// caller holds r.mu
func (r *Registry) sortByOrder(conns []uuid.UUID) {
	sort.Slice(conns, func(i, j int) bool {
		return r.order[conns[i]] < r.order[conns[j]]
	})
}
