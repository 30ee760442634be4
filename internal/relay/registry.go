package relay

import (
	"sync"

	"cipherline/internal/domain"
	"cipherline/internal/protocol/frame"
)

// Peer is one registered client connection.
type Peer interface {
	ConnID() domain.ConnID
	SessionID() domain.SessionID
	// Send queues f for delivery without blocking on the network.
	Send(f frame.Frame) error
}

// Registry tracks which connections belong to which user.
type Registry struct {
	sync.RWMutex

	users map[domain.UserID]map[domain.ConnID]Peer
	count int
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{users: make(map[domain.UserID]map[domain.ConnID]Peer)}
}

// Add registers p under userID. Adding the same connection twice is a no-op.
func (r *Registry) Add(userID domain.UserID, p Peer) {
	r.Lock()
	defer r.Unlock()
	set, ok := r.users[userID]
	if !ok {
		set = make(map[domain.ConnID]Peer)
		r.users[userID] = set
	}
	if _, dup := set[p.ConnID()]; dup {
		return
	}
	set[p.ConnID()] = p
	r.count++
}

// Remove deregisters p and reports whether it was present.
func (r *Registry) Remove(userID domain.UserID, p Peer) bool {
	r.Lock()
	defer r.Unlock()
	set, ok := r.users[userID]
	if !ok {
		return false
	}
	if _, ok := set[p.ConnID()]; !ok {
		return false
	}
	delete(set, p.ConnID())
	r.count--
	if len(set) == 0 {
		delete(r.users, userID)
	}
	return true
}

// Connections returns a snapshot of userID's connections.
func (r *Registry) Connections(userID domain.UserID) []Peer {
	r.RLock()
	defer r.RUnlock()
	set := r.users[userID]
	out := make([]Peer, 0, len(set))
	for _, p := range set {
		out = append(out, p)
	}
	return out
}

// Users returns the number of users with at least one connection.
func (r *Registry) Users() int {
	r.RLock()
	defer r.RUnlock()
	return len(r.users)
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.RLock()
	defer r.RUnlock()
	return r.count
}
