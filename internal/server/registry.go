package server

import (
	"sync"
)

// Registry tracks which connections are currently authenticated as which
// user. A user may hold several connections at once (multi-device). It is
// the only shared mutable structure in the engine; every operation holds
// the lock only long enough to mutate or snapshot the map, never while
// dispatching.
type Registry struct {
	mu    sync.RWMutex
	conns map[int]map[*Client]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[int]map[*Client]struct{}),
	}
}

// Register associates a connection with a user and reports whether this was
// the user's 0->1 transition. Registering the same pair twice is a no-op.
func (r *Registry) Register(userId int, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userId]
	if !ok {
		set = make(map[*Client]struct{})
		r.conns[userId] = set
	}
	set[c] = struct{}{}

	return !ok
}

// Unregister removes the association and reports whether the user went
// offline. Unknown pairs are a no-op, which covers disconnect notifications
// racing an earlier cleanup.
func (r *Registry) Unregister(userId int, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userId]
	if !ok {
		return false
	}

	if _, ok := set[c]; !ok {
		return false
	}

	delete(set, c)
	if len(set) == 0 {
		delete(r.conns, userId)
		return true
	}

	return false
}

// ConnectionsFor returns a snapshot of the user's live connections.
func (r *Registry) ConnectionsFor(userId int) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.conns[userId]
	if len(set) == 0 {
		return nil
	}

	clients := make([]*Client, 0, len(set))
	for c := range set {
		clients = append(clients, c)
	}

	return clients
}

func (r *Registry) Online(userId int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns[userId]) > 0
}

// OnlineUsers returns the ids of all users with at least one connection.
func (r *Registry) OnlineUsers() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}

	return ids
}

// Broadcast queues an event on every registered connection. Dispatch is
// best-effort per connection; a full send buffer drops the event for that
// connection only.
func (r *Registry) Broadcast(evt *ServerEvent) {
	r.mu.RLock()
	clients := make([]*Client, 0, len(r.conns))
	for _, set := range r.conns {
		for c := range set {
			clients = append(clients, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range clients {
		c.queueEvent(evt)
	}
}
