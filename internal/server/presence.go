package server

import (
	"log"
	"sort"

	"github.com/sbarnett-io/chatd/internal/stats"
)

// PresenceTracker converts registry transitions into presence events. Status
// changes are broadcast to every connected user; there is no per-relationship
// subscriber list, so each transition costs O(online connections).
type PresenceTracker struct {
	registry *Registry
	log      *log.Logger
	stats    stats.StatsProvider
}

func NewPresenceTracker(registry *Registry, logger *log.Logger, su stats.StatsProvider) *PresenceTracker {
	return &PresenceTracker{
		registry: registry,
		log:      logger,
		stats:    su,
	}
}

// HandleOnline broadcasts a user's 0->1 transition.
func (p *PresenceTracker) HandleOnline(userId int) {
	p.log.Printf("user %d is online", userId)
	p.stats.Incr(statOnlineUsers)
	p.registry.Broadcast(newUserStatusEvent(userId, true))
	p.registry.Broadcast(newPresenceUpdateEvent(p.onlineUsers()))
}

// HandleOffline broadcasts a user's 1->0 transition.
func (p *PresenceTracker) HandleOffline(userId int) {
	p.log.Printf("user %d is offline", userId)
	p.stats.Decr(statOnlineUsers)
	p.registry.Broadcast(newUserStatusEvent(userId, false))
	p.registry.Broadcast(newPresenceUpdateEvent(p.onlineUsers()))
}

// SendPresence replies with the full current online set to a single
// connection.
func (p *PresenceTracker) SendPresence(c *Client) {
	c.queueEvent(newPresenceUpdateEvent(p.onlineUsers()))
}

func (p *PresenceTracker) onlineUsers() []int {
	ids := p.registry.OnlineUsers()
	sort.Ints(ids)
	return ids
}
