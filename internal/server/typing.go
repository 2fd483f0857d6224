package server

import (
	"github.com/sbarnett-io/chatd/internal/stats"
)

// TypingCoordinator relays ephemeral typing signals between two users' live
// connections. Nothing is persisted and delivery is not acknowledged;
// clients expire a typing indicator locally after a short quiet period, so
// a dropped stop signal is harmless.
type TypingCoordinator struct {
	registry *Registry
	stats    stats.StatsProvider
}

func NewTypingCoordinator(registry *Registry, su stats.StatsProvider) *TypingCoordinator {
	return &TypingCoordinator{
		registry: registry,
		stats:    su,
	}
}

func (tc *TypingCoordinator) Start(fromId, toId int) {
	tc.relay(EventTypingStart, fromId, toId)
}

func (tc *TypingCoordinator) Stop(fromId, toId int) {
	tc.relay(EventTypingStop, fromId, toId)
}

func (tc *TypingCoordinator) relay(event string, fromId, toId int) {
	conns := tc.registry.ConnectionsFor(toId)
	if len(conns) == 0 {
		return
	}

	evt := newTypingEvent(event, fromId)
	for _, c := range conns {
		c.queueEvent(evt)
	}

	tc.stats.Incr(statTypingEvents)
}
