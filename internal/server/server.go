package server

import (
	"context"
	"log"
	"sync"

	"github.com/sbarnett-io/chatd/internal/database"
	"github.com/sbarnett-io/chatd/internal/stats"
	"github.com/sbarnett-io/chatd/internal/types"
)

const (
	statActiveConnections = "ActiveConnections"
	statOnlineUsers       = "OnlineUsers"
	statMessagesRouted    = "MessagesRouted"
	statMessagesDelivered = "MessagesDelivered"
	statReadReceipts      = "ReadReceipts"
	statTypingEvents      = "TypingEvents"
)

// TokenVerifier binds a transport credential to a user identity. The engine
// treats it as an opaque collaborator.
type TokenVerifier interface {
	Verify(token string) (int, error)
}

// ChatServer owns the connection registry and the engine components built
// on it. Each connection runs its own read/write goroutines; the server
// itself has no event loop.
type ChatServer struct {
	log         *log.Logger
	db          database.ChatRepository
	stats       stats.StatsProvider
	verifier    TokenVerifier
	registry    *Registry
	presence    *PresenceTracker
	router      *MessageRouter
	typing      *TypingCoordinator
	receipts    *ReadReceiptProcessor
	clients     map[*Client]struct{}
	clientsLock sync.Mutex
	wg          sync.WaitGroup
}

func NewChatServer(logger *log.Logger, db database.ChatRepository, verifier TokenVerifier, su stats.StatsProvider) (*ChatServer, error) {
	registry := NewRegistry()

	cs := &ChatServer{
		log:      logger,
		db:       db,
		stats:    su,
		verifier: verifier,
		registry: registry,
		presence: NewPresenceTracker(registry, logger, su),
		router:   NewMessageRouter(db, registry, logger, su),
		typing:   NewTypingCoordinator(registry, su),
		receipts: NewReadReceiptProcessor(db, registry, logger, su),
		clients:  make(map[*Client]struct{}),
	}

	for _, name := range []string{
		statActiveConnections,
		statOnlineUsers,
		statMessagesRouted,
		statMessagesDelivered,
		statReadReceipts,
		statTypingEvents,
	} {
		su.RegisterMetric(name)
	}

	return cs, nil
}

// RegisterClient tracks a freshly upgraded connection. The connection is
// not in the registry until it authenticates.
func (cs *ChatServer) RegisterClient(c *Client) {
	cs.clientsLock.Lock()
	cs.clients[c] = struct{}{}
	cs.clientsLock.Unlock()

	cs.wg.Add(1)
	cs.stats.Incr(statActiveConnections)
	cs.log.Printf("connection %s opened", c.id)
}

// authenticateClient verifies the credential, binds the connection to the
// user and fires presence if this was the user's first connection. A failed
// auth leaves the connection open but unregistered. The binding is set once:
// later auth events on the same connection are dropped, whatever identity
// their token carries, so the registry entry always matches the identity
// releaseClient will remove.
func (cs *ChatServer) authenticateClient(c *Client, token string) {
	if user, ok := c.User(); ok {
		cs.log.Printf("auth: connection %s already bound to user %d, dropping re-auth", c.id, user.Id)
		return
	}

	userId, err := cs.verifier.Verify(token)
	if err != nil {
		cs.log.Printf("auth failed on connection %s: %v", c.id, err)
		return
	}

	user, err := cs.db.GetAccountById(userId)
	if err != nil {
		cs.log.Printf("auth: account %d lookup: %v", userId, err)
		return
	}

	c.setUser(types.User{
		Id:           user.Id,
		Name:         user.Name,
		EmailAddress: user.EmailAddress,
		CreatedAt:    user.CreatedAt,
	})

	if cameOnline := cs.registry.Register(user.Id, c); cameOnline {
		cs.presence.HandleOnline(user.Id)
	}

	cs.log.Printf("connection %s authenticated as user %d", c.id, user.Id)
}

// releaseClient undoes RegisterClient and, for authenticated connections,
// the registry entry. Safe to call for connections that never authenticated.
func (cs *ChatServer) releaseClient(c *Client) {
	cs.clientsLock.Lock()
	_, tracked := cs.clients[c]
	delete(cs.clients, c)
	cs.clientsLock.Unlock()

	if !tracked {
		return
	}

	if user, ok := c.User(); ok {
		if wentOffline := cs.registry.Unregister(user.Id, c); wentOffline {
			cs.presence.HandleOffline(user.Id)
		}
	}

	cs.stats.Decr(statActiveConnections)
	cs.wg.Done()
	cs.log.Printf("connection %s closed", c.id)
}

// Shutdown stops every client and waits for their pumps to exit or the
// context to expire.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.clientsLock.Lock()
	for c := range cs.clients {
		c.stopClient()
	}
	cs.clientsLock.Unlock()

	done := make(chan struct{})
	go func() {
		cs.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
