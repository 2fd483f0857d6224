package server

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sbarnett-io/chatd/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client is one live websocket connection. It starts unauthenticated; the
// first valid auth event binds it to a user and enters it in the registry.
// The transport layer owns the connection lifetime and reports closure via
// the read pump's exit.
type Client struct {
	id         string
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *log.Logger
	user       types.User
	userSet    bool
	userLock   sync.RWMutex
	send       chan *ServerEvent
	stop       chan struct{}
	stopOnce   sync.Once
}

func NewClient(conn *websocket.Conn, cs *ChatServer, l *log.Logger) *Client {
	return &Client{
		id:         uuid.NewString(),
		conn:       conn,
		chatServer: cs,
		log:        l,
		send:       make(chan *ServerEvent, 256),
		stop:       make(chan struct{}),
	}
}

func (c *Client) setUser(u types.User) {
	c.userLock.Lock()
	defer c.userLock.Unlock()
	c.user = u
	c.userSet = true
}

// User returns the bound identity and whether authentication has happened.
func (c *Client) User() (types.User, bool) {
	c.userLock.RLock()
	defer c.userLock.RUnlock()
	return c.user, c.userSet
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case evt, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(evt)
			if err != nil {
				c.log.Println("failed to serialize event:", err)
				continue
			}

			if !c.writeFrame(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.writeFrame(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var evt ClientEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			c.log.Println("error parsing event:", err)
			continue
		}

		c.handleEvent(&evt)
	}
}

// handleEvent dispatches one inbound frame. Anything other than auth is
// dropped until the connection has authenticated.
func (c *Client) handleEvent(evt *ClientEvent) {
	if evt.Event == EventAuth {
		token, err := parseAuthToken(evt.Data)
		if err != nil {
			c.log.Println("auth: bad payload:", err)
			return
		}
		c.chatServer.authenticateClient(c, token)
		return
	}

	user, ok := c.User()
	if !ok {
		c.log.Printf("dropping %q from unauthenticated connection %s", evt.Event, c.id)
		return
	}

	switch evt.Event {
	case EventPresenceGet:
		c.chatServer.presence.SendPresence(c)
	case EventMessageSend:
		var p SendPayload
		if err := json.Unmarshal(evt.Data, &p); err != nil {
			c.log.Println("message:send: bad payload:", err)
			return
		}
		if _, err := c.chatServer.router.Send(user.Id, p.To, p.Content); err != nil {
			if errors.Is(err, ErrEmptyContent) {
				c.log.Printf("message:send: rejected empty message from user %d", user.Id)
			} else {
				c.log.Println("message:send:", err)
			}
		}
	case EventTypingStart, EventTypingStop:
		var p TypingPayload
		if err := json.Unmarshal(evt.Data, &p); err != nil {
			c.log.Println("typing: bad payload:", err)
			return
		}
		if evt.Event == EventTypingStart {
			c.chatServer.typing.Start(user.Id, p.To)
		} else {
			c.chatServer.typing.Stop(user.Id, p.To)
		}
	case EventMessageRead:
		ids, err := parseReadIds(evt.Data)
		if err != nil {
			c.log.Println("message:read: bad payload:", err)
			return
		}
		if err := c.chatServer.receipts.MarkRead(user.Id, ids); err != nil {
			c.log.Println("message:read:", err)
		}
	default:
		c.log.Printf("unknown event %q on connection %s", evt.Event, c.id)
	}
}

// queueEvent is non-blocking; an event is dropped if the connection's send
// buffer is full.
func (c *Client) queueEvent(evt *ServerEvent) bool {
	select {
	case c.send <- evt:
	default:
		c.log.Printf("send buffer full on connection %s, dropping %q", c.id, evt.Event)
		return false
	}

	return true
}

func (c *Client) writeFrame(msgType int, data []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, data); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write frame: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) cleanup() {
	c.chatServer.releaseClient(c)
	c.stopClient()
}
