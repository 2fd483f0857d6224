package server

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/sbarnett-io/chatd/internal/database"
	"github.com/sbarnett-io/chatd/internal/stats"
	"github.com/sbarnett-io/chatd/internal/types"
)

// ErrEmptyContent is returned for a send whose content is empty after
// trimming. Nothing is persisted in that case.
var ErrEmptyContent = errors.New("message content is empty")

// MessageRouter persists outbound messages and fans the result out to the
// live connections of both participants. Real-time dispatch is a
// notification layer over durable state: persistence failures abort the
// send, dispatch failures never do.
type MessageRouter struct {
	db       database.ChatRepository
	registry *Registry
	log      *log.Logger
	stats    stats.StatsProvider
}

func NewMessageRouter(db database.ChatRepository, registry *Registry, logger *log.Logger, su stats.StatsProvider) *MessageRouter {
	return &MessageRouter{
		db:       db,
		registry: registry,
		log:      logger,
		stats:    su,
	}
}

// Send persists a message from fromId to toId and dispatches it. The
// delivered flag is raised exactly when the recipient has at least one live
// connection at send time. The sender's own connections always receive an
// echo of the persisted message.
func (mr *MessageRouter) Send(fromId, toId int, content string) (types.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return types.Message{}, ErrEmptyContent
	}

	msg, err := mr.db.CreateMessage(fromId, toId, content)
	if err != nil {
		return types.Message{}, fmt.Errorf("create message: %w", err)
	}

	recipients := mr.registry.ConnectionsFor(toId)
	if len(recipients) > 0 {
		msg, err = mr.db.MarkDelivered(msg.Id)
		if err != nil {
			return types.Message{}, fmt.Errorf("mark delivered: %w", err)
		}
		mr.stats.Incr(statMessagesDelivered)
	}

	evt := newMessageEvent(messageToWire(msg))
	for _, c := range recipients {
		c.queueEvent(evt)
	}
	for _, c := range mr.registry.ConnectionsFor(fromId) {
		c.queueEvent(evt)
	}

	mr.stats.Incr(statMessagesRouted)

	return messageToWire(msg), nil
}

func messageToWire(m database.Message) types.Message {
	return types.Message{
		Id:        m.Id,
		FromId:    m.FromId,
		ToId:      m.ToId,
		Content:   m.Content,
		Delivered: m.Delivered,
		Read:      m.Read,
		CreatedAt: m.CreatedAt,
	}
}
