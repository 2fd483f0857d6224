package server

import (
	"fmt"
	"log"

	"github.com/sbarnett-io/chatd/internal/database"
	"github.com/sbarnett-io/chatd/internal/stats"
)

// ReadReceiptProcessor marks batches of messages read in the durable store
// and notifies both participants' live connections. Marking an already-read
// message again is a no-op; ids that match no message are skipped.
type ReadReceiptProcessor struct {
	db       database.ChatRepository
	registry *Registry
	log      *log.Logger
	stats    stats.StatsProvider
}

func NewReadReceiptProcessor(db database.ChatRepository, registry *Registry, logger *log.Logger, su stats.StatsProvider) *ReadReceiptProcessor {
	return &ReadReceiptProcessor{
		db:       db,
		registry: registry,
		log:      logger,
		stats:    su,
	}
}

func (rp *ReadReceiptProcessor) MarkRead(readerId int, ids []int) error {
	if len(ids) == 0 {
		return nil
	}

	msgs, err := rp.db.MarkReadBatch(ids)
	if err != nil {
		return fmt.Errorf("mark read batch: %w", err)
	}

	if len(msgs) < len(ids) {
		rp.log.Printf("markRead: %d of %d ids matched a message", len(msgs), len(ids))
	}

	for _, m := range msgs {
		evt := newReadEvent(m.Id, readerId)
		for _, c := range rp.registry.ConnectionsFor(m.FromId) {
			c.queueEvent(evt)
		}
		if m.ToId != m.FromId {
			for _, c := range rp.registry.ConnectionsFor(m.ToId) {
				c.queueEvent(evt)
			}
		}
		rp.stats.Incr(statReadReceipts)
	}

	return nil
}
