package types

import (
	"time"
)

type User struct {
	Id           int       `json:"id"`
	Name         string    `json:"name"`
	EmailAddress string    `json:"email_address,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

type Message struct {
	Id        int       `json:"id"`
	FromId    int       `json:"from_id"`
	ToId      int       `json:"to_id"`
	Content   string    `json:"content"`
	Delivered bool      `json:"delivered"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationEntry pairs a user with the most recent message exchanged
// between that user and the requesting user, if any.
type ConversationEntry struct {
	User        User     `json:"user"`
	LastMessage *Message `json:"last_message,omitempty"`
}
