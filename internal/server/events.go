package server

import (
	"encoding/json"
	"time"

	"github.com/sbarnett-io/chatd/internal/types"
)

// Wire event names. These are a compatibility contract with existing
// clients and must not change.
const (
	EventAuth           = "auth"
	EventPresenceGet    = "presence:get"
	EventPresenceUpdate = "presence:update"
	EventUserStatus     = "user:status"
	EventMessageSend    = "message:send"
	EventMessageNew     = "message:new"
	EventTypingStart    = "typing:start"
	EventTypingStop     = "typing:stop"
	EventMessageRead    = "message:read"
)

// ClientEvent is one inbound frame. Data is decoded per event name.
type ClientEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ServerEvent is one outbound frame.
type ServerEvent struct {
	Event     string    `json:"event"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type AuthPayload struct {
	Token string `json:"token"`
}

type SendPayload struct {
	To      int    `json:"to"`
	Content string `json:"content"`
}

type TypingPayload struct {
	To int `json:"to"`
}

type UserStatus struct {
	UserId int  `json:"user_id"`
	Online bool `json:"online"`
}

type TypingNotice struct {
	From int `json:"from"`
}

type ReadNotice struct {
	MessageId int `json:"message_id"`
	ReaderId  int `json:"reader_id"`
}

func newUserStatusEvent(userId int, online bool) *ServerEvent {
	return &ServerEvent{
		Event:     EventUserStatus,
		Data:      UserStatus{UserId: userId, Online: online},
		Timestamp: Now(),
	}
}

func newPresenceUpdateEvent(userIds []int) *ServerEvent {
	return &ServerEvent{
		Event:     EventPresenceUpdate,
		Data:      userIds,
		Timestamp: Now(),
	}
}

func newMessageEvent(msg types.Message) *ServerEvent {
	return &ServerEvent{
		Event:     EventMessageNew,
		Data:      msg,
		Timestamp: Now(),
	}
}

func newTypingEvent(event string, fromId int) *ServerEvent {
	return &ServerEvent{
		Event:     event,
		Data:      TypingNotice{From: fromId},
		Timestamp: Now(),
	}
}

func newReadEvent(messageId, readerId int) *ServerEvent {
	return &ServerEvent{
		Event:     EventMessageRead,
		Data:      ReadNotice{MessageId: messageId, ReaderId: readerId},
		Timestamp: Now(),
	}
}

// parseAuthToken accepts both the envelope form {"token": "..."} and a bare
// JSON string, which older clients send.
func parseAuthToken(data json.RawMessage) (string, error) {
	var p AuthPayload
	if err := json.Unmarshal(data, &p); err == nil && p.Token != "" {
		return p.Token, nil
	}

	var token string
	if err := json.Unmarshal(data, &token); err != nil {
		return "", err
	}
	return token, nil
}

// parseReadIds accepts a JSON array of message ids or a single bare id.
func parseReadIds(data json.RawMessage) ([]int, error) {
	var ids []int
	if err := json.Unmarshal(data, &ids); err == nil {
		return ids, nil
	}

	var id int
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, err
	}
	return []int{id}, nil
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
