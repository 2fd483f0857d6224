package server

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/sbarnett-io/chatd/internal/database"
	"github.com/sbarnett-io/chatd/internal/stats"
	"github.com/sbarnett-io/chatd/internal/testutil"
	"github.com/sbarnett-io/chatd/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newTestChatServer(t *testing.T, db database.ChatRepository, verifier TokenVerifier, su *stats.MockStatsUpdater) *ChatServer {
	t.Helper()
	su.On("RegisterMetric", mock.Anything).Times(6)

	cs, err := NewChatServer(testutil.TestLogger(t), db, verifier, su)
	if err != nil {
		t.Fatalf("failed to create test ChatServer: %v", err)
	}
	return cs
}

func Test_queueEvent(t *testing.T) {
	t.Run("successful queue", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerEvent, 1),
			log:  testutil.TestLogger(t),
		}

		res := c.queueEvent(&ServerEvent{Event: EventUserStatus})
		assert.True(t, res, "expected queueEvent to return true when channel is not full")

		select {
		case evt := <-c.send:
			assert.NotNil(t, evt, "expected an event to be queued")
		default:
			t.Error("expected an event to be queued, but none was")
		}
	})
	t.Run("channel full", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerEvent, 1),
			log:  testutil.TestLogger(t),
		}

		c.send <- &ServerEvent{}
		res := c.queueEvent(&ServerEvent{Event: EventUserStatus})
		assert.False(t, res, "expected queueEvent to return false when channel is full")
	})
}

func Test_stopClient(t *testing.T) {
	c := &Client{
		stop: make(chan struct{}),
	}

	c.stopClient()

	select {
	case <-c.stop:
	default:
		t.Error("expected stop channel to be closed")
	}

	// repeated stop is safe
	c.stopClient()
}

func Test_handleEvent_DropsPreAuthEvents(t *testing.T) {
	db := &database.MockChatRepository{}
	defer db.AssertExpectations(t)

	cs := newTestChatServer(t, db, &MockTokenVerifier{}, &stats.MockStatsUpdater{})
	c := newTestClient(t)
	c.chatServer = cs

	c.handleEvent(&ClientEvent{
		Event: EventMessageSend,
		Data:  json.RawMessage(`{"to":2,"content":"hi"}`),
	})

	db.AssertNotCalled(t, "CreateMessage")
	assert.Empty(t, drainEvents(c), "expected no events for unauthenticated connection")
}

func Test_handleEvent_Auth(t *testing.T) {
	t.Run("successful auth registers connection", func(t *testing.T) {
		db := &database.MockChatRepository{}
		db.On("GetAccountById", 1).Return(database.User{Id: 1, Name: "alice"}, nil).Once()
		defer db.AssertExpectations(t)

		verifier := &MockTokenVerifier{}
		verifier.On("Verify", "good-token").Return(1, nil).Once()
		defer verifier.AssertExpectations(t)

		su := &stats.MockStatsUpdater{}
		su.On("Incr", "OnlineUsers").Once()

		cs := newTestChatServer(t, db, verifier, su)
		c := newTestClient(t)
		c.chatServer = cs

		c.handleEvent(&ClientEvent{
			Event: EventAuth,
			Data:  json.RawMessage(`{"token":"good-token"}`),
		})

		user, ok := c.User()
		assert.True(t, ok, "expected connection to be authenticated")
		assert.Equal(t, 1, user.Id, "expected user identity bound to connection")
		assert.True(t, cs.registry.Online(1), "expected user registered")

		evts := drainEvents(c)
		assert.Len(t, evts, 2, "expected presence broadcast to reach the new connection")
	})

	t.Run("failed auth leaves connection unregistered", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)

		verifier := &MockTokenVerifier{}
		verifier.On("Verify", "bad-token").Return(0, errors.New("signature invalid")).Once()
		defer verifier.AssertExpectations(t)

		cs := newTestChatServer(t, db, verifier, &stats.MockStatsUpdater{})
		c := newTestClient(t)
		c.chatServer = cs

		c.handleEvent(&ClientEvent{
			Event: EventAuth,
			Data:  json.RawMessage(`"bad-token"`),
		})

		_, ok := c.User()
		assert.False(t, ok, "expected connection to stay unauthenticated")
		assert.Empty(t, cs.registry.OnlineUsers(), "expected no registry entry")
	})
}

func Test_handleEvent_MessageSend(t *testing.T) {
	db := &database.MockChatRepository{}
	stored := database.Message{Id: 5, FromId: 1, ToId: 2, Content: "hi"}
	db.On("CreateMessage", 1, 2, "hi").Return(stored, nil).Once()
	defer db.AssertExpectations(t)

	su := &stats.MockStatsUpdater{}
	su.On("Incr", "MessagesRouted").Once()

	cs := newTestChatServer(t, db, &MockTokenVerifier{}, su)
	c := newTestClient(t)
	c.chatServer = cs
	c.setUser(types.User{Id: 1, Name: "alice"})

	c.handleEvent(&ClientEvent{
		Event: EventMessageSend,
		Data:  json.RawMessage(`{"to":2,"content":"hi"}`),
	})
}

func Test_handleEvent_MessageRead(t *testing.T) {
	db := &database.MockChatRepository{}
	msgs := []database.Message{{Id: 9, FromId: 2, ToId: 1, Read: true}}
	db.On("MarkReadBatch", []int{9}).Return(msgs, nil).Once()
	defer db.AssertExpectations(t)

	su := &stats.MockStatsUpdater{}
	su.On("Incr", "ReadReceipts").Once()

	cs := newTestChatServer(t, db, &MockTokenVerifier{}, su)
	c := newTestClient(t)
	c.chatServer = cs
	c.setUser(types.User{Id: 1, Name: "alice"})

	c.handleEvent(&ClientEvent{
		Event: EventMessageRead,
		Data:  json.RawMessage(`[9]`),
	})
}

func Test_handleEvent_Typing(t *testing.T) {
	db := &database.MockChatRepository{}
	su := &stats.MockStatsUpdater{}
	su.On("Incr", "TypingEvents").Once()

	cs := newTestChatServer(t, db, &MockTokenVerifier{}, su)

	sender := newTestClient(t)
	sender.chatServer = cs
	sender.setUser(types.User{Id: 1})
	recipient := newTestClient(t)
	cs.registry.Register(2, recipient)

	sender.handleEvent(&ClientEvent{
		Event: EventTypingStart,
		Data:  json.RawMessage(`{"to":2}`),
	})

	evts := drainEvents(recipient)
	assert.Len(t, evts, 1, "expected one typing event")
	assert.Equal(t, EventTypingStart, evts[0].Event, "expected typing:start relayed")
	assert.Equal(t, TypingNotice{From: 1}, evts[0].Data, "expected sender id in payload")
}
