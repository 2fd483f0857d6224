package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sbarnett-io/chatd/internal/config"
	"github.com/sbarnett-io/chatd/internal/database"
	"github.com/sbarnett-io/chatd/internal/server"
	"github.com/sbarnett-io/chatd/internal/stats"
	"github.com/sbarnett-io/chatd/internal/testutil"
	"github.com/sbarnett-io/chatd/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T, db database.ChatRepository) *ChatApp {
	t.Helper()

	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Times(6)

	logger := testutil.TestLogger(t)
	auth := NewTokenAuthenticator([]byte("test-signing-key"))

	cs, err := server.NewChatServer(logger, db, auth, su)
	require.NoError(t, err, "expected chat server to initialize")

	cfg := &config.Config{
		ServerAddr:     "localhost:0",
		AllowedOrigins: []string{"http://localhost:3000"},
		SigningKey:     []byte("test-signing-key"),
	}

	return NewChatApp(http.NewServeMux(), logger, cs, db, auth, cfg)
}

func TestRegister(t *testing.T) {
	tcases := []struct {
		name       string
		body       string
		setupMock  func(db *database.MockChatRepository)
		statusCode int
	}{
		{
			name: "successful registration",
			body: `{"name":"alice","email":"alice@example.com","password":"s3cret"}`,
			setupMock: func(db *database.MockChatRepository) {
				db.On("GetAccountByEmail", "alice@example.com").Return(database.User{}, sql.ErrNoRows).Once()
				db.On("CreateAccount", mock.MatchedBy(func(p database.CreateAccountParams) bool {
					return p.Name == "alice" && p.EmailAddress == "alice@example.com" && p.PasswordHash != "s3cret"
				})).Return(database.User{Id: 1, Name: "alice", EmailAddress: "alice@example.com", CreatedAt: time.Now()}, nil).Once()
			},
			statusCode: http.StatusCreated,
		},
		{
			name:       "missing fields",
			body:       `{"name":"alice"}`,
			setupMock:  func(db *database.MockChatRepository) {},
			statusCode: http.StatusBadRequest,
		},
		{
			name:       "invalid body",
			body:       `{`,
			setupMock:  func(db *database.MockChatRepository) {},
			statusCode: http.StatusBadRequest,
		},
		{
			name: "duplicate email",
			body: `{"name":"alice","email":"alice@example.com","password":"s3cret"}`,
			setupMock: func(db *database.MockChatRepository) {
				db.On("GetAccountByEmail", "alice@example.com").Return(database.User{Id: 1}, nil).Once()
			},
			statusCode: http.StatusConflict,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockChatRepository{}
			tc.setupMock(db)
			defer db.AssertExpectations(t)

			app := newTestApp(t, db)

			req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewBufferString(tc.body))
			w := httptest.NewRecorder()
			app.register(w, req)

			assert.Equal(t, tc.statusCode, w.Code, "expected status code to match")
			if tc.statusCode == http.StatusCreated {
				var resp SessionResponse
				require.NoError(t, json.NewDecoder(w.Body).Decode(&resp), "expected valid response body")
				assert.NotEmpty(t, resp.Token, "expected session token in response")
				assert.Equal(t, "alice", resp.User.Name, "expected user in response")
			}
		})
	}
}

func TestLogin(t *testing.T) {
	pwdHash, err := hashPassword("s3cret")
	require.NoError(t, err, "expected hashing to succeed")

	tcases := []struct {
		name       string
		body       string
		setupMock  func(db *database.MockChatRepository)
		statusCode int
	}{
		{
			name: "successful login",
			body: `{"email":"alice@example.com","password":"s3cret"}`,
			setupMock: func(db *database.MockChatRepository) {
				db.On("GetAccountByEmail", "alice@example.com").
					Return(database.User{Id: 1, Name: "alice", EmailAddress: "alice@example.com", PasswordHash: pwdHash}, nil).Once()
			},
			statusCode: http.StatusOK,
		},
		{
			name: "wrong password",
			body: `{"email":"alice@example.com","password":"nope"}`,
			setupMock: func(db *database.MockChatRepository) {
				db.On("GetAccountByEmail", "alice@example.com").
					Return(database.User{Id: 1, PasswordHash: pwdHash}, nil).Once()
			},
			statusCode: http.StatusUnauthorized,
		},
		{
			name: "unknown email",
			body: `{"email":"bob@example.com","password":"s3cret"}`,
			setupMock: func(db *database.MockChatRepository) {
				db.On("GetAccountByEmail", "bob@example.com").Return(database.User{}, sql.ErrNoRows).Once()
			},
			statusCode: http.StatusUnauthorized,
		},
		{
			name:       "missing fields",
			body:       `{"email":"alice@example.com"}`,
			setupMock:  func(db *database.MockChatRepository) {},
			statusCode: http.StatusBadRequest,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockChatRepository{}
			tc.setupMock(db)
			defer db.AssertExpectations(t)

			app := newTestApp(t, db)

			req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(tc.body))
			w := httptest.NewRecorder()
			app.login(w, req)

			assert.Equal(t, tc.statusCode, w.Code, "expected status code to match")
		})
	}
}

func TestAuthMiddleware(t *testing.T) {
	db := &database.MockChatRepository{}
	app := newTestApp(t, db)

	var gotUserId int
	handler := app.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		gotUserId, _ = UserId(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	t.Run("valid token", func(t *testing.T) {
		token, err := app.auth.CreateToken(42, time.Hour)
		require.NoError(t, err, "expected token creation to succeed")

		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		handler(w, req)

		assert.Equal(t, http.StatusOK, w.Code, "expected request to pass middleware")
		assert.Equal(t, 42, gotUserId, "expected user id on context")
	})

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		w := httptest.NewRecorder()
		handler(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code, "expected unauthorized without header")
	})

	t.Run("bad token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		w := httptest.NewRecorder()
		handler(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code, "expected unauthorized for bad token")
	})
}

func TestMe(t *testing.T) {
	db := &database.MockChatRepository{}
	db.On("GetAccountById", 1).
		Return(database.User{Id: 1, Name: "alice", EmailAddress: "alice@example.com"}, nil).Once()
	defer db.AssertExpectations(t)

	app := newTestApp(t, db)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req = req.WithContext(WithUserId(req.Context(), 1))
	w := httptest.NewRecorder()
	app.me(w, req)

	assert.Equal(t, http.StatusOK, w.Code, "expected OK")

	var u types.User
	require.NoError(t, json.NewDecoder(w.Body).Decode(&u), "expected valid response body")
	assert.Equal(t, 1, u.Id, "expected current user")
	assert.Equal(t, "alice", u.Name, "expected user name")
}

func TestListUsers(t *testing.T) {
	db := &database.MockChatRepository{}
	db.On("ListAccounts").Return([]database.User{
		{Id: 1, Name: "alice"},
		{Id: 2, Name: "bob"},
		{Id: 3, Name: "carol"},
	}, nil).Once()
	db.On("GetLastMessage", 1, 2).
		Return(database.Message{Id: 5, FromId: 2, ToId: 1, Content: "hey", CreatedAt: time.Now()}, nil).Once()
	db.On("GetLastMessage", 1, 3).Return(database.Message{}, sql.ErrNoRows).Once()
	defer db.AssertExpectations(t)

	app := newTestApp(t, db)

	req := httptest.NewRequest(http.MethodGet, "/auth/users", nil)
	req = req.WithContext(WithUserId(req.Context(), 1))
	w := httptest.NewRecorder()
	app.listUsers(w, req)

	assert.Equal(t, http.StatusOK, w.Code, "expected OK")

	var entries []types.ConversationEntry
	require.NoError(t, json.NewDecoder(w.Body).Decode(&entries), "expected valid response body")
	require.Len(t, entries, 2, "expected the caller to be excluded")
	assert.Equal(t, "bob", entries[0].User.Name, "expected bob first")
	require.NotNil(t, entries[0].LastMessage, "expected last message with bob")
	assert.Equal(t, "hey", entries[0].LastMessage.Content, "expected last message content")
	assert.Nil(t, entries[1].LastMessage, "expected no last message with carol")
}

func TestGetConversationMessages(t *testing.T) {
	t.Run("returns messages ascending", func(t *testing.T) {
		db := &database.MockChatRepository{}
		db.On("GetConversation", 1, 2).Return([]database.Message{
			{Id: 1, FromId: 1, ToId: 2, Content: "hi"},
			{Id: 2, FromId: 2, ToId: 1, Content: "hello", Delivered: true},
		}, nil).Once()
		defer db.AssertExpectations(t)

		app := newTestApp(t, db)

		req := httptest.NewRequest(http.MethodGet, "/conversations/2/messages", nil)
		req.SetPathValue("id", "2")
		req = req.WithContext(WithUserId(req.Context(), 1))
		w := httptest.NewRecorder()
		app.getConversationMessages(w, req)

		assert.Equal(t, http.StatusOK, w.Code, "expected OK")

		var msgs []types.Message
		require.NoError(t, json.NewDecoder(w.Body).Decode(&msgs), "expected valid response body")
		require.Len(t, msgs, 2, "expected both messages")
		assert.Equal(t, "hi", msgs[0].Content, "expected order preserved")
	})

	t.Run("bad path value", func(t *testing.T) {
		db := &database.MockChatRepository{}
		app := newTestApp(t, db)

		req := httptest.NewRequest(http.MethodGet, "/conversations/abc/messages", nil)
		req.SetPathValue("id", "abc")
		req = req.WithContext(WithUserId(req.Context(), 1))
		w := httptest.NewRecorder()
		app.getConversationMessages(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code, "expected bad request for non-numeric id")
	})
}

func TestCreateConversationMessage(t *testing.T) {
	db := &database.MockChatRepository{}
	db.On("CreateMessage", 1, 2, "offline note").
		Return(database.Message{Id: 9, FromId: 1, ToId: 2, Content: "offline note", CreatedAt: time.Now()}, nil).Once()
	defer db.AssertExpectations(t)

	app := newTestApp(t, db)

	req := httptest.NewRequest(http.MethodPost, "/conversations/2/messages",
		bytes.NewBufferString(`{"content":"offline note"}`))
	req.SetPathValue("id", "2")
	req = req.WithContext(WithUserId(req.Context(), 1))
	w := httptest.NewRecorder()
	app.createConversationMessage(w, req)

	assert.Equal(t, http.StatusCreated, w.Code, "expected created")

	var msg types.Message
	require.NoError(t, json.NewDecoder(w.Body).Decode(&msg), "expected valid response body")
	assert.Equal(t, 9, msg.Id, "expected persisted message in response")
	assert.False(t, msg.Delivered, "expected REST-created message to be undelivered")
}
