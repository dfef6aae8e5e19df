package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gochat-rooms/internal/auth"
	"github.com/Tyrowin/gochat-rooms/internal/chat"
	"github.com/Tyrowin/gochat-rooms/internal/model"
	"github.com/Tyrowin/gochat-rooms/internal/server"
	"github.com/Tyrowin/gochat-rooms/internal/server/servertest"
	"github.com/Tyrowin/gochat-rooms/internal/store"
)

const (
	testSecret  = "integration-secret"
	readTimeout = 2 * time.Second
)

type testEnv struct {
	server *httptest.Server
	hub    *server.Hub
	engine *chat.Engine
	store  *store.MemoryStore
	roomID string
}

func newTestEnv(t *testing.T, configure ...func(*server.Config)) *testEnv {
	t.Helper()
	cfg := &server.Config{
		AllowedOrigins: []string{servertest.Origin},
		RateLimit:      server.RateLimitConfig{Burst: 100, RefillInterval: time.Second},
	}
	for _, fn := range configure {
		fn(cfg)
	}
	server.SetConfig(cfg)
	t.Cleanup(func() { server.SetConfig(nil) })

	st := store.NewMemoryStore()
	st.PutUser(model.User{ID: "u1", Username: "alice", Avatar: "alice.png"})
	st.PutUser(model.User{ID: "u2", Username: "bob", Avatar: "bob.png"})
	room, err := st.CreateRoom(context.Background(), model.Room{Name: "general", Members: []string{"u1"}, CreatedBy: "u1"})
	require.NoError(t, err)

	engine := chat.NewEngine(st, nil, chat.Options{})
	hub := server.NewHub(engine)
	server.StartHub(hub)

	authenticator := auth.NewAuthenticator(auth.NewJWTVerifier(testSecret, ""), st)
	ts := httptest.NewServer(server.SetupRoutes(hub, authenticator))

	env := &testEnv{server: ts, hub: hub, engine: engine, store: st, roomID: room.ID}
	t.Cleanup(func() {
		ts.Close()
		_ = hub.Shutdown(5 * time.Second)
		engine.Close()
	})
	return env
}

func token(t *testing.T, userID string) string {
	t.Helper()
	claims := auth.Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestWebSocketRejectsBadHandshakes(t *testing.T) {
	env := newTestEnv(t)

	t.Run("missing token", func(t *testing.T) {
		_, resp, err := servertest.Dial(servertest.WebSocketURL(t, env.server.URL, ""), nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, resp, err := servertest.Dial(servertest.WebSocketURL(t, env.server.URL, token(t, "ghost")), nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("disallowed origin", func(t *testing.T) {
		header := http.Header{}
		header.Set("Origin", "http://evil.example.com")
		_, resp, err := servertest.Dial(servertest.WebSocketURL(t, env.server.URL, token(t, "u1")), header)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	assert.Zero(t, env.engine.Presence().Count())
}

func TestWebSocketBearerToken(t *testing.T) {
	env := newTestEnv(t)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token(t, "u1"))
	conn, _, err := servertest.Dial(servertest.WebSocketURL(t, env.server.URL, ""), header)
	require.NoError(t, err)
	defer func() { _ = servertest.Close(conn) }()

	online := servertest.Expect(t, conn, chat.EventUsersOnline, readTimeout)
	var payload chat.OnlineUsersPayload
	servertest.Decode(t, online, &payload)
	assert.Equal(t, []string{"u1"}, payload.UserIDs)
}

func TestWebSocketRoomConversation(t *testing.T) {
	env := newTestEnv(t)
	wsURL := func(userID string) string { return servertest.WebSocketURL(t, env.server.URL, token(t, userID)) }

	alice, _, err := servertest.Dial(wsURL("u1"), nil)
	require.NoError(t, err)
	defer func() { _ = servertest.Close(alice) }()
	servertest.Expect(t, alice, chat.EventUsersOnline, readTimeout)

	bob, _, err := servertest.Dial(wsURL("u2"), nil)
	require.NoError(t, err)
	servertest.Expect(t, bob, chat.EventUsersOnline, readTimeout)

	servertest.Send(t, alice, chat.TypeJoinRoom, "j1", chat.JoinRoom{RoomID: env.roomID})
	joined := servertest.Expect(t, alice, chat.EventRoomJoined, readTimeout)
	assert.Equal(t, "j1", joined.RequestID)

	servertest.Send(t, bob, chat.TypeJoinRoom, "j2", chat.JoinRoom{RoomID: env.roomID})
	servertest.Expect(t, bob, chat.EventRoomJoined, readTimeout)
	announced := servertest.Expect(t, alice, chat.EventUserJoined, readTimeout)
	var membership chat.MembershipPayload
	servertest.Decode(t, announced, &membership)
	assert.Equal(t, "bob", membership.User.Username)

	servertest.Send(t, alice, chat.TypeSendMessage, "m1", chat.SendMessage{Content: "hi", RoomID: env.roomID})

	received := servertest.Expect(t, bob, chat.EventMessageReceived, readTimeout)
	var view model.MessageView
	servertest.Decode(t, received, &view)
	assert.Equal(t, "hi", view.Content)
	assert.Equal(t, "alice", view.Sender.Username)
	assert.Equal(t, "alice.png", view.Sender.Avatar)

	ack := servertest.Expect(t, alice, chat.EventMessageAck, readTimeout)
	assert.Equal(t, "m1", ack.RequestID)
	var receipt chat.Receipt
	servertest.Decode(t, ack, &receipt)
	assert.True(t, receipt.Success)
	assert.Equal(t, view.ID, receipt.MessageID)

	servertest.Send(t, bob, chat.TypeTypingStart, "", chat.TypingStart{RoomID: env.roomID})
	typing := servertest.Expect(t, alice, chat.EventTyping, readTimeout)
	var typingPayload chat.TypingPayload
	servertest.Decode(t, typing, &typingPayload)
	assert.True(t, typingPayload.IsTyping)

	// Bob drops without stopping; alice sees the typing state cleared and the
	// online snapshot shrink.
	require.NoError(t, bob.Close())

	stopped := servertest.Expect(t, alice, chat.EventTyping, readTimeout)
	servertest.Decode(t, stopped, &typingPayload)
	assert.False(t, typingPayload.IsTyping)
	assert.Equal(t, "u2", typingPayload.UserID)

	assert.Eventually(t, func() bool {
		return !env.engine.Presence().IsOnline("u2") && len(env.engine.Rooms().Subscribers(env.roomID)) == 1
	}, readTimeout, 10*time.Millisecond)

	stored, err := env.store.FindUser(context.Background(), "u2")
	require.NoError(t, err)
	assert.False(t, stored.IsOnline)
}

func TestWebSocketInvalidFrame(t *testing.T) {
	env := newTestEnv(t)

	conn, _, err := servertest.Dial(servertest.WebSocketURL(t, env.server.URL, token(t, "u1")), nil)
	require.NoError(t, err)
	defer func() { _ = servertest.Close(conn) }()

	servertest.Send(t, conn, chat.TypeJoinRoom, "bad", map[string]string{"roomId": "  "})
	errFrame := servertest.Expect(t, conn, chat.EventError, readTimeout)
	assert.Equal(t, "bad", errFrame.RequestID)
	var payload chat.ErrorPayload
	servertest.Decode(t, errFrame, &payload)
	assert.True(t, strings.Contains(payload.Message, "roomId is required"))
}

func TestWebSocketThrottledSendIsAcknowledged(t *testing.T) {
	env := newTestEnv(t, func(cfg *server.Config) {
		cfg.RateLimit = server.RateLimitConfig{Burst: 2, RefillInterval: time.Hour}
	})

	conn, _, err := servertest.Dial(servertest.WebSocketURL(t, env.server.URL, token(t, "u1")), nil)
	require.NoError(t, err)
	defer func() { _ = servertest.Close(conn) }()
	servertest.Expect(t, conn, chat.EventUsersOnline, readTimeout)

	servertest.Send(t, conn, chat.TypeJoinRoom, "j1", chat.JoinRoom{RoomID: env.roomID})
	servertest.Expect(t, conn, chat.EventRoomJoined, readTimeout)
	servertest.Send(t, conn, chat.TypeTypingStart, "t1", chat.TypingStart{RoomID: env.roomID})
	servertest.Send(t, conn, chat.TypeSendMessage, "m1", chat.SendMessage{Content: "hi", RoomID: env.roomID})

	ack := servertest.Expect(t, conn, chat.EventMessageAck, readTimeout)
	assert.Equal(t, "m1", ack.RequestID)
	var receipt chat.Receipt
	servertest.Decode(t, ack, &receipt)
	assert.False(t, receipt.Success)
	assert.Equal(t, "rate limit exceeded", receipt.Error)

	servertest.Send(t, conn, chat.TypeTypingStop, "t2", chat.TypingStop{RoomID: env.roomID})
	throttled := servertest.Expect(t, conn, chat.EventError, readTimeout)
	assert.Equal(t, "t2", throttled.RequestID)
}

func TestHubShutdownClosesClients(t *testing.T) {
	env := newTestEnv(t)

	conn, _, err := servertest.Dial(servertest.WebSocketURL(t, env.server.URL, token(t, "u1")), nil)
	require.NoError(t, err)
	defer conn.Close()
	servertest.Expect(t, conn, chat.EventUsersOnline, readTimeout)

	require.NoError(t, env.hub.Shutdown(5*time.Second))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readTimeout)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	assert.Zero(t, env.hub.ClientCount())
	assert.False(t, env.engine.Presence().IsOnline("u1"))
}
