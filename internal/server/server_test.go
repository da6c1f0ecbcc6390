package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/raphaelgruber/budgetchat/internal/client"
	"github.com/raphaelgruber/budgetchat/internal/metrics"
	"github.com/raphaelgruber/budgetchat/internal/models"
	"github.com/raphaelgruber/budgetchat/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type testEnv struct {
	http *httptest.Server
	auth *server.Authenticator
	srv  *server.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	auth := server.NewAuthenticator(secret)
	srv := server.New(auth, testLogger(), metrics.NewCollector())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return &testEnv{http: ts, auth: auth, srv: srv}
}

func (e *testEnv) token(t *testing.T, userID, name string) string {
	t.Helper()
	tok, err := e.auth.Mint(userID, name, time.Hour)
	require.NoError(t, err)
	return tok
}

// join dials as userID and announces name.
func (e *testEnv) join(t *testing.T, userID, name string) *client.Socket {
	t.Helper()
	sock, err := client.NewDialer(e.http.URL+"/socket", time.Second).Dial(context.Background(), e.token(t, userID, name))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sock.Close() })
	require.NoError(t, sock.Emit(models.EventInit, name))
	return sock
}

type result struct {
	ev  models.Event
	err error
}

// next reads events from sock until match accepts one.
func next[T models.Event](t *testing.T, sock *client.Socket, match func(T) bool) T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		ch := make(chan result, 1)
		go func() {
			ev, err := sock.Next()
			ch <- result{ev, err}
		}()
		select {
		case r := <-ch:
			require.NoError(t, r.err)
			if ev, ok := r.ev.(T); ok && (match == nil || match(ev)) {
				return ev
			}
		case <-deadline:
			t.Fatal("timed out waiting for event")
		}
	}
}

func rosterNames(r models.RosterSnapshot) []string {
	names := make([]string, len(r.Users))
	for i, u := range r.Users {
		names[i] = u.Name
	}
	return names
}

func TestRosterBroadcast(t *testing.T) {
	env := newTestEnv(t)

	alice := env.join(t, "a1", "alice")
	next(t, alice, func(r models.RosterSnapshot) bool { return len(r.Users) == 1 })

	bob := env.join(t, "b1", "bob")
	r := next(t, alice, func(r models.RosterSnapshot) bool { return len(r.Users) == 2 })
	assert.Equal(t, []string{"alice", "bob"}, rosterNames(r))
	assert.Equal(t, bob.ID(), r.Users[1].SocketID)

	require.NoError(t, bob.Close())
	r = next(t, alice, func(r models.RosterSnapshot) bool { return len(r.Users) == 1 })
	assert.Equal(t, []string{"alice"}, rosterNames(r))
}

func TestPrivateMessageDelivery(t *testing.T) {
	env := newTestEnv(t)

	alice := env.join(t, "a1", "alice")
	bob := env.join(t, "b1", "bob")
	carol := env.join(t, "c1", "carol")
	next(t, alice, func(r models.RosterSnapshot) bool { return len(r.Users) == 3 })

	require.NoError(t, alice.Emit(models.EventPrivateMessage, models.PrivateMessage{
		From: "a1", To: "b1", Message: "hi bob", SocketID: alice.ID(),
	}))

	got := next[models.DirectedMessage](t, bob, nil)
	assert.Equal(t, "hi bob", got.Message)
	assert.Equal(t, models.UserRef{ID: "a1", Name: "alice"}, got.From)
	assert.Equal(t, models.UserRef{ID: "b1", Name: "bob"}, got.To)
	assert.NotEmpty(t, got.ID)

	echo := next[models.DirectedMessage](t, alice, nil)
	assert.Equal(t, got.ID, echo.ID, "sender receives the same delivery")

	// Reply carries the quoted message.
	require.NoError(t, bob.Emit(models.EventPrivateMessage, models.PrivateMessage{
		From: "b1", To: "a1", Message: "hey", SocketID: bob.ID(), Reply: got.ID,
	}))
	reply := next(t, alice, func(d models.DirectedMessage) bool { return d.Message == "hey" })
	require.NotNil(t, reply.ReplyMessage)
	assert.Equal(t, got.ID, reply.ReplyMessage.ID)
	assert.Equal(t, "hi bob", reply.ReplyMessage.Message)
	assert.Equal(t, "alice", reply.ReplyFrom)
	assert.Equal(t, "bob", reply.ReplyTo)

	require.NoError(t, carol.Emit(models.EventTyping, models.TypingNotice{From: "c1", To: "a1", Typing: true}))
	typing := next[models.Typing](t, alice, nil)
	assert.Equal(t, models.UserRef{ID: "c1", Name: "carol"}, typing.From)
	assert.True(t, typing.Typing)
}

func TestSpoofedSenderIsDropped(t *testing.T) {
	env := newTestEnv(t)

	alice := env.join(t, "a1", "alice")
	bob := env.join(t, "b1", "bob")
	next(t, bob, func(r models.RosterSnapshot) bool { return len(r.Users) == 2 })

	require.NoError(t, alice.Emit(models.EventPrivateMessage, models.PrivateMessage{From: "b1", To: "a1", Message: "fake"}))
	require.NoError(t, alice.Emit(models.EventPrivateMessage, models.PrivateMessage{From: "a1", To: "b1", Message: "real"}))

	got := next[models.DirectedMessage](t, bob, nil)
	assert.Equal(t, "real", got.Message)
}

func TestReplyToForeignMessageIsNotQuoted(t *testing.T) {
	env := newTestEnv(t)

	alice := env.join(t, "a1", "alice")
	bob := env.join(t, "b1", "bob")
	carol := env.join(t, "c1", "carol")
	dave := env.join(t, "d1", "dave")
	next(t, dave, func(r models.RosterSnapshot) bool { return len(r.Users) == 4 })

	require.NoError(t, alice.Emit(models.EventPrivateMessage, models.PrivateMessage{From: "a1", To: "b1", Message: "secret"}))
	secret := next[models.DirectedMessage](t, bob, nil)

	require.NoError(t, carol.Emit(models.EventPrivateMessage, models.PrivateMessage{
		From: "c1", To: "d1", Message: "look", Reply: secret.ID,
	}))
	got := next(t, dave, func(d models.DirectedMessage) bool { return d.Message == "look" })
	assert.Nil(t, got.ReplyMessage)
	assert.Empty(t, got.ReplyFrom)
	assert.Empty(t, got.ReplyTo)
}

func TestSocketRejectsBadToken(t *testing.T) {
	env := newTestEnv(t)

	_, err := client.NewDialer(env.http.URL+"/socket", time.Second).Dial(context.Background(), "garbage")
	require.Error(t, err)
	assert.True(t, errors.Is(err, client.ErrConnectRejected))
}

func TestConversationHistory(t *testing.T) {
	env := newTestEnv(t)

	alice := env.join(t, "a1", "alice")
	bob := env.join(t, "b1", "bob")
	next(t, alice, func(r models.RosterSnapshot) bool { return len(r.Users) == 2 })

	for _, text := range []string{"one", "two", "three"} {
		require.NoError(t, alice.Emit(models.EventPrivateMessage, models.PrivateMessage{From: "a1", To: "b1", Message: text}))
		next(t, bob, func(d models.DirectedMessage) bool { return d.Message == text })
	}

	api := client.New(env.http.URL, time.Second)
	page, err := api.GetConversation(context.Background(), env.token(t, "b1", "bob"), "b1", "a1", client.PageOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Data, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, "two", page.Data[0].Message)
	assert.Equal(t, "three", page.Data[1].Message)
	assert.False(t, page.Data[0].CreatedAt.IsZero())

	older, err := api.GetConversation(context.Background(), env.token(t, "a1", "alice"), "a1", "b1", client.PageOptions{Before: page.Data[0].ID})
	require.NoError(t, err)
	require.Len(t, older.Data, 1)
	assert.Equal(t, "one", older.Data[0].Message)
	assert.False(t, older.HasMore)
}

func TestConversationHistoryErrors(t *testing.T) {
	env := newTestEnv(t)
	api := client.New(env.http.URL, time.Second)

	tests := []struct {
		name   string
		token  string
		opts   client.PageOptions
		status int
	}{
		{"no token", "", client.PageOptions{}, http.StatusUnauthorized},
		{"outsider", env.token(t, "c1", "carol"), client.PageOptions{}, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := api.GetConversation(context.Background(), tt.token, "a1", "b1", tt.opts)
			var apiErr *client.APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
			assert.NotEqual(t, "request failed", apiErr.Message)
		})
	}

	empty, err := api.GetConversation(context.Background(), env.token(t, "a1", "alice"), "a1", "b1", client.PageOptions{})
	require.NoError(t, err)
	assert.Empty(t, empty.Data)
	assert.False(t, empty.HasMore)
}

func TestHealthAndStats(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.http.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	env.join(t, "a1", "alice")
	require.Eventually(t, func() bool { return len(env.srv.Hub().Roster()) == 1 }, 2*time.Second, 5*time.Millisecond)

	resp, err = http.Get(env.http.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var stats struct {
		Connections int `json:"connections"`
		Online      int `json:"online"`
		Messages    int `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 1, stats.Connections)
	assert.Equal(t, 1, stats.Online)
	assert.Equal(t, 0, stats.Messages)
}
