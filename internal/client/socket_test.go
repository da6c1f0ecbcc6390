package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/budgetchat/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// socketServer upgrades every request and hands the connection to fn.
func socketServer(t *testing.T, fn func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		fn(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeFrame(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	f, err := NewFrame(event, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(f))
}

func TestDialHandshake(t *testing.T) {
	received := make(chan Frame, 1)
	srv := socketServer(t, func(conn *websocket.Conn, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		writeFrame(t, conn, models.EventConnect, models.Handshake{SID: "sid-1"})
		writeFrame(t, conn, "unknown-event", map[string]string{"x": "y"})
		writeFrame(t, conn, models.EventClientsList, []models.User{{ID: "a1", Name: "alice", SocketID: "sid-1"}})

		var f Frame
		if err := conn.ReadJSON(&f); err == nil {
			received <- f
		}
	})

	sock, err := NewDialer(srv.URL, time.Second).Dial(context.Background(), "tok")
	require.NoError(t, err)
	defer sock.Close()
	assert.Equal(t, "sid-1", sock.ID())

	ev, err := sock.Next()
	require.NoError(t, err)
	roster, ok := ev.(models.RosterSnapshot)
	require.True(t, ok, "unknown events are skipped")
	require.Len(t, roster.Users, 1)
	assert.Equal(t, "alice", roster.Users[0].Name)

	require.NoError(t, sock.Emit(models.EventInit, "alice"))
	select {
	case f := <-received:
		assert.Equal(t, models.EventInit, f.Event)
		assert.JSONEq(t, `"alice"`, string(f.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive init")
	}
}

func TestDialConnectError(t *testing.T) {
	srv := socketServer(t, func(conn *websocket.Conn, r *http.Request) {
		writeFrame(t, conn, models.EventConnectError, models.ErrorPayload{Message: "invalid token"})
	})

	_, err := NewDialer(srv.URL, time.Second).Dial(context.Background(), "bad")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnectRejected))
	assert.Contains(t, err.Error(), "invalid token")
}

func TestDialUnexpectedFirstFrame(t *testing.T) {
	srv := socketServer(t, func(conn *websocket.Conn, r *http.Request) {
		writeFrame(t, conn, models.EventMessage, nil)
	})

	_, err := NewDialer(srv.URL, time.Second).Dial(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrHandshake)
}

func TestNextMalformedFrame(t *testing.T) {
	srv := socketServer(t, func(conn *websocket.Conn, r *http.Request) {
		writeFrame(t, conn, models.EventConnect, models.Handshake{SID: "sid-1"})
		_ = conn.WriteJSON(Frame{Event: models.EventTyping, Data: []byte(`"not an object"`)})
		time.Sleep(100 * time.Millisecond)
	})

	sock, err := NewDialer(srv.URL, time.Second).Dial(context.Background(), "tok")
	require.NoError(t, err)
	defer sock.Close()

	_, err = sock.Next()
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestNextSurvivesNonJSONFrame(t *testing.T) {
	srv := socketServer(t, func(conn *websocket.Conn, r *http.Request) {
		writeFrame(t, conn, models.EventConnect, models.Handshake{SID: "sid-1"})
		_ = conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		writeFrame(t, conn, models.EventClientsList, []models.User{{ID: "a1", Name: "alice"}})
		_, _, _ = conn.ReadMessage()
	})

	sock, err := NewDialer(srv.URL, time.Second).Dial(context.Background(), "tok")
	require.NoError(t, err)
	defer sock.Close()

	_, err = sock.Next()
	assert.ErrorIs(t, err, ErrMalformedFrame)

	ev, err := sock.Next()
	require.NoError(t, err)
	roster, ok := ev.(models.RosterSnapshot)
	require.True(t, ok)
	require.Len(t, roster.Users, 1)
}

func TestSocketCloseIsIdempotent(t *testing.T) {
	srv := socketServer(t, func(conn *websocket.Conn, r *http.Request) {
		writeFrame(t, conn, models.EventConnect, models.Handshake{SID: "sid-1"})
		_, _, _ = conn.ReadMessage()
	})

	sock, err := NewDialer(srv.URL, time.Second).Dial(context.Background(), "tok")
	require.NoError(t, err)

	assert.NoError(t, sock.Close())
	assert.NoError(t, sock.Close())
}

func TestNewDialerRewritesScheme(t *testing.T) {
	assert.Equal(t, "ws://localhost:8585/socket", NewDialer("http://localhost:8585/socket", 0).URL)
	assert.Equal(t, "wss://chat.example/socket", NewDialer("https://chat.example/socket", 0).URL)
	assert.Equal(t, 10*time.Second, NewDialer("ws://x", 0).HandshakeTimeout)
}

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		check func(t *testing.T, ev models.Event)
	}{
		{
			name:  "empty message",
			frame: Frame{Event: models.EventMessage, Data: []byte(`null`)},
			check: func(t *testing.T, ev models.Event) {
				assert.Equal(t, models.GenericMessage{}, ev)
			},
		},
		{
			name:  "falsy message",
			frame: Frame{Event: models.EventMessage, Data: []byte(`""`)},
			check: func(t *testing.T, ev models.Event) {
				assert.Nil(t, ev.(models.GenericMessage).Message)
			},
		},
		{
			name:  "message",
			frame: Frame{Event: models.EventMessage, Data: []byte(`{"id":"m1","message":"hi","from":{"id":"b1"},"to":{"id":"a1"}}`)},
			check: func(t *testing.T, ev models.Event) {
				gm := ev.(models.GenericMessage)
				require.NotNil(t, gm.Message)
				assert.Equal(t, "m1", gm.Message.ID)
			},
		},
		{
			name:  "chat message",
			frame: Frame{Event: models.EventChatMessage, Data: []byte(`{"any":1}`)},
			check: func(t *testing.T, ev models.Event) {
				assert.JSONEq(t, `{"any":1}`, string(ev.(models.ChatMessage).Raw))
			},
		},
		{
			name: "receive message with reply",
			frame: Frame{Event: models.EventReceiveMessage, Data: []byte(`{
				"id":"m2","message":"yes","from":{"id":"b1","name":"bob"},"to":{"id":"a1","name":"alice"},
				"replyTo":"a1","replyFrom":"b1","replyMessage":{"id":"m1","message":"q?","from":"a1","to":"b1"}}`)},
			check: func(t *testing.T, ev models.Event) {
				d := ev.(models.DirectedMessage)
				assert.Equal(t, "m2", d.ID)
				assert.Equal(t, "bob", d.From.Name)
				require.NotNil(t, d.ReplyMessage)
				assert.Equal(t, "m1", d.ReplyMessage.ID)
			},
		},
		{
			name:  "typing",
			frame: Frame{Event: models.EventTyping, Data: []byte(`{"from":{"id":"b1","name":"bob"},"to":"a1","typing":true}`)},
			check: func(t *testing.T, ev models.Event) {
				assert.Equal(t, models.Typing{From: models.UserRef{ID: "b1", Name: "bob"}, To: "a1", Typing: true}, ev)
			},
		},
		{
			name:  "unknown",
			frame: Frame{Event: "presence-ping"},
			check: func(t *testing.T, ev models.Event) {
				assert.Nil(t, ev)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeEvent(tt.frame)
			require.NoError(t, err)
			tt.check(t, ev)
		})
	}
}

func TestDecodeEventRejectsBadPayload(t *testing.T) {
	_, err := DecodeEvent(Frame{Event: models.EventClientsList, Data: []byte(`{"not":"a list"}`)})
	assert.Error(t, err)
}

func TestDecodeEventRejectsNonMessagePayload(t *testing.T) {
	for _, data := range []string{`"just text"`, `42`, `[1,2]`} {
		_, err := DecodeEvent(Frame{Event: models.EventMessage, Data: []byte(data)})
		assert.Error(t, err, data)
	}
}
