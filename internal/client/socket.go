package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/budgetchat/internal/models"
)

// Frame is one event on the wire.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame encodes payload as the data of an event frame.
func NewFrame(event string, payload any) (Frame, error) {
	f := Frame{Event: event}
	if payload == nil {
		return f, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return f, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	f.Data = data
	return f, nil
}

// Dialer opens authenticated event sockets.
type Dialer struct {
	URL              string
	HandshakeTimeout time.Duration
}

// NewDialer creates a dialer for the socket endpoint. http(s) URLs are
// rewritten to ws(s).
func NewDialer(rawURL string, handshakeTimeout time.Duration) *Dialer {
	rawURL = strings.Replace(rawURL, "http://", "ws://", 1)
	rawURL = strings.Replace(rawURL, "https://", "wss://", 1)
	if handshakeTimeout <= 0 {
		handshakeTimeout = 10 * time.Second
	}
	return &Dialer{URL: rawURL, HandshakeTimeout: handshakeTimeout}
}

// Dial connects with the bearer token and waits for the server's handshake.
// A connect_error frame yields ErrConnectRejected.
func (d *Dialer) Dial(ctx context.Context, token string) (*Socket, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.HandshakeTimeout,
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := dialer.DialContext(ctx, d.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket connect: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("websocket connect: %w", err)
	}

	// Wait for connect / connect_error
	_ = conn.SetReadDeadline(time.Now().Add(d.HandshakeTimeout))
	var first Frame
	if err := conn.ReadJSON(&first); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read handshake: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	switch first.Event {
	case models.EventConnect:
		var hs models.Handshake
		if err := json.Unmarshal(first.Data, &hs); err != nil {
			conn.Close()
			return nil, fmt.Errorf("unmarshal handshake: %w", err)
		}
		return &Socket{conn: conn, id: hs.SID}, nil

	case models.EventConnectError:
		conn.Close()
		var payload models.ErrorPayload
		_ = json.Unmarshal(first.Data, &payload)
		if payload.Message == "" {
			payload.Message = "no reason given"
		}
		return nil, fmt.Errorf("%w: %s", ErrConnectRejected, payload.Message)

	default:
		conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrHandshake, first.Event)
	}
}

// Socket is an established event connection. Next must be called from a
// single goroutine; Emit and Close are safe for concurrent use.
type Socket struct {
	conn *websocket.Conn
	id   string

	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool
}

// ID returns the server-assigned socket id.
func (s *Socket) ID() string {
	return s.id
}

// Emit sends an event frame.
func (s *Socket) Emit(event string, payload any) error {
	f, err := NewFrame(event, payload)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(f); err != nil {
		return fmt.Errorf("send %s: %w", event, err)
	}
	return nil
}

// Next blocks until the next known event arrives. Unknown events are skipped.
// A frame that does not decode yields ErrMalformedFrame; the socket stays usable.
func (s *Socket) Next() (models.Event, error) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("read frame: %w", err)
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
		}

		ev, err := DecodeEvent(f)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
		}
		if ev != nil {
			return ev, nil
		}
	}
}

// Close closes the connection. It is idempotent.
func (s *Socket) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	s.writeMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.writeMu.Unlock()

	return s.conn.Close()
}

// DecodeEvent maps a frame to its event type. It returns a nil event for
// frames the client does not consume.
func DecodeEvent(f Frame) (models.Event, error) {
	switch f.Event {
	case models.EventClientsList:
		var users []models.User
		if err := unmarshalData(f, &users); err != nil {
			return nil, err
		}
		return models.RosterSnapshot{Users: users}, nil

	case models.EventMessage:
		if isEmptyPayload(f.Data) {
			return models.GenericMessage{}, nil
		}
		var msg models.Message
		if err := unmarshalData(f, &msg); err != nil {
			return nil, err
		}
		return models.GenericMessage{Message: &msg}, nil

	case models.EventChatMessage:
		return models.ChatMessage{Raw: f.Data}, nil

	case models.EventReceiveMessage:
		var d models.DirectedMessage
		if err := unmarshalData(f, &d); err != nil {
			return nil, err
		}
		return d, nil

	case models.EventTyping:
		var t models.Typing
		if err := unmarshalData(f, &t); err != nil {
			return nil, err
		}
		return t, nil

	default:
		return nil, nil
	}
}

func unmarshalData(f Frame, v any) error {
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", f.Event, err)
	}
	return nil
}

// isEmptyPayload matches the payloads a falsy "message" event can carry.
func isEmptyPayload(data json.RawMessage) bool {
	switch strings.TrimSpace(string(data)) {
	case "", "null", "false", `""`, "0":
		return true
	}
	return false
}
