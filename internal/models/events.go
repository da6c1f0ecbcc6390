package models

import (
	"encoding/json"
	"time"
)

// Wire event names.
const (
	EventConnect        = "connect"
	EventConnectError   = "connect_error"
	EventClientsList    = "clients-list"
	EventMessage        = "message"
	EventChatMessage    = "chat-message"
	EventReceiveMessage = "receive-message"
	EventTyping         = "typing"
	EventInit           = "init"
	EventPrivateMessage = "private-message"
)

// Event is the closed set of things the messaging connection can report.
// Consumers dispatch with a type switch.
type Event interface {
	isEvent()
}

// Connected reports a completed handshake.
type Connected struct {
	SocketID string
}

// ConnectError reports one failed connection attempt.
type ConnectError struct {
	Attempt int
	Err     error
}

// Disconnected reports the loss of an established connection.
type Disconnected struct {
	Err error
}

// RosterSnapshot is the full list of connected users. It replaces any
// previous roster.
type RosterSnapshot struct {
	Users []User
}

// GenericMessage is a broadcast "message" event. Message is nil when the
// payload was empty.
type GenericMessage struct {
	Message *Message
}

// ChatMessage is a "chat-message" event. It carries no state.
type ChatMessage struct {
	Raw json.RawMessage
}

// DirectedMessage is a "receive-message" delivery with explicit sender and
// recipient.
type DirectedMessage struct {
	From         UserRef   `json:"from"`
	To           UserRef   `json:"to"`
	Message      string    `json:"message"`
	ID           string    `json:"id"`
	ReplyTo      string    `json:"replyTo,omitempty"`
	ReplyFrom    string    `json:"replyFrom,omitempty"`
	ReplyMessage *ReplyRef `json:"replyMessage,omitempty"`
}

// Typing reports a typing-state change of another user.
type Typing struct {
	From   UserRef `json:"from"`
	To     string  `json:"to"`
	Typing bool    `json:"typing"`
}

func (Connected) isEvent()       {}
func (ConnectError) isEvent()    {}
func (Disconnected) isEvent()    {}
func (RosterSnapshot) isEvent()  {}
func (GenericMessage) isEvent()  {}
func (ChatMessage) isEvent()     {}
func (DirectedMessage) isEvent() {}
func (Typing) isEvent()          {}

// ToMessage builds the timeline record for a directed delivery, stamped with
// the receipt time. The event's own id is canonical; the reply target's id is
// used only when the server omitted it.
func (d DirectedMessage) ToMessage(receivedAt time.Time) Message {
	msg := Message{
		ID:        d.ID,
		From:      d.From,
		To:        d.To,
		Message:   d.Message,
		CreatedAt: receivedAt,
	}
	if d.ReplyMessage != nil {
		reply := *d.ReplyMessage
		msg.ReplyMessage = &reply
		msg.ReplyFrom = d.ReplyFrom
		msg.ReplyTo = d.ReplyTo
		if msg.ID == "" {
			msg.ID = reply.ID
		}
	}
	return msg
}

// PrivateMessage is the payload of an outgoing "private-message".
type PrivateMessage struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Message  string `json:"message"`
	SocketID string `json:"socketId"`
	Reply    string `json:"reply,omitempty"`
}

// TypingNotice is the payload of an outgoing "typing" event.
type TypingNotice struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Typing bool   `json:"typing"`
}

// Handshake is the payload of the server's "connect" frame.
type Handshake struct {
	SID string `json:"sid"`
}

// ErrorPayload is the payload of "connect_error" frames and HTTP error bodies.
type ErrorPayload struct {
	Message string `json:"message"`
}
