package models

import (
	"encoding/json"
	"time"
)

// Message is a single private message. Messages are immutable once created;
// ID is the only dedup key (CreatedAt is not unique).
type Message struct {
	ID           string    `json:"id"`
	From         UserRef   `json:"from"`
	To           UserRef   `json:"to"`
	Message      string    `json:"message"`
	CreatedAt    time.Time `json:"createdAt"`
	ReplyMessage *ReplyRef `json:"replyMessage,omitempty"`
	ReplyFrom    string    `json:"replyFrom,omitempty"`
	ReplyTo      string    `json:"replyTo,omitempty"`
}

// ReplyRef points at the message being replied to. From and To are user ids.
type ReplyRef struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	From    string `json:"from"`
	To      string `json:"to"`
}

// UnmarshalJSON accepts both "id" and the persisted "_id" form.
func (m *Message) UnmarshalJSON(data []byte) error {
	type plain Message
	var aux struct {
		plain
		MongoID string `json:"_id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*m = Message(aux.plain)
	if m.ID == "" {
		m.ID = aux.MongoID
	}
	return nil
}

// Involves reports whether userID is the sender or the recipient.
func (m Message) Involves(userID string) bool {
	return m.From.ID == userID || m.To.ID == userID
}

// QuotesConversation reports whether the reply reference belongs to the same
// pair of participants as m, i.e. whether the quote should be rendered.
func (m Message) QuotesConversation() bool {
	r := m.ReplyMessage
	if r == nil || r.ID == "" {
		return false
	}
	return r.From == m.From.ID || r.To == m.To.ID || r.To == m.From.ID || r.From == m.To.ID
}

// ReplyStub returns the reference a reply to m carries.
func (m Message) ReplyStub() ReplyRef {
	return ReplyRef{
		ID:      m.ID,
		Message: m.Message,
		From:    m.From.ID,
		To:      m.To.ID,
	}
}

// PendingReply is the reply target chosen by a drag gesture. At most one is
// active per composition session.
type PendingReply struct {
	Name         string
	Msg          string
	ID           string
	ReplyMessage *ReplyRef
}

// NewPendingReply captures msg as a reply target.
func NewPendingReply(msg Message) PendingReply {
	stub := msg.ReplyStub()
	return PendingReply{
		Name:         msg.From.Name,
		Msg:          msg.Message,
		ID:           msg.ID,
		ReplyMessage: &stub,
	}
}
