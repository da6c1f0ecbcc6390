package models

// ConversationKey identifies the two-person conversation between the local
// user and a counterpart. The pair is unordered.
type ConversationKey struct {
	LoginUser   User
	Counterpart User
}

// Contains reports whether msg belongs to the conversation.
func (k ConversationKey) Contains(msg Message) bool {
	a, b := k.LoginUser.ID, k.Counterpart.ID
	return (msg.From.ID == a && msg.To.ID == b) || (msg.From.ID == b && msg.To.ID == a)
}
