// Package models defines the data structures shared by the chat client and the
// development messaging server.
package models

// User is a chat participant as reported by the server's roster. It exists
// only while the participant is connected; SocketID changes per connection.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	SocketID string `json:"socketId"`
}

// Ref returns the id/name pair carried on messages.
func (u User) Ref() UserRef {
	return UserRef{ID: u.ID, Name: u.Name}
}

// UserRef identifies the sender or recipient of a message.
type UserRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
