package service

import "github.com/raphaelgruber/budgetchat/internal/models"

// Presence holds the latest roster snapshot. Every snapshot replaces the
// previous one; there is no diffing.
//
// Self is matched by display name, not id, so another user sharing the local
// username is hidden too.
type Presence struct {
	self  string
	users []models.User
}

// NewPresence creates an empty roster for the local username.
func NewPresence(self string) *Presence {
	return &Presence{self: self}
}

// Replace installs a new snapshot.
func (p *Presence) Replace(users []models.User) {
	p.users = append([]models.User(nil), users...)
}

// Clear drops the roster.
func (p *Presence) Clear() {
	p.users = nil
}

// All returns the full roster, self included.
func (p *Presence) All() []models.User {
	return append([]models.User(nil), p.users...)
}

// Others returns the connected users excluding self.
func (p *Presence) Others() []models.User {
	out := make([]models.User, 0, len(p.users))
	for _, u := range p.users {
		if u.Name != p.self {
			out = append(out, u)
		}
	}
	return out
}

// Resolve finds a user by display name.
func (p *Presence) Resolve(name string) (models.User, bool) {
	for _, u := range p.users {
		if u.Name == name {
			return u, true
		}
	}
	return models.User{}, false
}

// Self resolves the local user.
func (p *Presence) Self() (models.User, bool) {
	return p.Resolve(p.self)
}
