package service

import (
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Composer holds the outgoing draft and the local typing state.
type Composer struct {
	draft   string
	typing  bool
	limiter *rate.Limiter
}

// NewComposer creates a composer that allows one repeated "typing" broadcast
// per interval while the user keeps typing.
func NewComposer(typingInterval time.Duration) *Composer {
	if typingInterval <= 0 {
		typingInterval = 2 * time.Second
	}
	return &Composer{
		limiter: rate.NewLimiter(rate.Every(typingInterval), 1),
	}
}

// SetDraft stores text and marks the user as typing. It reports whether a
// typing notice should be broadcast now.
func (c *Composer) SetDraft(text string) bool {
	c.draft = text
	started := !c.typing
	c.typing = true
	allowed := c.limiter.Allow()
	return started || allowed
}

// Blur ends typing. It reports whether typing was on.
func (c *Composer) Blur() bool {
	was := c.typing
	c.typing = false
	return was
}

// Clear empties the draft after a successful send and ends typing.
func (c *Composer) Clear() bool {
	c.draft = ""
	return c.Blur()
}

// Draft returns the current draft.
func (c *Composer) Draft() string {
	return c.draft
}

// Empty reports whether there is nothing to send.
func (c *Composer) Empty() bool {
	return strings.TrimSpace(c.draft) == ""
}

// Typing reports the local typing state.
func (c *Composer) Typing() bool {
	return c.typing
}
