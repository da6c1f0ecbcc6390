package service

import "github.com/raphaelgruber/budgetchat/internal/models"

// Timeline is the client-wide, append-only message sequence. Append order is
// arrival order; nothing is resequenced by timestamp. Messages are deduplicated
// by id across history and live deliveries.
type Timeline struct {
	entries []models.Message
	seen    map[string]struct{}
}

// NewTimeline creates an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{seen: make(map[string]struct{})}
}

// Append adds msg unless a message with the same id is already present.
// Messages without an id are always appended.
func (t *Timeline) Append(msg models.Message) bool {
	if msg.ID != "" {
		if _, dup := t.seen[msg.ID]; dup {
			return false
		}
		t.seen[msg.ID] = struct{}{}
	}
	t.entries = append(t.entries, msg)
	return true
}

// MergeHistory replaces the timeline with history followed by every current
// entry history does not already contain. Live messages that arrived while
// the history was in flight therefore stay, after the history block.
func (t *Timeline) MergeHistory(history []models.Message) {
	live := t.entries
	t.Reset()

	for _, msg := range history {
		t.Append(msg)
	}
	for _, msg := range live {
		t.Append(msg)
	}
}

// Reset empties the timeline.
func (t *Timeline) Reset() {
	t.entries = nil
	t.seen = make(map[string]struct{})
}

// Len returns the number of entries.
func (t *Timeline) Len() int {
	return len(t.entries)
}

// All returns a copy of every entry.
func (t *Timeline) All() []models.Message {
	return append([]models.Message(nil), t.entries...)
}

// Visible returns the entries shown for a counterpart: those sent by or to
// counterpartID.
func (t *Timeline) Visible(counterpartID string) []models.Message {
	var out []models.Message
	for _, msg := range t.entries {
		if msg.Involves(counterpartID) {
			out = append(out, msg)
		}
	}
	return out
}

// Find looks a message up by id.
func (t *Timeline) Find(id string) (models.Message, bool) {
	if _, ok := t.seen[id]; !ok {
		return models.Message{}, false
	}
	for _, msg := range t.entries {
		if msg.ID == id {
			return msg, true
		}
	}
	return models.Message{}, false
}
