package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/budgetchat/internal/models"
)

// Page size bounds for conversation reads.
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Store keeps private messages in memory, in insertion order.
type Store struct {
	mu       sync.RWMutex
	messages []models.Message
	byID     map[string]int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{byID: make(map[string]int)}
}

// Add persists msg, assigning an id and creation time when missing.
func (s *Store) Add(msg models.Message) models.Message {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[msg.ID] = len(s.messages)
	s.messages = append(s.messages, msg)
	return msg
}

// Get looks a message up by id.
func (s *Store) Get(id string) (models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return models.Message{}, false
	}
	return s.messages[i], true
}

// Len returns the number of stored messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Conversation returns the most recent page of messages exchanged between
// user1 and user2, oldest first. With before set, only messages older than
// that message are considered. hasMore reports whether older messages remain.
func (s *Store) Conversation(user1, user2 string, limit int, before string) ([]models.Message, bool) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	end := len(s.messages)
	if before != "" {
		if i, ok := s.byID[before]; ok {
			end = i
		}
	}

	var matched []models.Message
	for _, msg := range s.messages[:end] {
		if (msg.From.ID == user1 && msg.To.ID == user2) || (msg.From.ID == user2 && msg.To.ID == user1) {
			matched = append(matched, msg)
		}
	}

	if len(matched) <= limit {
		return matched, false
	}
	return matched[len(matched)-limit:], true
}
