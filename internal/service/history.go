package service

import (
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/budgetchat/internal/client"
	"github.com/raphaelgruber/budgetchat/internal/metrics"
	"github.com/raphaelgruber/budgetchat/internal/models"
)

// HistoryFetcher retrieves persisted conversation pages.
type HistoryFetcher interface {
	GetConversation(ctx context.Context, token, user1, user2 string, opts client.PageOptions) (*client.ConversationPage, error)
}

// HistoryLoader fetches the most recent page of a conversation.
type HistoryLoader struct {
	fetcher  HistoryFetcher
	token    string
	pageSize int
	timeout  time.Duration
	metrics  *metrics.Collector
}

// NewHistoryLoader creates a loader authenticating with token.
func NewHistoryLoader(fetcher HistoryFetcher, token string, pageSize int, timeout time.Duration, collector *metrics.Collector) *HistoryLoader {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HistoryLoader{
		fetcher:  fetcher,
		token:    token,
		pageSize: pageSize,
		timeout:  timeout,
		metrics:  collector,
	}
}

// Load fetches the persisted messages of the conversation, oldest first.
func (l *HistoryLoader) Load(ctx context.Context, key models.ConversationKey) ([]models.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	start := time.Now()
	page, err := l.fetcher.GetConversation(ctx, l.token, key.LoginUser.ID, key.Counterpart.ID, client.PageOptions{
		Limit: l.pageSize,
	})
	if err != nil {
		l.metrics.RecordFailure(metrics.OpHistoryLoad)
		return nil, fmt.Errorf("load history: %w", err)
	}
	l.metrics.RecordTiming(metrics.OpHistoryLoad, time.Since(start))

	if page == nil {
		return nil, nil
	}
	return page.Data, nil
}
