// Package client provides the HTTP and websocket clients for the messaging server.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/raphaelgruber/budgetchat/internal/models"
)

// Client is a REST client for the messaging API.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// New creates a new API client.
// If endpoint is empty, uses BUDGETCHAT_API_URL env var or defaults to localhost:8585.
// A zero timeout means 10s.
func New(endpoint string, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = os.Getenv("BUDGETCHAT_API_URL")
	}
	if endpoint == "" {
		endpoint = "http://localhost:8585"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// get issues an authenticated GET and decodes the JSON body into result.
func (c *Client) get(ctx context.Context, token, path string, query url.Values, result any) error {
	reqURL := c.endpoint + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: "request failed"}
		var payload models.ErrorPayload
		if json.Unmarshal(body, &payload) == nil && payload.Message != "" {
			apiErr.Message = payload.Message
		}
		return apiErr
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

// PageOptions selects a page of conversation history.
type PageOptions struct {
	Limit  int    // 0 means server default
	Before string // message id; empty for the most recent page
}

// ConversationPage is one page of persisted messages, oldest first.
type ConversationPage struct {
	Data    []models.Message `json:"data"`
	HasMore bool             `json:"hasMore"`
}

// GetConversation fetches the persisted messages exchanged between user1 and user2.
func (c *Client) GetConversation(ctx context.Context, token, user1, user2 string, opts PageOptions) (*ConversationPage, error) {
	query := url.Values{}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Before != "" {
		query.Set("before", opts.Before)
	}

	path := "/messages/" + url.PathEscape(user1) + "/" + url.PathEscape(user2)

	var page ConversationPage
	if err := c.get(ctx, token, path, query, &page); err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &page, nil
}
