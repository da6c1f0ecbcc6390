package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetConversation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages/a1/b1", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "20", r.URL.Query().Get("limit"))
		assert.Equal(t, "m9", r.URL.Query().Get("before"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[
			{"_id":"m1","from":{"id":"a1","name":"alice"},"to":{"id":"b1","name":"bob"},"message":"hi","createdAt":"2026-01-02T15:04:05Z"},
			{"id":"m2","from":{"id":"b1","name":"bob"},"to":{"id":"a1","name":"alice"},"message":"yo","replyMessage":{"id":"m1","message":"hi","from":"a1","to":"b1"}}
		],"hasMore":true}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	page, err := c.GetConversation(context.Background(), "tok", "a1", "b1", PageOptions{Limit: 20, Before: "m9"})
	require.NoError(t, err)

	require.Len(t, page.Data, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, "m1", page.Data[0].ID, "persisted _id is accepted")
	assert.Equal(t, "alice", page.Data[0].From.Name)
	assert.Equal(t, 2026, page.Data[0].CreatedAt.Year())
	require.NotNil(t, page.Data[1].ReplyMessage)
	assert.Equal(t, "m1", page.Data[1].ReplyMessage.ID)
}

func TestGetConversationError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"server message", http.StatusUnauthorized, `{"message":"token expired"}`, "token expired"},
		{"no body", http.StatusInternalServerError, ``, "request failed"},
		{"not json", http.StatusBadGateway, `<html>`, "request failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(srv.URL, time.Second).GetConversation(context.Background(), "tok", "a1", "b1", PageOptions{})
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.message, apiErr.Message)
		})
	}
}

func TestNewDefaults(t *testing.T) {
	t.Setenv("BUDGETCHAT_API_URL", "")
	c := New("", 0)
	assert.Equal(t, "http://localhost:8585", c.endpoint)
	assert.Equal(t, 10*time.Second, c.httpClient.Timeout)

	t.Setenv("BUDGETCHAT_API_URL", "http://chat.example:9000/")
	assert.Equal(t, "http://chat.example:9000", New("", 0).endpoint)
}
