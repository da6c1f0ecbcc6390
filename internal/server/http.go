// Package server implements a development messaging server speaking the chat
// wire protocol: an authenticated event socket and a conversation history API.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/budgetchat/internal/client"
	"github.com/raphaelgruber/budgetchat/internal/metrics"
	"github.com/raphaelgruber/budgetchat/internal/models"
)

// Server bundles the hub, the message store and the HTTP routes.
type Server struct {
	hub      *Hub
	store    *Store
	auth     *Authenticator
	metrics  *metrics.Collector
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// New creates a server with an empty store.
func New(auth *Authenticator, logger *slog.Logger, collector *metrics.Collector) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	store := NewStore()
	return &Server{
		hub:     NewHub(store, logger, collector),
		store:   store,
		auth:    auth,
		metrics: collector,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for local dev
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Hub returns the socket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the routed, logged HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/socket", s.handleSocket)
	mux.HandleFunc("GET /messages/{user1}/{user2}", s.handleConversation)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("GET /stats", s.handleStats)
	return LoggingMiddleware(s.logger)(mux)
}

// Close drops every socket.
func (s *Server) Close() {
	s.hub.Close()
}

// handleSocket upgrades first and reports a bad token in-band with a
// connect_error frame, the way the client expects a rejection.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	if !isUpgrade(r) {
		writeError(w, http.StatusBadRequest, "websocket upgrade required")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	claims, err := s.auth.Verify(bearerToken(r))
	if err != nil {
		s.logger.Info("socket rejected", "remote", r.RemoteAddr, "error", err)
		if f, ferr := client.NewFrame(models.EventConnectError, models.ErrorPayload{Message: "invalid token"}); ferr == nil {
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			_ = conn.WriteJSON(f)
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid token"),
			time.Now().Add(time.Second))
		return
	}

	s.hub.Serve(conn, claims)
}

type conversationResponse struct {
	Data    []models.Message `json:"data"`
	HasMore bool             `json:"hasMore"`
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	claims, err := s.auth.Verify(bearerToken(r))
	if err != nil {
		s.metrics.RecordFailure(metrics.OpHistoryRead)
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user1, user2 := r.PathValue("user1"), r.PathValue("user2")
	if claims.Subject != user1 && claims.Subject != user2 {
		s.metrics.RecordFailure(metrics.OpHistoryRead)
		writeError(w, http.StatusForbidden, "not a participant of this conversation")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.metrics.RecordFailure(metrics.OpHistoryRead)
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	msgs, hasMore := s.store.Conversation(user1, user2, limit, r.URL.Query().Get("before"))
	if msgs == nil {
		msgs = []models.Message{}
	}

	writeJSON(w, http.StatusOK, conversationResponse{Data: msgs, HasMore: hasMore})
	s.metrics.RecordTiming(metrics.OpHistoryRead, time.Since(start))
}

type statsResponse struct {
	metrics.Snapshot
	Connections int `json:"connections"`
	Online      int `json:"online"`
	Messages    int `json:"messages"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statsResponse{
		Snapshot:    s.metrics.Snapshot(),
		Connections: s.hub.Connections(),
		Online:      len(s.hub.Roster()),
		Messages:    s.store.Len(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.ErrorPayload{Message: message})
}
