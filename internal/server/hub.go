package server

import (
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/budgetchat/internal/client"
	"github.com/raphaelgruber/budgetchat/internal/metrics"
	"github.com/raphaelgruber/budgetchat/internal/models"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
)

// peer is one connected socket. A user may hold several.
type peer struct {
	id     string
	userID string
	name   string
	joined bool // announced itself with init
	conn   *websocket.Conn
	send   chan client.Frame
}

// Hub routes events between connected sockets: it keeps the roster, persists
// and delivers private messages and relays typing notices.
type Hub struct {
	store   *Store
	logger  *slog.Logger
	metrics *metrics.Collector

	mu    sync.RWMutex
	peers map[string]*peer
}

// NewHub creates a hub persisting to store.
func NewHub(store *Store, logger *slog.Logger, collector *metrics.Collector) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		store:   store,
		logger:  logger,
		metrics: collector,
		peers:   make(map[string]*peer),
	}
}

// Serve runs an authenticated socket until it disconnects.
func (h *Hub) Serve(conn *websocket.Conn, claims *Claims) {
	p := &peer{
		id:     uuid.NewString(),
		userID: claims.Subject,
		name:   claims.Name,
		conn:   conn,
		send:   make(chan client.Frame, sendBuffer),
	}

	// The handshake goes out before any broadcast can reach p.
	hs, err := client.NewFrame(models.EventConnect, models.Handshake{SID: p.id})
	if err != nil {
		h.logger.Error("encode handshake", "error", err)
		return
	}
	p.send <- hs

	done := make(chan struct{})
	go h.writeLoop(p, done)

	h.mu.Lock()
	h.peers[p.id] = p
	h.mu.Unlock()

	h.logger.Info("socket connected", "socket_id", p.id, "user_id", p.userID)

	h.readLoop(p)

	h.mu.Lock()
	delete(h.peers, p.id)
	close(p.send)
	h.mu.Unlock()
	<-done

	h.logger.Info("socket disconnected", "socket_id", p.id, "user_id", p.userID)
	h.broadcastRoster()
}

func (h *Hub) readLoop(p *peer) {
	for {
		var f client.Frame
		if err := p.conn.ReadJSON(&f); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("socket read ended", "socket_id", p.id, "error", err)
			}
			return
		}

		switch f.Event {
		case models.EventInit:
			var name string
			if err := json.Unmarshal(f.Data, &name); err != nil {
				h.logger.Warn("bad init payload", "socket_id", p.id, "error", err)
				continue
			}
			h.join(p, name)

		case models.EventPrivateMessage:
			var pm models.PrivateMessage
			if err := json.Unmarshal(f.Data, &pm); err != nil {
				h.logger.Warn("bad private-message payload", "socket_id", p.id, "error", err)
				continue
			}
			h.deliver(p, pm)

		case models.EventTyping:
			var tn models.TypingNotice
			if err := json.Unmarshal(f.Data, &tn); err != nil {
				h.logger.Warn("bad typing payload", "socket_id", p.id, "error", err)
				continue
			}
			h.relayTyping(p, tn)

		default:
			h.logger.Debug("ignoring event", "socket_id", p.id, "event", f.Event)
		}
	}
}

func (h *Hub) writeLoop(p *peer, done chan struct{}) {
	defer close(done)
	for f := range p.send {
		_ = p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := p.conn.WriteJSON(f); err != nil {
			h.logger.Debug("socket write failed", "socket_id", p.id, "error", err)
			_ = p.conn.Close()
			// keep draining so senders never block
			for range p.send {
			}
			return
		}
	}
}

// join marks p as present under name and broadcasts the roster.
func (h *Hub) join(p *peer, name string) {
	h.mu.Lock()
	if name != "" {
		p.name = name
	}
	p.joined = true
	h.mu.Unlock()

	h.logger.Info("user joined", "socket_id", p.id, "name", p.name)
	h.broadcastRoster()
}

// Roster returns the joined users, one entry per socket, ordered by name.
func (h *Hub) Roster() []models.User {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rosterLocked()
}

func (h *Hub) rosterLocked() []models.User {
	users := make([]models.User, 0, len(h.peers))
	for _, p := range h.peers {
		if p.joined {
			users = append(users, models.User{ID: p.userID, Name: p.name, SocketID: p.id})
		}
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].Name != users[j].Name {
			return users[i].Name < users[j].Name
		}
		return users[i].SocketID < users[j].SocketID
	})
	return users
}

// Connections returns the number of open sockets.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

func (h *Hub) broadcastRoster() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	f, err := client.NewFrame(models.EventClientsList, h.rosterLocked())
	if err != nil {
		h.logger.Error("encode roster", "error", err)
		return
	}
	for _, p := range h.peers {
		h.push(p, f)
	}
}

// deliver persists a private message and sends it to every socket of both
// participants.
func (h *Hub) deliver(from *peer, pm models.PrivateMessage) {
	start := time.Now()

	if pm.From != from.userID {
		h.metrics.RecordFailure(metrics.OpDeliver)
		h.logger.Warn("rejecting spoofed sender", "socket_id", from.id, "claimed", pm.From, "user_id", from.userID)
		return
	}
	if pm.To == "" || pm.Message == "" {
		h.metrics.RecordFailure(metrics.OpDeliver)
		h.logger.Warn("rejecting incomplete message", "socket_id", from.id)
		return
	}

	msg := models.Message{
		From:    models.UserRef{ID: pm.From, Name: h.nameOf(pm.From)},
		To:      models.UserRef{ID: pm.To, Name: h.nameOf(pm.To)},
		Message: pm.Message,
	}
	if pm.Reply != "" {
		orig, ok := h.store.Get(pm.Reply)
		switch {
		case !ok:
			h.logger.Debug("reply target not found", "reply", pm.Reply)
		case !orig.Involves(pm.From):
			// Only messages the sender could see may be quoted.
			h.logger.Warn("rejecting foreign reply target", "reply", pm.Reply, "user_id", pm.From)
		default:
			stub := orig.ReplyStub()
			msg.ReplyMessage = &stub
			msg.ReplyFrom = orig.From.Name
			msg.ReplyTo = orig.To.Name
		}
	}
	msg = h.store.Add(msg)

	f, err := client.NewFrame(models.EventReceiveMessage, models.DirectedMessage{
		ID:           msg.ID,
		From:         msg.From,
		To:           msg.To,
		Message:      msg.Message,
		ReplyTo:      msg.ReplyTo,
		ReplyFrom:    msg.ReplyFrom,
		ReplyMessage: msg.ReplyMessage,
	})
	if err != nil {
		h.metrics.RecordFailure(metrics.OpDeliver)
		h.logger.Error("encode message", "error", err)
		return
	}

	sockets := h.sendToUsers(f, msg.From.ID, msg.To.ID)
	h.metrics.RecordTiming(metrics.OpDeliver, time.Since(start))
	h.logger.Debug("message delivered", "id", msg.ID, "from", msg.From.ID, "to", msg.To.ID, "sockets", sockets)
}

func (h *Hub) relayTyping(from *peer, tn models.TypingNotice) {
	if tn.From != from.userID || tn.To == "" {
		return
	}
	f, err := client.NewFrame(models.EventTyping, models.Typing{
		From:   models.UserRef{ID: from.userID, Name: from.name},
		To:     tn.To,
		Typing: tn.Typing,
	})
	if err != nil {
		return
	}
	h.sendToUsers(f, tn.To)
}

func (h *Hub) sendToUsers(f client.Frame, userIDs ...string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, p := range h.peers {
		for _, id := range userIDs {
			if p.userID == id {
				h.push(p, f)
				n++
				break
			}
		}
	}
	return n
}

// nameOf resolves a display name from any socket of userID.
func (h *Hub) nameOf(userID string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, p := range h.peers {
		if p.userID == userID && p.name != "" {
			return p.name
		}
	}
	return ""
}

// push enqueues without blocking. Caller must hold h.mu.
func (h *Hub) push(p *peer, f client.Frame) {
	select {
	case p.send <- f:
	default:
		h.logger.Warn("socket send buffer full, dropping frame", "socket_id", p.id, "event", f.Event)
	}
}

// Close disconnects every socket.
func (h *Hub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, p := range h.peers {
		_ = p.conn.Close()
	}
}
