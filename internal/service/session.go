package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/raphaelgruber/budgetchat/internal/metrics"
	"github.com/raphaelgruber/budgetchat/internal/models"
)

// SessionConfig configures a chat session.
type SessionConfig struct {
	Username        string
	Token           string
	Connection      ConnectionOptions
	HistoryPageSize int
	HistoryTimeout  time.Duration
	TypingInterval  time.Duration
	DragThreshold   int
}

// View is an immutable snapshot of the session for rendering.
type View struct {
	State      models.ConnectionState
	SocketID   string
	Self       string
	Roster     []models.User // connected users excluding self
	Joined     bool          // self appears in the roster
	Selected   *models.User
	Messages   []models.Message // visible in the selected conversation
	Loading    bool
	HistoryErr error
	Draft      string
	Typing     bool
	PeerTyping bool
	Pending    *models.PendingReply
	DragPhase  DragPhase
	DragID     string
}

// Session owns the messaging connection and every piece of chat state. It is
// the single long-lived object the widget is mounted on. State changes happen
// under one lock, one event at a time, and are announced on Updates.
type Session struct {
	cfg     SessionConfig
	conn    *ConnectionManager
	history *HistoryLoader
	logger  *slog.Logger
	metrics *metrics.Collector
	now     func() time.Time

	mu         sync.Mutex
	presence   *Presence
	timeline   *Timeline
	replies    *ReplyTracker
	composer   *Composer
	selected   *models.User
	generation uint64
	loading    bool
	historyErr error
	peerTyping bool
	notices    []models.Notice
	ctx        context.Context
	cancel     context.CancelFunc
	closed     bool

	updates chan struct{}
}

// NewSession wires a session. Nothing happens until Start.
func NewSession(cfg SessionConfig, dial DialFunc, fetcher HistoryFetcher, logger *slog.Logger, collector *metrics.Collector) *Session {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		cfg:      cfg,
		logger:   logger,
		metrics:  collector,
		now:      time.Now,
		presence: NewPresence(cfg.Username),
		timeline: NewTimeline(),
		replies:  NewReplyTracker(cfg.DragThreshold),
		composer: NewComposer(cfg.TypingInterval),
		updates:  make(chan struct{}, 1),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.conn = NewConnectionManager(dial, cfg.Connection, logger, s.pushNotice, collector)
	s.history = NewHistoryLoader(fetcher, cfg.Token, cfg.HistoryPageSize, cfg.HistoryTimeout, collector)
	return s
}

// Start attaches the event handler and connects. Calling it again while
// connected is a no-op. A closed session can be started again.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.ctx, s.cancel = context.WithCancel(context.Background())
		s.closed = false
	}
	s.mu.Unlock()

	s.conn.OnEvent(s.handleEvent)
	s.conn.Connect(ctx, s.cfg.Token, s.cfg.Username)
	s.signal()
}

// Close disconnects, detaches every handler and drops all chat state. No
// event is processed after Close returns.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.cancel()
	s.mu.Unlock()

	s.conn.Close()

	s.mu.Lock()
	s.timeline.Reset()
	s.presence.Clear()
	s.replies.Clear()
	s.replies.CancelDrag()
	s.selected = nil
	s.mu.Unlock()
	s.signal()
}

// Updates fires after every state change. Multiple changes may coalesce into
// one signal; read a fresh View on each.
func (s *Session) Updates() <-chan struct{} {
	return s.updates
}

// DrainNotices returns and clears the queued notifications, oldest first.
func (s *Session) DrainNotices() []models.Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.notices
	s.notices = nil
	return out
}

// View returns a snapshot for rendering.
func (s *Session) View() View {
	state := s.conn.State()
	socketID := s.conn.SocketID()

	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		State:      state,
		SocketID:   socketID,
		Self:       s.cfg.Username,
		Roster:     s.presence.Others(),
		Loading:    s.loading,
		HistoryErr: s.historyErr,
		Draft:      s.composer.Draft(),
		Typing:     s.composer.Typing(),
		PeerTyping: s.peerTyping,
	}
	_, v.Joined = s.presence.Self()
	if s.selected != nil {
		sel := *s.selected
		v.Selected = &sel
		v.Messages = s.timeline.Visible(sel.ID)
	}
	if p, ok := s.replies.Pending(); ok {
		v.Pending = &p
	}
	v.DragPhase, v.DragID = s.replies.Armed()
	return v
}

// WaitUntil blocks until cond holds for the current view or ctx ends. It
// consumes Updates, so it must not run alongside another Updates reader.
func (s *Session) WaitUntil(ctx context.Context, cond func(View) bool) (View, error) {
	for {
		v := s.View()
		if cond(v) {
			return v, nil
		}
		select {
		case <-ctx.Done():
			return v, ctx.Err()
		case <-s.updates:
		}
	}
}

func (s *Session) handleEvent(ev models.Event) {
	s.mu.Lock()
	switch ev := ev.(type) {
	case models.Connected:
		s.logger.Debug("session connected", "socket_id", ev.SocketID)

	case models.ConnectError:
		s.logger.Debug("session connect error", "attempt", ev.Attempt)

	case models.Disconnected:
		s.presence.Clear()
		s.peerTyping = false

	case models.RosterSnapshot:
		s.presence.Replace(ev.Users)

	case models.GenericMessage:
		if ev.Message != nil {
			s.timeline.Append(*ev.Message)
		}

	case models.ChatMessage:
		s.logger.Info("received chat-message", "data", string(ev.Raw))

	case models.DirectedMessage:
		s.timeline.Append(ev.ToMessage(s.now()))
		if s.selected != nil && ev.From.ID == s.selected.ID {
			s.peerTyping = false
		}

	case models.Typing:
		if s.selected != nil && ev.From.ID == s.selected.ID {
			s.peerTyping = ev.Typing
		}
	}
	s.mu.Unlock()
	s.signal()
}

// Select makes user the counterpart. The timeline is reset and the
// conversation history is loaded in the background; a result that arrives
// after a newer selection is discarded.
func (s *Session) Select(user models.User) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	stopTyping, resolved := s.typingNoticeLocked(false)
	wasTyping := s.composer.Blur() && resolved

	sel := user
	s.selected = &sel
	s.generation++
	gen := s.generation
	s.timeline.Reset()
	s.replies.CancelDrag()
	s.replies.Clear()
	s.historyErr = nil
	s.peerTyping = false

	key, ok := s.conversationKeyLocked()
	s.loading = ok
	ctx := s.ctx
	s.mu.Unlock()

	if wasTyping {
		s.emitTyping(stopTyping)
	}
	s.signal()

	if !ok {
		s.logger.Debug("history skipped, participants unresolved", "counterpart", user.Name)
		return
	}
	go s.loadHistory(ctx, gen, key)
}

// SelectByName selects a connected user by display name.
func (s *Session) SelectByName(name string) error {
	s.mu.Lock()
	var (
		user  models.User
		found bool
	)
	for _, u := range s.presence.Others() {
		if u.Name == name {
			user, found = u, true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		return fmt.Errorf("%w: %s", ErrUnresolvedParticipant, name)
	}
	s.Select(user)
	return nil
}

func (s *Session) loadHistory(ctx context.Context, gen uint64, key models.ConversationKey) {
	msgs, err := s.history.Load(ctx, key)

	s.mu.Lock()
	if s.closed || gen != s.generation {
		s.mu.Unlock()
		s.logger.Debug("discarding stale history", "counterpart", key.Counterpart.Name)
		return
	}

	s.loading = false
	if err != nil {
		s.logger.Warn("history load failed", "counterpart", key.Counterpart.Name, "error", err)
		s.timeline.Reset()
		s.historyErr = err
		s.pushNoticeLocked(models.NoticeError, "Could not load conversation")
	} else {
		s.timeline.MergeHistory(scopeHistory(key, msgs))
	}
	s.mu.Unlock()
	s.signal()
}

// scopeHistory drops messages that do not belong to the conversation.
func scopeHistory(key models.ConversationKey, msgs []models.Message) []models.Message {
	out := msgs[:0:0]
	for _, m := range msgs {
		if key.Contains(m) {
			out = append(out, m)
		}
	}
	return out
}

// conversationKeyLocked resolves both participants from the roster.
func (s *Session) conversationKeyLocked() (models.ConversationKey, bool) {
	if s.selected == nil {
		return models.ConversationKey{}, false
	}
	self, ok := s.presence.Self()
	if !ok {
		return models.ConversationKey{}, false
	}
	target, ok := s.presence.Resolve(s.selected.Name)
	if !ok {
		return models.ConversationKey{}, false
	}
	return models.ConversationKey{LoginUser: self, Counterpart: target}, true
}

// SetDraft updates the draft and broadcasts typing to the counterpart.
func (s *Session) SetDraft(text string) {
	s.mu.Lock()
	broadcast := s.composer.SetDraft(text)
	notice, ok := s.typingNoticeLocked(true)
	s.mu.Unlock()

	if broadcast && ok {
		s.emitTyping(notice)
	}
	s.signal()
}

// Blur ends local typing, e.g. when the composer loses focus.
func (s *Session) Blur() {
	s.mu.Lock()
	notice, ok := s.typingNoticeLocked(false)
	was := s.composer.Blur()
	s.mu.Unlock()

	if was && ok {
		s.emitTyping(notice)
	}
	s.signal()
}

// Send dispatches the draft to the selected counterpart, carrying the pending
// reply if one is set. The draft and the reply are cleared only when the
// message was actually emitted.
func (s *Session) Send() error {
	s.mu.Lock()
	if s.composer.Empty() {
		s.pushNoticeLocked(models.NoticeInfo, "Message cannot be empty")
		s.mu.Unlock()
		s.signal()
		return ErrEmptyDraft
	}

	if s.selected == nil {
		s.pushNoticeLocked(models.NoticeError, "Could not send message")
		s.mu.Unlock()
		s.signal()
		return ErrNoCounterpart
	}

	key, ok := s.conversationKeyLocked()
	if !ok {
		s.pushNoticeLocked(models.NoticeError, "Could not send message")
		s.mu.Unlock()
		s.signal()
		return ErrUnresolvedParticipant
	}

	pm := models.PrivateMessage{
		From:     key.LoginUser.ID,
		To:       key.Counterpart.ID,
		Message:  s.composer.Draft(),
		SocketID: s.conn.SocketID(),
	}
	if p, ok := s.replies.Pending(); ok {
		pm.Reply = p.ID
	}
	s.mu.Unlock()

	start := time.Now()
	err := s.conn.Emit(models.EventPrivateMessage, pm)

	s.mu.Lock()
	if err != nil {
		s.metrics.RecordFailure(metrics.OpSend)
		s.logger.Warn("send failed", "to", key.Counterpart.ID, "error", err)
		s.pushNoticeLocked(models.NoticeError, "Could not send message")
		s.mu.Unlock()
		s.signal()
		return fmt.Errorf("send message: %w", err)
	}
	s.metrics.RecordTiming(metrics.OpSend, time.Since(start))

	wasTyping := false
	if s.composer.Draft() == pm.Message {
		wasTyping = s.composer.Clear()
	}
	s.replies.Clear()
	stop := models.TypingNotice{From: pm.From, To: pm.To, Typing: false}
	s.mu.Unlock()

	if wasTyping {
		s.emitTyping(stop)
	}
	s.logger.Debug("message sent", "to", pm.To, "reply", pm.Reply)
	s.signal()
	return nil
}

// Drag reports a horizontal drag of offsetX on the message with id msgID.
func (s *Session) Drag(msgID string, offsetX int) {
	s.mu.Lock()
	msg, ok := s.timeline.Find(msgID)
	if ok {
		s.replies.Drag(msg, offsetX)
	}
	s.mu.Unlock()
	s.signal()
}

// Release ends a drag, committing an armed one as the pending reply.
func (s *Session) Release() (models.PendingReply, bool) {
	s.mu.Lock()
	p, ok := s.replies.Release()
	s.mu.Unlock()
	s.signal()
	return p, ok
}

// CancelDrag abandons an in-progress drag.
func (s *Session) CancelDrag() {
	s.mu.Lock()
	s.replies.CancelDrag()
	s.mu.Unlock()
	s.signal()
}

// DismissReply clears the pending reply.
func (s *Session) DismissReply() {
	s.mu.Lock()
	s.replies.Clear()
	s.mu.Unlock()
	s.signal()
}

// DragThreshold returns the offset that arms a reply.
func (s *Session) DragThreshold() int {
	return s.replies.Threshold()
}

func (s *Session) typingNoticeLocked(typing bool) (models.TypingNotice, bool) {
	key, ok := s.conversationKeyLocked()
	if !ok {
		return models.TypingNotice{}, false
	}
	return models.TypingNotice{From: key.LoginUser.ID, To: key.Counterpart.ID, Typing: typing}, true
}

func (s *Session) emitTyping(n models.TypingNotice) {
	if err := s.conn.Emit(models.EventTyping, n); err != nil {
		s.logger.Debug("typing not sent", "error", err)
	}
}

func (s *Session) pushNotice(n models.Notice) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.notices = append(s.notices, n)
	s.mu.Unlock()
	s.signal()
}

func (s *Session) pushNoticeLocked(level models.NoticeLevel, text string) {
	s.notices = append(s.notices, models.Notice{Level: level, Text: text, At: s.now()})
}

func (s *Session) signal() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}
