// Package service implements the chat core: connection lifecycle, presence,
// history loading, timeline merging, replies and message composition.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/raphaelgruber/budgetchat/internal/client"
	"github.com/raphaelgruber/budgetchat/internal/metrics"
	"github.com/raphaelgruber/budgetchat/internal/models"
)

// Conn is an established messaging connection.
type Conn interface {
	ID() string
	Emit(event string, payload any) error
	Next() (models.Event, error)
	Close() error
}

// DialFunc opens an authenticated connection.
type DialFunc func(ctx context.Context, token string) (Conn, error)

// SocketDialer adapts a websocket dialer to a DialFunc.
func SocketDialer(d *client.Dialer) DialFunc {
	return func(ctx context.Context, token string) (Conn, error) {
		s, err := d.Dial(ctx, token)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// NotifyFunc receives user-visible notifications.
type NotifyFunc func(models.Notice)

// ConnectionOptions configures the attempt policy.
type ConnectionOptions struct {
	MaxAttempts int           // consecutive failures before giving up (default 3)
	RetryDelay  time.Duration // fixed pause between attempts, no backoff
}

// ConnectionManager owns the single messaging connection. Events are delivered
// to the registered handler from one goroutine, in arrival order.
type ConnectionManager struct {
	dial    DialFunc
	opts    ConnectionOptions
	logger  *slog.Logger
	notify  NotifyFunc
	metrics *metrics.Collector

	mu       sync.Mutex
	state    models.ConnectionState
	conn     Conn
	failures int
	handler  func(models.Event)
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewConnectionManager creates a manager in the disconnected state.
func NewConnectionManager(dial DialFunc, opts ConnectionOptions, logger *slog.Logger, notify NotifyFunc, collector *metrics.Collector) *ConnectionManager {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	if notify == nil {
		notify = func(models.Notice) {}
	}
	return &ConnectionManager{
		dial:    dial,
		opts:    opts,
		logger:  logger,
		notify:  notify,
		metrics: collector,
	}
}

// OnEvent registers the event handler, replacing any previous one.
// The handler must not call Disconnect or Close.
func (m *ConnectionManager) OnEvent(h func(models.Event)) {
	m.mu.Lock()
	m.handler = h
	m.mu.Unlock()
}

// State returns the current connection state.
func (m *ConnectionManager) State() models.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SocketID returns the id of the live connection, or "".
func (m *ConnectionManager) SocketID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return ""
	}
	return m.conn.ID()
}

// Connect starts connecting in the background and announces username once the
// handshake completes. It is a no-op while connecting or connected.
func (m *ConnectionManager) Connect(ctx context.Context, token, username string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == models.StateConnecting || m.state == models.StateConnected {
		m.logger.Debug("connect ignored", "state", m.state.String())
		return
	}

	// A loop that gave up has already exited; release its context.
	if m.cancel != nil {
		m.cancel()
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.state = models.StateConnecting
	m.failures = 0
	m.cancel = cancel
	m.done = done

	go m.run(runCtx, done, token, username)
}

// Emit sends an event over the live connection.
func (m *ConnectionManager) Emit(event string, payload any) error {
	m.mu.Lock()
	conn, state := m.conn, m.state
	m.mu.Unlock()

	if conn == nil || state != models.StateConnected {
		return ErrNotConnected
	}
	return conn.Emit(event, payload)
}

// Disconnect stops any attempt loop and closes the connection. It returns once
// the event goroutine has exited.
func (m *ConnectionManager) Disconnect() {
	m.mu.Lock()
	conn, done := m.conn, m.done
	// Cancel under the lock so attach and recordFailure see it.
	if m.cancel != nil {
		m.cancel()
	}
	m.cancel, m.conn, m.done = nil, nil, nil
	m.state = models.StateDisconnected
	m.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			m.logger.Debug("close connection", "error", err)
		}
	}
	if done != nil {
		<-done
	}
}

// Close tears the manager down: the handler is removed and the connection is
// closed. No handler call happens after Close returns.
func (m *ConnectionManager) Close() {
	m.OnEvent(nil)
	m.Disconnect()
}

func (m *ConnectionManager) run(ctx context.Context, done chan struct{}, token, username string) {
	defer close(done)

	for {
		start := time.Now()
		conn, err := m.dial(ctx, token)
		if err != nil {
			if !m.recordFailure(ctx, err) {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.opts.RetryDelay):
			}
			continue
		}

		if !m.attach(ctx, conn) {
			_ = conn.Close()
			return
		}
		m.metrics.RecordTiming(metrics.OpConnect, time.Since(start))

		m.logger.Info("connected", "socket_id", conn.ID())
		m.dispatch(models.Connected{SocketID: conn.ID()})
		m.notifyf(models.NoticeSuccess, "Connected to socket, id: %s", conn.ID())

		if err := conn.Emit(models.EventInit, username); err != nil {
			m.logger.Warn("announce identity failed", "error", err)
		}

		err = m.readLoop(ctx, conn)
		if !m.detach(ctx, conn) {
			_ = conn.Close()
			return
		}

		m.logger.Warn("connection lost", "error", err)
		m.dispatch(models.Disconnected{Err: err})
		m.notifyf(models.NoticeWarn, "Connection lost, reconnecting")
	}
}

func (m *ConnectionManager) readLoop(ctx context.Context, conn Conn) error {
	for {
		ev, err := conn.Next()
		if err != nil {
			if errors.Is(err, client.ErrMalformedFrame) {
				m.logger.Warn("dropping frame", "error", err)
				continue
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.dispatch(ev)
	}
}

// recordFailure counts a failed attempt and reports whether to try again.
func (m *ConnectionManager) recordFailure(ctx context.Context, err error) bool {
	m.mu.Lock()
	if ctx.Err() != nil {
		m.mu.Unlock()
		return false
	}
	m.failures++
	attempt := m.failures
	m.mu.Unlock()

	limit := m.opts.MaxAttempts
	m.logger.Warn("connect failed", "attempt", attempt, "max", limit, "error", err)
	m.dispatch(models.ConnectError{Attempt: attempt, Err: err})
	m.notifyf(models.NoticeError, "Socket connection failed (%d/%d)", attempt, limit)

	if attempt < limit {
		return true
	}

	m.notifyf(models.NoticeError, "Socket connection failed %d times. Stopping further attempts.", limit)

	m.mu.Lock()
	if ctx.Err() == nil {
		m.state = models.StateFailed
	}
	m.mu.Unlock()
	return false
}

func (m *ConnectionManager) attach(ctx context.Context, conn Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	m.conn = conn
	m.state = models.StateConnected
	m.failures = 0
	return true
}

// detach drops a dead connection and reports whether the loop should go on.
func (m *ConnectionManager) detach(ctx context.Context, conn Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	_ = conn.Close()
	m.conn = nil
	m.state = models.StateConnecting
	return true
}

func (m *ConnectionManager) dispatch(ev models.Event) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

func (m *ConnectionManager) notifyf(level models.NoticeLevel, format string, args ...any) {
	m.notify(models.Notice{
		Level: level,
		Text:  fmt.Sprintf(format, args...),
		At:    time.Now(),
	})
}
