package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/raphaelgruber/budgetchat/internal/client"
	"github.com/raphaelgruber/budgetchat/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type frame struct {
	ev  models.Event
	err error
}

type emitted struct {
	event   string
	payload any
}

// fakeConn is an in-memory Conn. Events pushed with send are returned by Next
// in order; Close makes Next return io.EOF.
type fakeConn struct {
	id     string
	frames chan frame
	closed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	emits   []emitted
	emitErr error
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{
		id:     id,
		frames: make(chan frame, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Emit(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.emitErr != nil {
		return c.emitErr
	}
	c.emits = append(c.emits, emitted{event: event, payload: payload})
	return nil
}

func (c *fakeConn) Next() (models.Event, error) {
	select {
	case f := <-c.frames:
		return f.ev, f.err
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) send(ev models.Event) {
	c.frames <- frame{ev: ev}
}

func (c *fakeConn) fail(err error) {
	c.frames <- frame{err: err}
}

func (c *fakeConn) emitted(event string) []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []any
	for _, e := range c.emits {
		if e.event == event {
			out = append(out, e.payload)
		}
	}
	return out
}

// fakeDialer hands out queued connections and fails once the queue is empty.
type fakeDialer struct {
	mu    sync.Mutex
	calls int
	fails int // leading attempts that fail before the queue is used
	conns []*fakeConn
}

func (d *fakeDialer) dial(ctx context.Context, token string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.fails > 0 {
		d.fails--
		return nil, errors.New("connection refused")
	}
	if len(d.conns) == 0 {
		return nil, errors.New("connection refused")
	}
	c := d.conns[0]
	d.conns = d.conns[1:]
	return c, nil
}

func (d *fakeDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type fetchResult struct {
	msgs []models.Message
	err  error
}

// fakeFetcher serves conversation pages keyed by counterpart id. A gate holds
// the response for that counterpart until it is closed.
type fakeFetcher struct {
	mu      sync.Mutex
	results map[string]fetchResult
	gates   map[string]chan struct{}
	done    map[string]chan struct{}
	calls   []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		results: make(map[string]fetchResult),
		gates:   make(map[string]chan struct{}),
		done:    make(map[string]chan struct{}),
	}
}

func (f *fakeFetcher) set(counterpartID string, msgs []models.Message, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[counterpartID] = fetchResult{msgs: msgs, err: err}
}

func (f *fakeFetcher) hold(counterpartID string) (release func(), finished <-chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	done := make(chan struct{})
	f.gates[counterpartID] = gate
	f.done[counterpartID] = done
	return func() { close(gate) }, done
}

func (f *fakeFetcher) GetConversation(ctx context.Context, token, user1, user2 string, opts client.PageOptions) (*client.ConversationPage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, user2)
	gate := f.gates[user2]
	done := f.done[user2]
	f.mu.Unlock()

	if done != nil {
		defer close(done)
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	res := f.results[user2]
	f.mu.Unlock()
	if res.err != nil {
		return nil, res.err
	}
	return &client.ConversationPage{Data: res.msgs}, nil
}

var (
	alice = models.User{ID: "a1", Name: "alice", SocketID: "sa"}
	bob   = models.User{ID: "b1", Name: "bob", SocketID: "sb"}
	carol = models.User{ID: "c1", Name: "carol", SocketID: "sc"}
	dave  = models.User{ID: "d1", Name: "dave", SocketID: "sd"}
)

func msgBetween(id string, from, to models.User, text string) models.Message {
	return models.Message{ID: id, From: from.Ref(), To: to.Ref(), Message: text}
}
