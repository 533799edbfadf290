package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/HMasataka/roomlink/pkg/domain"
	"github.com/HMasataka/roomlink/pkg/events"
)

type sent struct {
	destination string
	headers     domain.Headers
	body        string
}

type fakeConn struct {
	id string

	mu             sync.Mutex
	sends          []sent
	handlers       map[string]domain.DeliveryHandler
	subscribeCalls int
	unsubscribed   []string
	closed         bool
	sendErr        error
	closeErr       error
	err            error
	done           chan struct{}
	doneOnce       sync.Once
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{
		id:       id,
		handlers: make(map[string]domain.DeliveryHandler),
		done:     make(chan struct{}),
	}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(destination string, headers domain.Headers, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrConnectionClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sends = append(c.sends, sent{destination: destination, headers: headers, body: body})
	return nil
}

func (c *fakeConn) Subscribe(destination string, handler domain.DeliveryHandler) (domain.Unsubscribe, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribeCalls++
	c.handlers[destination] = handler
	return func() error {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers, destination)
		c.unsubscribed = append(c.unsubscribed, destination)
		return nil
	}, nil
}

func (c *fakeConn) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	closeErr := c.closeErr
	c.mu.Unlock()
	c.doneOnce.Do(func() { close(c.done) })
	return closeErr
}

func (c *fakeConn) Done() <-chan struct{} { return c.done }

func (c *fakeConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// drop simulates the server going away
func (c *fakeConn) drop(err error) {
	c.mu.Lock()
	c.closed = true
	c.err = err
	c.mu.Unlock()
	c.doneOnce.Do(func() { close(c.done) })
}

// deliver feeds body to the handler subscribed on destination
func (c *fakeConn) deliver(destination, body string) bool {
	c.mu.Lock()
	handler, ok := c.handlers[destination]
	c.mu.Unlock()
	if !ok {
		return false
	}
	handler(domain.Delivery{Destination: destination, Body: []byte(body)})
	return true
}

func (c *fakeConn) sentTo(destination string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, s := range c.sends {
		if s.destination == destination {
			out = append(out, s.body)
		}
	}
	return out
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) subscribes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribeCalls
}

type fakeTransport struct {
	mu    sync.Mutex
	opens int
	fail  func(n int) error
	conns []*fakeConn
	seen  []string

	// when gate is set, Open signals entered and blocks until gate closes
	gate    chan struct{}
	entered chan struct{}
}

// gatedTransport returns a transport whose opens stay in flight until the
// test closes gate
func gatedTransport() *fakeTransport {
	return &fakeTransport{
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 4),
	}
}

func (t *fakeTransport) Open(ctx context.Context, address, token string) (domain.Conn, error) {
	t.mu.Lock()
	t.opens++
	n := t.opens
	t.seen = append(t.seen, token)
	gate, entered := t.gate, t.entered
	t.mu.Unlock()

	if gate != nil {
		entered <- struct{}{}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.fail != nil {
		if err := t.fail(n); err != nil {
			return nil, err
		}
	}

	conn := newFakeConn(fmt.Sprintf("conn-%d", len(t.conns)+1))
	t.conns = append(t.conns, conn)
	return conn, nil
}

func (t *fakeTransport) openCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opens
}

func (t *fakeTransport) last() *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conns[len(t.conns)-1]
}

type fakeTimer struct {
	clock   *fakeClock
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	wasPending := !t.stopped && !t.fired
	t.stopped = true
	return wasPending
}

// fakeClock records scheduled timers; tests fire them explicitly
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, delay: d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) pending() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// fireNext runs the oldest pending timer and returns its delay
func (c *fakeClock) fireNext() (time.Duration, bool) {
	pending := c.pending()
	if len(pending) == 0 {
		return 0, false
	}
	t := pending[0]

	c.mu.Lock()
	t.fired = true
	c.mu.Unlock()

	t.fn()
	return t.delay, true
}

type recorder struct {
	mu     sync.Mutex
	events []*events.Event
}

func record(s *Session) *recorder {
	r := &recorder{}
	for _, kind := range events.Kinds() {
		s.On(kind, r.add)
	}
	return r
}

func (r *recorder) add(event *events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) of(kind events.Kind) []*events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*events.Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
