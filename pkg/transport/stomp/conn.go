package stomp

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HMasataka/roomlink/internal/logging"
	"github.com/HMasataka/roomlink/pkg/domain"
	"github.com/HMasataka/roomlink/pkg/errors"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
	"github.com/rs/xid"
)

type subscription struct {
	id          string
	destination string
	handler     domain.DeliveryHandler
}

// outbound is an encoded frame; written is closed once it reaches the socket
type outbound struct {
	data    []byte
	written chan struct{}
}

// Conn implements domain.Conn as STOMP frames over a websocket
type Conn struct {
	id       string
	ws       *websocket.Conn
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *logging.Logger
	options  Options
	sendChan chan outbound

	// delivering is set while the read pump runs a subscription handler
	delivering atomic.Bool

	mu            sync.RWMutex
	subscriptions map[string]*subscription
	receipts      map[string]chan struct{}
	nextSubID     int
	serverHeaders domain.Headers
	closing       bool
	closed        bool
	err           error

	connected     chan struct{}
	connectedOnce sync.Once
	done          chan struct{}
	closeOnce     sync.Once
}

func newConn(id string, ws *websocket.Conn, logger *logging.Logger, options Options) *Conn {
	ctx, cancel := context.WithCancel(context.Background())

	return &Conn{
		id:            id,
		ws:            ws,
		ctx:           ctx,
		cancel:        cancel,
		logger:        logger.WithFields(map[string]any{"connection_id": id}),
		options:       options,
		sendChan:      make(chan outbound, options.SendBufferSize),
		subscriptions: make(map[string]*subscription),
		receipts:      make(map[string]chan struct{}),
		connected:     make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// ID implements domain.Conn
func (c *Conn) ID() string {
	return c.id
}

// Done implements domain.Conn
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err implements domain.Conn
func (c *Conn) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// ServerHeaders returns the headers of the CONNECTED frame
func (c *Conn) ServerHeaders() domain.Headers {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverHeaders
}

// Send implements domain.Conn
func (c *Conn) Send(destination string, headers domain.Headers, body string) error {
	f := frame.New(frame.SEND, HeaderDestination, destination)
	SetHeaders(f, headers)
	if _, ok := f.Header.Contains(HeaderContentType); !ok && body != "" {
		f.Header.Set(HeaderContentType, "text/plain;charset=UTF-8")
	}
	f.Body = []byte(body)

	return c.enqueue(f)
}

// Subscribe implements domain.Conn
func (c *Conn) Subscribe(destination string, handler domain.DeliveryHandler) (domain.Unsubscribe, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, domain.ErrConnectionClosed
	}
	sub := &subscription{
		id:          "sub-" + strconv.Itoa(c.nextSubID),
		destination: destination,
		handler:     handler,
	}
	c.nextSubID++
	c.subscriptions[sub.id] = sub
	c.mu.Unlock()

	f := frame.New(frame.SUBSCRIBE,
		HeaderID, sub.id,
		HeaderDestination, destination,
		HeaderAck, "auto",
	)
	if err := c.enqueue(f); err != nil {
		c.detach(sub.id)
		return nil, err
	}

	c.logger.Debug("subscribed", "destination", destination, "subscription", sub.id)

	var once sync.Once
	return func() error {
		var err error
		once.Do(func() {
			c.detach(sub.id)
			if c.isClosed() {
				return
			}
			err = c.enqueue(frame.New(frame.UNSUBSCRIBE, HeaderID, sub.id))
		})
		return err
	}, nil
}

// Close implements domain.Conn. It sends DISCONNECT and waits for the
// receipt until ctx ends, then closes the socket. Called from a
// subscription handler it only waits for DISCONNECT to be written, as the
// receipt would arrive on the blocked read pump.
func (c *Conn) Close(ctx context.Context) error {
	if c.isClosed() {
		return nil
	}

	c.mu.Lock()
	c.closing = true
	c.mu.Unlock()

	receipt := xid.New().String()
	wait := c.expectReceipt(receipt)
	written := make(chan struct{})

	if err := c.send(frame.New(frame.DISCONNECT, HeaderReceipt, receipt), written); err != nil {
		c.shutdown(nil)
		return err
	}
	if c.delivering.Load() {
		wait = written
	}

	var err error
	select {
	case <-wait:
	case <-c.done:
	case <-ctx.Done():
		err = errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "RECEIPT_TIMEOUT", "server did not confirm disconnect")
	}

	c.shutdown(nil)
	return err
}

// start starts the read and write pumps
func (c *Conn) start() {
	go c.readPump()
	go c.writePump()
}

// handshake sends CONNECT and waits for CONNECTED
func (c *Conn) handshake(ctx context.Context, host string) error {
	f := frame.New(frame.CONNECT,
		HeaderAcceptVersion, "1.2,1.1",
		HeaderHost, host,
		HeaderHeartBeat, "0,0",
	)
	if err := c.enqueue(f); err != nil {
		return errors.Wrap(err, errors.ErrorTypeTransport, "HANDSHAKE_FAILED", "failed to send CONNECT")
	}

	select {
	case <-c.connected:
		return nil
	case <-c.done:
		if err := c.Err(); err != nil {
			return err
		}
		return errors.Wrap(domain.ErrConnectionClosed, errors.ErrorTypeTransport, "HANDSHAKE_FAILED", "connection closed during handshake")
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "HANDSHAKE_TIMEOUT", "server did not answer CONNECT")
	}
}

func (c *Conn) enqueue(f *frame.Frame) error {
	return c.send(f, nil)
}

func (c *Conn) send(f *frame.Frame, written chan struct{}) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return domain.ErrConnectionClosed
	}

	data, err := Encode(f)
	if err != nil {
		return err
	}

	select {
	case c.sendChan <- outbound{data: data, written: written}:
		c.logger.Debug("frame queued", "command", f.Command, "size", len(data))
		return nil
	case <-c.ctx.Done():
		return domain.ErrConnectionClosed
	default:
		return errors.Wrap(domain.ErrSendBufferFull, errors.ErrorTypeTransport, "SEND_BUFFER_FULL", "send buffer is full")
	}
}

func (c *Conn) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// fail shuts down with err unless a local Close is already in progress
func (c *Conn) fail(err error) {
	c.mu.RLock()
	closing := c.closing
	c.mu.RUnlock()

	if closing {
		c.shutdown(nil)
		return
	}
	c.shutdown(err)
}

func (c *Conn) detach(id string) {
	c.mu.Lock()
	delete(c.subscriptions, id)
	c.mu.Unlock()
}

func (c *Conn) expectReceipt(id string) <-chan struct{} {
	ch := make(chan struct{})
	c.mu.Lock()
	c.receipts[id] = ch
	c.mu.Unlock()
	return ch
}

// shutdown tears the connection down once, recording err as the cause
func (c *Conn) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.err = err
		c.mu.Unlock()

		c.cancel()

		deadline := time.Now().Add(time.Second)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		if cerr := c.ws.Close(); cerr != nil {
			c.logger.Debug("error closing websocket connection", "error", cerr)
		}

		close(c.done)

		if err != nil {
			c.logger.Warn("connection closed", "error", err)
		} else {
			c.logger.Info("connection closed")
		}
	})
}

// readPump pumps frames from the websocket connection
func (c *Conn) readPump() {
	defer c.logger.Debug("read pump stopped")

	c.ws.SetReadLimit(c.options.MaxMessageSize)
	c.extendReadDeadline()
	c.ws.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})

	reader := NewFrameReader(c.ws, c.options.MaxMessageSize)
	reader.OnMessage(c.extendReadDeadline)

	for {
		f, err := reader.Read()
		if err != nil {
			if c.isClosed() {
				return
			}
			c.fail(err)
			return
		}
		c.handleFrame(f)
	}
}

func (c *Conn) extendReadDeadline() {
	if c.options.ReadTimeout > 0 {
		_ = c.ws.SetReadDeadline(time.Now().Add(c.options.ReadTimeout))
	}
}

func (c *Conn) extendWriteDeadline() {
	if c.options.WriteTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.options.WriteTimeout))
	}
}

func (c *Conn) handleFrame(f *frame.Frame) {
	switch f.Command {
	case frame.CONNECTED:
		c.mu.Lock()
		c.serverHeaders = Headers(f)
		c.mu.Unlock()
		c.connectedOnce.Do(func() { close(c.connected) })
		c.logger.Info("stomp session established", "version", f.Header.Get(HeaderVersion))

	case frame.MESSAGE:
		id := f.Header.Get(HeaderSubscription)
		c.mu.RLock()
		sub, ok := c.subscriptions[id]
		c.mu.RUnlock()
		if !ok {
			c.logger.Debug("message for unknown subscription", "subscription", id)
			return
		}
		c.deliver(sub, f)

	case frame.RECEIPT:
		id := f.Header.Get(HeaderReceiptID)
		c.mu.Lock()
		ch, ok := c.receipts[id]
		delete(c.receipts, id)
		c.mu.Unlock()
		if ok {
			close(ch)
		}

	case frame.ERROR:
		err := errors.New(errors.ErrorTypeTransport, "STOMP_ERROR", f.Header.Get(HeaderMessage))
		if len(f.Body) > 0 {
			err = err.WithDetails(string(f.Body))
		}
		c.shutdown(err)

	default:
		c.logger.Debug("ignoring frame", "command", f.Command)
	}
}

func (c *Conn) deliver(sub *subscription, f *frame.Frame) {
	c.delivering.Store(true)
	defer func() {
		c.delivering.Store(false)
		if r := recover(); r != nil {
			c.logger.Error("subscription handler panicked",
				"destination", sub.destination,
				"panic", fmt.Sprint(r),
			)
		}
	}()

	sub.handler(domain.Delivery{
		Destination: f.Header.Get(HeaderDestination),
		Headers:     Headers(f),
		Body:        f.Body,
	})
}

// writePump pumps frames to the websocket connection
func (c *Conn) writePump() {
	defer c.logger.Debug("write pump stopped")

	var tick <-chan time.Time
	if c.options.PingInterval > 0 {
		ticker := time.NewTicker(c.options.PingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-c.ctx.Done():
			return

		case message := <-c.sendChan:
			c.extendWriteDeadline()
			if err := c.ws.WriteMessage(websocket.TextMessage, message.data); err != nil {
				c.fail(errors.Wrap(err, errors.ErrorTypeTransport, "WRITE_FAILED", "websocket write failed"))
				return
			}
			if message.written != nil {
				close(message.written)
			}

		case <-tick:
			c.extendWriteDeadline()
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.fail(errors.Wrap(err, errors.ErrorTypeTransport, "PING_FAILED", "websocket ping failed"))
				return
			}
		}
	}
}
