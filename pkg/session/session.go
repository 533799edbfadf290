package session

import (
	"context"
	"sync"
	"time"

	"github.com/HMasataka/roomlink/internal/logging"
	"github.com/HMasataka/roomlink/pkg/domain"
	"github.com/HMasataka/roomlink/pkg/envelope"
	"github.com/HMasataka/roomlink/pkg/errors"
	"github.com/HMasataka/roomlink/pkg/events"
)

const source = "session"

// Session keeps one logical connection to the messaging backend alive and
// multiplexes room and private-queue subscriptions over it.
type Session struct {
	transport  domain.Transport
	options    Options
	logger     *logging.Logger
	dispatcher *events.Dispatcher
	errHandler errors.Handler
	afterFunc  AfterFunc

	mu             sync.Mutex
	state          State
	conn           domain.Conn
	token          string
	attempts       int
	exhausted      bool
	destroyed      bool
	closing        bool
	generation     uint64
	reconnectSeq   uint64
	reconnectTimer Timer
	heartbeatTimer Timer
	subs           *registry
}

// New creates a session that connects through transport
func New(transport domain.Transport, options Options) *Session {
	logger := options.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.WithComponent("session")

	afterFunc := options.AfterFunc
	if afterFunc == nil {
		afterFunc = realAfterFunc
	}

	return &Session{
		transport:  transport,
		options:    options,
		logger:     logger,
		dispatcher: events.NewDispatcher(logger),
		errHandler: errors.NewDefaultHandler(logger.Logger),
		afterFunc:  afterFunc,
		token:      options.Token,
		subs:       newRegistry(),
	}
}

// Connect opens the transport connection. It returns nil without opening a
// second connection when the session is already connecting or connected.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return errors.ErrDestroyed
	}
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return nil
	}
	if s.token == "" {
		s.mu.Unlock()
		s.reportError(errors.ErrNoToken)
		return errors.ErrNoToken
	}

	s.state = StateConnecting
	s.generation++
	gen := s.generation
	token := s.token
	s.mu.Unlock()

	s.logger.Info("connecting", "address", s.options.ServerURL)

	openCtx := ctx
	if s.options.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		openCtx, cancel = context.WithTimeout(ctx, s.options.ConnectTimeout)
		defer cancel()
	}

	conn, err := s.transport.Open(openCtx, s.options.ServerURL, token)
	if err != nil {
		return s.connectFailed(gen, err)
	}

	s.mu.Lock()
	if s.destroyed || gen != s.generation {
		destroyed := s.destroyed
		s.mu.Unlock()
		s.discard(conn)
		if destroyed {
			return errors.ErrDestroyed
		}
		return nil
	}

	s.conn = conn
	s.state = StateConnected
	s.attempts = 0
	s.exhausted = false
	s.stopReconnectLocked()
	s.startHeartbeatLocked(gen)
	s.mu.Unlock()

	go s.watch(conn, gen)

	s.logger.Info("connected", "address", s.options.ServerURL, "connection_id", conn.ID())
	s.dispatcher.Emit(events.KindConnected, source, domain.ConnectedInfo{
		ConnectionID: conn.ID(),
		Address:      s.options.ServerURL,
	})
	s.sendPresence(conn, domain.PresenceOnline)

	return nil
}

func (s *Session) connectFailed(gen uint64, cause error) error {
	err := errors.Wrap(cause, errors.ErrorTypeTransport, "CONNECT_FAILED", "failed to connect")

	s.mu.Lock()
	if gen != s.generation {
		// superseded by Disconnect or Destroy
		s.mu.Unlock()
		return err
	}
	s.state = StateDisconnected
	retry := s.options.AutoReconnect && !s.destroyed
	s.mu.Unlock()

	s.reportError(err)

	if retry {
		s.scheduleReconnect()
	}

	return err
}

// discard closes a connection that lost the race against Disconnect or Destroy
func (s *Session) discard(conn domain.Conn) {
	ctx, cancel := s.closeContext(context.Background())
	defer cancel()

	if err := conn.Close(ctx); err != nil {
		s.logger.Debug("failed to close superseded connection", "connection_id", conn.ID(), "error", err)
	}
}

// Disconnect closes the transport connection. When not connected it only
// cancels a pending reconnect.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateConnected || s.closing {
		s.stopReconnectLocked()
		if s.state == StateConnecting {
			// the in-flight open is discarded when it completes
			s.generation++
			s.state = StateDisconnected
		}
		s.mu.Unlock()
		return nil
	}

	s.closing = true
	s.stopReconnectLocked()
	s.stopHeartbeatLocked()
	s.generation++
	conn := s.conn
	s.mu.Unlock()

	s.sendPresence(conn, domain.PresenceOffline)

	closeCtx, cancel := s.closeContext(ctx)
	defer cancel()
	closeErr := conn.Close(closeCtx)

	s.mu.Lock()
	dropped := s.subs.clear()
	s.conn = nil
	s.state = StateDisconnected
	s.closing = false
	s.mu.Unlock()

	s.logger.Info("disconnected", "connection_id", conn.ID(), "subscriptions_dropped", dropped)
	s.dispatcher.Emit(events.KindDisconnected, source, domain.DisconnectedInfo{ConnectionID: conn.ID()})

	if closeErr != nil {
		err := errors.Wrap(closeErr, errors.ErrorTypeTransport, "CLOSE_FAILED", "failed to close connection")
		s.reportError(err)
		return err
	}

	return nil
}

func (s *Session) closeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.options.CloseTimeout > 0 {
		return context.WithTimeout(ctx, s.options.CloseTimeout)
	}
	return context.WithCancel(ctx)
}

// watch reacts to the transport ending the connection on its own
func (s *Session) watch(conn domain.Conn, gen uint64) {
	<-conn.Done()

	s.mu.Lock()
	if gen != s.generation || s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.stopHeartbeatLocked()
	s.subs.clear()
	s.conn = nil
	s.state = StateDisconnected
	s.generation++
	retry := s.options.AutoReconnect && !s.destroyed
	s.mu.Unlock()

	err := errors.Wrap(conn.Err(), errors.ErrorTypeTransport, "CONNECTION_LOST", "connection lost")

	s.logger.Warn("connection lost", "connection_id", conn.ID(), "error", conn.Err())
	s.dispatcher.Emit(events.KindDisconnected, source, domain.DisconnectedInfo{
		ConnectionID: conn.ID(),
		Reason:       err,
	})
	s.reportError(err)

	if retry {
		s.scheduleReconnect()
	}
}

// scheduleReconnect arms the reconnect timer for the next attempt, or
// reports exhaustion once the attempt cap is reached.
func (s *Session) scheduleReconnect() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}

	if s.attempts >= s.options.MaxReconnectAttempts {
		first := !s.exhausted
		s.exhausted = true
		attempts := s.attempts
		s.mu.Unlock()

		if first {
			s.logger.Error("giving up reconnecting", "attempts", attempts)
			s.reportError(errors.New(errors.ErrorTypeReconnectExhausted, errors.ErrReconnectExhausted.Code, errors.ErrReconnectExhausted.Message))
		}
		return
	}

	s.attempts++
	attempt := s.attempts
	delay := Backoff(s.options.ReconnectInterval, attempt)

	s.stopReconnectLocked()
	seq := s.reconnectSeq
	s.reconnectTimer = s.afterFunc(delay, func() { s.reconnect(seq) })
	s.mu.Unlock()

	s.logger.Info("reconnect scheduled",
		"attempt", attempt,
		"max_attempts", s.options.MaxReconnectAttempts,
		"delay", delay,
	)
}

func (s *Session) reconnect(seq uint64) {
	s.mu.Lock()
	if seq != s.reconnectSeq {
		// stopped or replaced after it fired
		s.mu.Unlock()
		return
	}
	s.reconnectTimer = nil
	s.mu.Unlock()

	// failures are reported through the error event
	_ = s.Connect(context.Background())
}

// stopReconnectLocked cancels the pending reconnect. Bumping reconnectSeq
// also voids a timer whose callback is already running.
func (s *Session) stopReconnectLocked() {
	s.reconnectSeq++
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
}

func (s *Session) startHeartbeatLocked(gen uint64) {
	s.stopHeartbeatLocked()
	if s.options.HeartbeatInterval <= 0 {
		return
	}
	s.heartbeatTimer = s.afterFunc(s.options.HeartbeatInterval, func() {
		s.heartbeat(gen)
	})
}

func (s *Session) stopHeartbeatLocked() {
	if s.heartbeatTimer != nil {
		s.heartbeatTimer.Stop()
		s.heartbeatTimer = nil
	}
}

func (s *Session) heartbeat(gen uint64) {
	s.mu.Lock()
	if gen != s.generation || s.state != StateConnected || s.closing {
		s.mu.Unlock()
		return
	}
	conn := s.conn
	s.startHeartbeatLocked(gen)
	s.mu.Unlock()

	s.sendPresence(conn, domain.PresenceHeartbeat)
}

// sendPresence sends a presence update. Failures are logged and swallowed.
func (s *Session) sendPresence(conn domain.Conn, status domain.Presence) {
	if err := conn.Send(envelope.PresenceDestination, envelope.TextHeaders(), string(status)); err != nil {
		s.logger.Warn("failed to send presence", "status", status, "error", err)
	}
}

// UpdatePresence broadcasts status for the current user. It is a no-op
// while not connected.
func (s *Session) UpdatePresence(status domain.Presence) {
	s.mu.Lock()
	conn, ok := s.activeLocked()
	s.mu.Unlock()

	if ok {
		s.sendPresence(conn, status)
	}
}

func (s *Session) activeLocked() (domain.Conn, bool) {
	if s.state != StateConnected || s.closing || s.conn == nil {
		return nil, false
	}
	return s.conn, true
}

// SubscribeToRoom subscribes to the topic of roomID
func (s *Session) SubscribeToRoom(roomID string) error {
	if roomID == "" {
		return errors.New(errors.ErrorTypeValidation, "INVALID_ROOM", "room id is required")
	}

	destination := envelope.RoomTopic(roomID)
	return s.subscribe(destination, func(delivery domain.Delivery) {
		inbound, err := envelope.DecodeRoom(roomID, delivery.Body)
		s.deliver(delivery, inbound, err)
	})
}

// SubscribeToUserQueue subscribes to the current user's private queue
func (s *Session) SubscribeToUserQueue() error {
	return s.subscribe(envelope.UserQueue, func(delivery domain.Delivery) {
		inbound, err := envelope.DecodeUserQueue(delivery.Body)
		s.deliver(delivery, inbound, err)
	})
}

func (s *Session) subscribe(destination string, handler domain.DeliveryHandler) error {
	s.mu.Lock()
	conn, ok := s.activeLocked()
	if !ok {
		s.mu.Unlock()
		return errors.ErrNotConnected
	}

	added, err := s.subs.add(conn, destination, handler)
	s.mu.Unlock()

	if err != nil {
		wrapped := errors.Wrap(err, errors.ErrorTypeTransport, "SUBSCRIBE_FAILED", "failed to subscribe").WithDetails(destination)
		s.reportError(wrapped)
		return wrapped
	}

	if !added {
		s.logger.Warn("already subscribed", "destination", destination)
		return nil
	}

	s.logger.Debug("subscribed", "destination", destination)
	return nil
}

func (s *Session) deliver(delivery domain.Delivery, inbound envelope.Inbound, err error) {
	if err != nil {
		s.reportError(err)
		return
	}

	if inbound.Kind == events.KindError {
		if serverErr, ok := inbound.Data.(error); ok {
			s.reportError(serverErr)
			return
		}
	}

	event := events.NewEvent(inbound.Kind, delivery.Destination, inbound.Data)
	if inbound.RoomID != "" {
		event.WithMetadata("room_id", inbound.RoomID)
	}
	s.dispatcher.Publish(event)
}

// Unsubscribe releases destination. Unknown destinations are ignored.
func (s *Session) Unsubscribe(destination string) error {
	s.mu.Lock()
	removed, err := s.subs.remove(destination)
	s.mu.Unlock()

	if err != nil {
		wrapped := errors.Wrap(err, errors.ErrorTypeTransport, "UNSUBSCRIBE_FAILED", "failed to unsubscribe").WithDetails(destination)
		s.reportError(wrapped)
		return wrapped
	}

	if removed {
		s.logger.Debug("unsubscribed", "destination", destination)
	}
	return nil
}

// UnsubscribeFromRoom releases the topic of roomID
func (s *Session) UnsubscribeFromRoom(roomID string) error {
	return s.Unsubscribe(envelope.RoomTopic(roomID))
}

// SendMessage sends action to roomID
func (s *Session) SendMessage(roomID string, action domain.Action) error {
	s.mu.Lock()
	conn, ok := s.activeLocked()
	s.mu.Unlock()
	if !ok {
		return errors.ErrNotConnected
	}

	if roomID == "" {
		return errors.New(errors.ErrorTypeValidation, "INVALID_ROOM", "room id is required")
	}

	body, err := envelope.EncodeAction(action)
	if err != nil {
		return err
	}

	return s.send(conn, envelope.RoomSend(roomID), envelope.JSONHeaders(), body)
}

// SendText sends a text message
func (s *Session) SendText(roomID, content string) error {
	return s.SendMessage(roomID, envelope.TextAction(content))
}

// SendImage sends an image message
func (s *Session) SendImage(roomID, imageURL, thumbnailURL string) error {
	return s.SendMessage(roomID, envelope.ImageAction(imageURL, thumbnailURL))
}

// SendVoice sends a voice message of duration seconds
func (s *Session) SendVoice(roomID, voiceURL string, duration int) error {
	return s.SendMessage(roomID, envelope.VoiceAction(voiceURL, duration))
}

// MarkRead marks messages in roomID as read up to lastMessageID. An empty
// id marks everything up to now.
func (s *Session) MarkRead(roomID, lastMessageID string) error {
	s.mu.Lock()
	conn, ok := s.activeLocked()
	s.mu.Unlock()
	if !ok {
		return errors.ErrNotConnected
	}

	if roomID == "" {
		return errors.New(errors.ErrorTypeValidation, "INVALID_ROOM", "room id is required")
	}

	body := envelope.ReadMarker(lastMessageID, time.Now())
	return s.send(conn, envelope.RoomRead(roomID), envelope.TextHeaders(), body)
}

func (s *Session) send(conn domain.Conn, destination string, headers domain.Headers, body string) error {
	if err := conn.Send(destination, headers, body); err != nil {
		wrapped := errors.Wrap(err, errors.ErrorTypeTransport, "SEND_FAILED", "failed to send").WithDetails(destination)
		s.reportError(wrapped)
		return wrapped
	}
	return nil
}

// SetAuthToken replaces the token used by later connection attempts
func (s *Session) SetAuthToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// IsConnected reports whether the session holds a live connection
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateConnected
}

// State returns the connection state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ReconnectAttempts returns the number of reconnect attempts since the last
// successful connect
func (s *Session) ReconnectAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Subscriptions returns the active destinations, sorted
func (s *Session) Subscriptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs.destinations()
}

// On registers handler for kind
func (s *Session) On(kind events.Kind, handler events.Handler) events.HandlerID {
	return s.dispatcher.On(kind, handler)
}

// Off removes a registration made with On
func (s *Session) Off(kind events.Kind, id events.HandlerID) bool {
	return s.dispatcher.Off(kind, id)
}

// Destroy disconnects and releases every handler and subscription. The
// session cannot be connected again.
func (s *Session) Destroy(ctx context.Context) error {
	err := s.Disconnect(ctx)

	s.mu.Lock()
	s.destroyed = true
	s.generation++
	s.stopReconnectLocked()
	s.stopHeartbeatLocked()
	s.subs.clear()
	s.mu.Unlock()

	s.dispatcher.Clear()
	s.logger.Info("destroyed")

	return err
}

func (s *Session) reportError(err error) {
	s.errHandler.Handle(context.Background(), err)
	s.dispatcher.Emit(events.KindError, source, err)
}
