// Package testbroker is an in-memory STOMP-over-websocket broker that mimics
// the chat server's destinations. It backs integration tests and the local
// broker command.
package testbroker

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HMasataka/roomlink/internal/logging"
	"github.com/HMasataka/roomlink/pkg/domain"
	"github.com/HMasataka/roomlink/pkg/envelope"
	"github.com/HMasataka/roomlink/pkg/errors"
	"github.com/HMasataka/roomlink/pkg/transport/stomp"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
	"github.com/rs/xid"
)

const maxFrameSize = 512 * 1024

// Authenticator maps a token to a user id
type Authenticator func(token string) (userID string, ok bool)

// Options represents broker options
type Options struct {
	Logger       *logging.Logger
	Authenticate Authenticator
	Path         string
	CheckOrigin  func(r *http.Request) bool
}

// Option is a function that configures Options
type Option func(*Options)

// WithLogger sets the logger for the broker
func WithLogger(logger *logging.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithAuthenticator sets the token check run before the upgrade
func WithAuthenticator(auth Authenticator) Option {
	return func(o *Options) {
		o.Authenticate = auth
	}
}

// WithPath sets the websocket endpoint path
func WithPath(path string) Option {
	return func(o *Options) {
		o.Path = path
	}
}

// Received is a SEND frame accepted by the broker
type Received struct {
	SessionID   string
	UserID      string
	Destination string
	Headers     domain.Headers
	Body        string
}

// Broker is an in-memory STOMP broker
type Broker struct {
	options  Options
	logger   *logging.Logger
	upgrader websocket.Upgrader
	router   chi.Router

	mu       sync.RWMutex
	sessions map[string]*session
	received []Received
	presence map[string]string

	messageSeq atomic.Int64
}

// New creates a new broker
func New(opts ...Option) *Broker {
	options := Options{
		Path: "/ws",
		Authenticate: func(token string) (string, bool) {
			return token, token != ""
		},
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = logging.Discard()
	}

	b := &Broker{
		options: options,
		logger:  options.Logger.WithComponent("testbroker"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     options.CheckOrigin,
		},
		sessions: make(map[string]*session),
		presence: make(map[string]string),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get(options.Path, b.serveWS)
	b.router = r

	return b
}

// ServeHTTP implements http.Handler
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.router.ServeHTTP(w, r)
}

// Publish sends body to every subscriber of destination and returns the
// number of deliveries.
func (b *Broker) Publish(destination, body string) int {
	delivered := 0
	for _, s := range b.snapshot() {
		if s.deliver(destination, body, b.nextMessageID()) {
			delivered++
		}
	}
	return delivered
}

// SendToUser pushes body onto the private queue of every session of userID
func (b *Broker) SendToUser(userID, body string) int {
	delivered := 0
	for _, s := range b.snapshot() {
		if s.userID != userID {
			continue
		}
		if s.deliver(envelope.UserQueue, body, b.nextMessageID()) {
			delivered++
		}
	}
	return delivered
}

// Received returns every SEND frame accepted so far
func (b *Broker) Received() []Received {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Received, len(b.received))
	copy(out, b.received)
	return out
}

// ReceivedOn returns the bodies sent to destination
func (b *Broker) ReceivedOn(destination string) []string {
	var bodies []string
	for _, r := range b.Received() {
		if r.Destination == destination {
			bodies = append(bodies, r.Body)
		}
	}
	return bodies
}

// Subscribers returns the number of subscriptions bound to destination
func (b *Broker) Subscribers(destination string) int {
	count := 0
	for _, s := range b.snapshot() {
		count += s.subscriberCount(destination)
	}
	return count
}

// Sessions returns the number of live sessions
func (b *Broker) Sessions() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

// Presence returns the last presence reported by userID
func (b *Broker) Presence(userID string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.presence[userID]
}

// DropAll closes every socket without a STOMP goodbye
func (b *Broker) DropAll() {
	for _, s := range b.snapshot() {
		_ = s.conn.Close()
	}
}

func (b *Broker) snapshot() []*session {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*session, 0, len(b.sessions))
	for _, s := range b.sessions {
		out = append(out, s)
	}
	return out
}

func (b *Broker) nextMessageID() string {
	return strconv.FormatInt(b.messageSeq.Add(1), 10)
}

func (b *Broker) serveWS(w http.ResponseWriter, r *http.Request) {
	token := tokenFromRequest(r)
	userID, ok := b.options.Authenticate(token)
	if !ok {
		b.logger.Warn("rejecting handshake", "remote_addr", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Error("websocket upgrade error", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	s := &session{
		id:     xid.New().String(),
		userID: userID,
		conn:   conn,
		subs:   make(map[string]string),
	}

	b.mu.Lock()
	b.sessions[s.id] = s
	b.mu.Unlock()

	b.logger.Info("session opened", "session_id", s.id, "user_id", userID)

	b.readLoop(s)

	b.mu.Lock()
	delete(b.sessions, s.id)
	b.mu.Unlock()
	_ = conn.Close()

	b.logger.Info("session closed", "session_id", s.id)
}

func (b *Broker) readLoop(s *session) {
	reader := stomp.NewFrameReader(s.conn, maxFrameSize)
	for {
		f, err := reader.Read()
		if err != nil {
			if errType, ok := errors.TypeOf(err); ok && errType == errors.ErrorTypeProtocol {
				s.write(frame.New(frame.ERROR, stomp.HeaderMessage, err.Error()))
			}
			return
		}

		if !b.handleFrame(s, f) {
			return
		}
	}
}

// handleFrame processes one client frame and reports whether to keep reading
func (b *Broker) handleFrame(s *session, f *frame.Frame) bool {
	switch f.Command {
	case frame.CONNECT, frame.STOMP:
		s.write(frame.New(frame.CONNECTED,
			stomp.HeaderVersion, "1.2",
			stomp.HeaderHeartBeat, "0,0",
			"user-name", s.userID,
		))

	case frame.SUBSCRIBE:
		s.subscribe(f.Header.Get(stomp.HeaderID), f.Header.Get(stomp.HeaderDestination))

	case frame.UNSUBSCRIBE:
		s.unsubscribe(f.Header.Get(stomp.HeaderID))

	case frame.SEND:
		b.handleSend(s, f)

	case frame.DISCONNECT:
		b.sendReceipt(s, f)
		return false

	default:
		s.write(frame.New(frame.ERROR, stomp.HeaderMessage, "unsupported command "+f.Command))
		return false
	}

	b.sendReceipt(s, f)
	return true
}

func (b *Broker) sendReceipt(s *session, f *frame.Frame) {
	if receipt, ok := f.Header.Contains(stomp.HeaderReceipt); ok {
		s.write(frame.New(frame.RECEIPT, stomp.HeaderReceiptID, receipt))
	}
}

func (b *Broker) handleSend(s *session, f *frame.Frame) {
	destination := f.Header.Get(stomp.HeaderDestination)
	body := string(f.Body)

	b.mu.Lock()
	b.received = append(b.received, Received{
		SessionID:   s.id,
		UserID:      s.userID,
		Destination: destination,
		Headers:     stomp.Headers(f),
		Body:        body,
	})
	b.mu.Unlock()

	if destination == envelope.PresenceDestination {
		b.handlePresence(s, body)
		return
	}

	roomID, action, ok := envelope.RoomIDFromApp(destination)
	if !ok {
		b.logger.Debug("send to unrouted destination", "destination", destination)
		return
	}

	switch action {
	case "send":
		var in domain.Action
		if err := json.Unmarshal(f.Body, &in); err != nil || in.Type == "" {
			b.pushError(s, "invalid message payload")
			return
		}
		msg := domain.ChatMessage{
			ID:        b.messageSeq.Add(1),
			SenderID:  parseID(s.userID),
			Type:      in.Type,
			Content:   in.Content,
			Thumbnail: in.Thumbnail,
			Duration:  in.Duration,
			SentAt:    now(),
			Status:    "SENT",
		}
		b.publishJSON(envelope.RoomTopic(roomID), msg)
	case "read":
		b.publishJSON(envelope.RoomTopic(roomID), map[string]any{
			"type":              domain.InboundTypeReadStatus,
			"userId":            parseID(s.userID),
			"lastReadMessageId": parseID(strings.TrimSpace(body)),
			"timestamp":         now(),
		})
	}
}

func (b *Broker) handlePresence(s *session, status string) {
	if status == string(domain.PresenceHeartbeat) {
		return
	}

	b.mu.Lock()
	b.presence[s.userID] = status
	b.mu.Unlock()

	payload := map[string]any{
		"type":      domain.InboundTypeUserStatus,
		"userId":    parseID(s.userID),
		"isOnline":  status == string(domain.PresenceOnline),
		"timestamp": now(),
	}
	for _, destination := range s.roomTopics() {
		b.publishJSON(destination, payload)
	}
}

func (b *Broker) pushError(s *session, message string) {
	data, _ := json.Marshal(map[string]any{
		"type":      domain.InboundTypeError,
		"message":   message,
		"timestamp": now(),
	})
	s.deliver(envelope.UserQueue, string(data), b.nextMessageID())
}

func (b *Broker) publishJSON(destination string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		b.logger.Error("failed to marshal broadcast", "error", err)
		return
	}
	b.Publish(destination, string(data))
}

func tokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if auth, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return auth
	}
	return ""
}

func parseID(s string) int64 {
	id, _ := strconv.ParseInt(s, 10, 64)
	return id
}

func now() string {
	return time.Now().Format(domain.TimestampLayout)
}
