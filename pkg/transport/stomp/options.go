package stomp

import (
	"time"

	"github.com/HMasataka/roomlink/internal/logging"
	"github.com/gorilla/websocket"
)

// Options represents STOMP transport options
type Options struct {
	Logger          *logging.Logger
	Dialer          *websocket.Dialer
	Host            string
	ConnectTimeout  time.Duration
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	SendBufferSize  int
	ReadBufferSize  int
	WriteBufferSize int
}

// DefaultOptions returns default transport options
func DefaultOptions() Options {
	return Options{
		ConnectTimeout:  10 * time.Second,
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  512 * 1024, // 512KB
		SendBufferSize:  256,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}

// Option is a function that configures Options
type Option func(*Options)

// WithLogger sets the logger for the transport
func WithLogger(logger *logging.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithDialer sets the websocket dialer
func WithDialer(dialer *websocket.Dialer) Option {
	return func(o *Options) {
		o.Dialer = dialer
	}
}

// WithHost sets the STOMP host header sent on CONNECT
func WithHost(host string) Option {
	return func(o *Options) {
		o.Host = host
	}
}

// WithConnectTimeout bounds the websocket dial and STOMP handshake
func WithConnectTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.ConnectTimeout = d
	}
}

// WithPingInterval sets the websocket ping interval
func WithPingInterval(d time.Duration) Option {
	return func(o *Options) {
		o.PingInterval = d
	}
}
