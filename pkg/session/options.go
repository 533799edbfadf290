package session

import (
	"time"

	"github.com/HMasataka/roomlink/internal/logging"
)

// Timer is a pending scheduled action
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run once after d
type AfterFunc func(d time.Duration, f func()) Timer

// Options represents session options
type Options struct {
	Logger               *logging.Logger
	ServerURL            string
	Token                string
	AutoReconnect        bool
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int
	HeartbeatInterval    time.Duration
	ConnectTimeout       time.Duration
	CloseTimeout         time.Duration

	// AfterFunc drives the reconnect and heartbeat timers. Defaults to time.AfterFunc.
	AfterFunc AfterFunc
}

// DefaultOptions returns default session options
func DefaultOptions() Options {
	return Options{
		ServerURL:            "ws://localhost:8080/ws",
		AutoReconnect:        true,
		ReconnectInterval:    5 * time.Second,
		MaxReconnectAttempts: 10,
		HeartbeatInterval:    30 * time.Second,
		ConnectTimeout:       10 * time.Second,
		CloseTimeout:         5 * time.Second,
	}
}

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
