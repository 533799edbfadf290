package events

import (
	"time"

	"github.com/rs/xid"
)

// Kind represents the kind of event
type Kind string

// Event kinds
const (
	KindConnected    Kind = "connected"
	KindDisconnected Kind = "disconnected"
	KindError        Kind = "error"
	KindMessage      Kind = "message"
	KindUserStatus   Kind = "userStatus"
	KindReadStatus   Kind = "readStatus"
	KindNotification Kind = "notification"
)

// Kinds returns every kind known to the session, in declaration order
func Kinds() []Kind {
	return []Kind{
		KindConnected,
		KindDisconnected,
		KindError,
		KindMessage,
		KindUserStatus,
		KindReadStatus,
		KindNotification,
	}
}

// Event represents an application-level session event
type Event struct {
	ID        string            `json:"id"`
	Kind      Kind              `json:"kind"`
	Timestamp time.Time         `json:"timestamp"`
	Source    string            `json:"source"`
	Data      any               `json:"data"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewEvent creates a new event
func NewEvent(kind Kind, source string, data any) *Event {
	return &Event{
		ID:        xid.New().String(),
		Kind:      kind,
		Timestamp: time.Now(),
		Source:    source,
		Data:      data,
		Metadata:  make(map[string]string),
	}
}

// WithMetadata adds metadata to the event
func (e *Event) WithMetadata(key, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// Err returns Data as an error, or nil when Data is not one
func (e *Event) Err() error {
	err, _ := e.Data.(error)
	return err
}
