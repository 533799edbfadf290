package domain

import (
	"encoding/json"
	"time"
)

// MessageType is the kind of chat content carried by an action or message
type MessageType string

// Message types understood by the chat server
const (
	MessageTypeText   MessageType = "TEXT"
	MessageTypeImage  MessageType = "IMAGE"
	MessageTypeVoice  MessageType = "VOICE"
	MessageTypeSystem MessageType = "SYSTEM"
)

// Inbound type discriminators used by server pushes
const (
	InboundTypeUserStatus   = "user_status"
	InboundTypeReadStatus   = "read_status"
	InboundTypeError        = "error"
	InboundTypeNotification = "notification"
)

// TimestampLayout is the server's wire format for timestamps
const TimestampLayout = "2006-01-02 15:04:05"

// Action is an outbound chat message sent to a room
type Action struct {
	Type      MessageType `json:"type"`
	Content   string      `json:"content"`
	Thumbnail string      `json:"thumbnail,omitempty"`
	Duration  int         `json:"duration,omitempty"`
}

// Presence is the online status reported for the current user
type Presence string

// Presence values sent to the status destination
const (
	PresenceOnline    Presence = "online"
	PresenceOffline   Presence = "offline"
	PresenceHeartbeat Presence = "heartbeat"
)

// ChatMessage is a message broadcast to a room or pushed to the user
type ChatMessage struct {
	ID         int64       `json:"id"`
	SenderID   int64       `json:"senderId"`
	SenderName string      `json:"senderName,omitempty"`
	Type       MessageType `json:"type"`
	Content    string      `json:"content"`
	SentAt     string      `json:"sentAt,omitempty"`
	Status     string      `json:"status,omitempty"`
	Thumbnail  string      `json:"thumbnail,omitempty"`
	Duration   int         `json:"duration,omitempty"`
	IsRecalled bool        `json:"isRecalled,omitempty"`
}

// RoomMessage is the payload of a message event. RoomID is empty for
// messages that arrived on the private queue.
type RoomMessage struct {
	RoomID  string          `json:"chatRoomId,omitempty"`
	Message ChatMessage     `json:"message"`
	Raw     json.RawMessage `json:"-"`
}

// UserStatus reports another user's presence within a room
type UserStatus struct {
	RoomID    string `json:"-"`
	UserID    int64  `json:"userId"`
	IsOnline  bool   `json:"isOnline"`
	Timestamp string `json:"timestamp,omitempty"`
}

// ReadStatus reports the last message a user has read in a room
type ReadStatus struct {
	RoomID            string `json:"-"`
	UserID            int64  `json:"userId"`
	LastReadMessageID int64  `json:"lastReadMessageId"`
	Timestamp         string `json:"timestamp,omitempty"`
}

// Notification is a system notification pushed to the user
type Notification struct {
	Title            string `json:"title"`
	Content          string `json:"content"`
	NotificationType string `json:"notificationType,omitempty"`
	Timestamp        string `json:"timestamp,omitempty"`
}

// ConnectedInfo is the payload of a connected event
type ConnectedInfo struct {
	ConnectionID string
	Address      string
}

// DisconnectedInfo is the payload of a disconnected event. Reason is nil
// after an explicit disconnect.
type DisconnectedInfo struct {
	ConnectionID string
	Reason       error
}

// ParseTimestamp parses a server timestamp
func ParseTimestamp(value string) (time.Time, error) {
	return time.ParseInLocation(TimestampLayout, value, time.Local)
}
