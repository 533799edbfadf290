package envelope

import (
	"encoding/json"

	"github.com/HMasataka/roomlink/pkg/domain"
	"github.com/HMasataka/roomlink/pkg/errors"
	"github.com/HMasataka/roomlink/pkg/events"
)

// Inbound is a classified inbound payload ready for dispatch
type Inbound struct {
	Kind   events.Kind
	RoomID string
	Data   any
}

type discriminator struct {
	Type string `json:"type"`
}

type serverError struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp,omitempty"`
}

// DecodeRoom classifies a payload received on a room topic
func DecodeRoom(roomID string, body []byte) (Inbound, error) {
	kind, err := peekType(body)
	if err != nil {
		return Inbound{}, err
	}

	switch kind {
	case domain.InboundTypeUserStatus:
		var status domain.UserStatus
		if err := decode(body, &status); err != nil {
			return Inbound{}, err
		}
		status.RoomID = roomID
		return Inbound{Kind: events.KindUserStatus, RoomID: roomID, Data: status}, nil
	case domain.InboundTypeReadStatus:
		var status domain.ReadStatus
		if err := decode(body, &status); err != nil {
			return Inbound{}, err
		}
		status.RoomID = roomID
		return Inbound{Kind: events.KindReadStatus, RoomID: roomID, Data: status}, nil
	default:
		msg, err := decodeMessage(roomID, body)
		if err != nil {
			return Inbound{}, err
		}
		return Inbound{Kind: events.KindMessage, RoomID: roomID, Data: msg}, nil
	}
}

// DecodeUserQueue classifies a payload received on the private queue
func DecodeUserQueue(body []byte) (Inbound, error) {
	kind, err := peekType(body)
	if err != nil {
		return Inbound{}, err
	}

	switch kind {
	case domain.InboundTypeError:
		var pushed serverError
		if err := decode(body, &pushed); err != nil {
			return Inbound{}, err
		}
		serverErr := errors.New(errors.ErrorTypeServer, "SERVER_ERROR", pushed.Message)
		return Inbound{Kind: events.KindError, Data: serverErr}, nil
	case domain.InboundTypeNotification:
		var notification domain.Notification
		if err := decode(body, &notification); err != nil {
			return Inbound{}, err
		}
		return Inbound{Kind: events.KindNotification, Data: notification}, nil
	default:
		msg, err := decodeMessage("", body)
		if err != nil {
			return Inbound{}, err
		}
		return Inbound{Kind: events.KindMessage, Data: msg}, nil
	}
}

func peekType(body []byte) (string, error) {
	var d discriminator
	if err := decode(body, &d); err != nil {
		return "", err
	}
	return d.Type, nil
}

func decodeMessage(roomID string, body []byte) (domain.RoomMessage, error) {
	var msg domain.ChatMessage
	if err := decode(body, &msg); err != nil {
		return domain.RoomMessage{}, err
	}

	raw := make(json.RawMessage, len(body))
	copy(raw, body)

	return domain.RoomMessage{RoomID: roomID, Message: msg, Raw: raw}, nil
}

func decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return errors.Wrap(err, errors.ErrorTypePayload, "INVALID_PAYLOAD", "failed to parse inbound message").
			WithDetails(truncate(string(body), 128))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
