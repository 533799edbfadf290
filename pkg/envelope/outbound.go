package envelope

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/HMasataka/roomlink/pkg/domain"
	"github.com/HMasataka/roomlink/pkg/errors"
)

// Content types attached to outbound frames
const (
	ContentTypeJSON = "application/json;charset=UTF-8"
	ContentTypeText = "text/plain;charset=UTF-8"
)

// TextAction builds a text chat action
func TextAction(content string) domain.Action {
	return domain.Action{Type: domain.MessageTypeText, Content: content}
}

// ImageAction builds an image chat action
func ImageAction(imageURL, thumbnailURL string) domain.Action {
	return domain.Action{Type: domain.MessageTypeImage, Content: imageURL, Thumbnail: thumbnailURL}
}

// VoiceAction builds a voice chat action with its duration in seconds
func VoiceAction(voiceURL string, duration int) domain.Action {
	return domain.Action{Type: domain.MessageTypeVoice, Content: voiceURL, Duration: duration}
}

// EncodeAction serializes an action into a frame body
func EncodeAction(action domain.Action) (string, error) {
	if action.Type == "" {
		return "", errors.New(errors.ErrorTypeValidation, "INVALID_ACTION", "action type is required")
	}

	data, err := json.Marshal(action)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeInternal, "MARSHAL_ERROR", "failed to marshal action")
	}

	return string(data), nil
}

// ReadMarker returns the read-marker body, falling back to now in epoch
// milliseconds when no message id is given.
func ReadMarker(lastMessageID string, now time.Time) string {
	if lastMessageID != "" {
		return lastMessageID
	}
	return strconv.FormatInt(now.UnixMilli(), 10)
}

// JSONHeaders are the headers sent with serialized actions
func JSONHeaders() domain.Headers {
	return domain.Headers{"content-type": ContentTypeJSON}
}

// TextHeaders are the headers sent with plain-text bodies
func TextHeaders() domain.Headers {
	return domain.Headers{"content-type": ContentTypeText}
}
