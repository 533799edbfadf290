package envelope

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/HMasataka/roomlink/pkg/domain"
	"github.com/HMasataka/roomlink/pkg/errors"
	"github.com/HMasataka/roomlink/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDestinations(t *testing.T) {
	assert.Equal(t, "/topic/chat/42", RoomTopic("42"))
	assert.Equal(t, "/app/chat/42/send", RoomSend("42"))
	assert.Equal(t, "/app/chat/42/read", RoomRead("42"))

	roomID, ok := RoomIDFromTopic("/topic/chat/42")
	require.True(t, ok)
	assert.Equal(t, "42", roomID)

	_, ok = RoomIDFromTopic(UserQueue)
	assert.False(t, ok)

	roomID, action, ok := RoomIDFromApp("/app/chat/7/read")
	require.True(t, ok)
	assert.Equal(t, "7", roomID)
	assert.Equal(t, "read", action)

	_, _, ok = RoomIDFromApp(PresenceDestination)
	assert.False(t, ok)
}

func TestEncodeTextAction(t *testing.T) {
	body, err := EncodeAction(TextAction("hi"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"TEXT","content":"hi"}`, body)
}

func TestEncodeImageAndVoiceActions(t *testing.T) {
	body, err := EncodeAction(ImageAction("https://cdn/x.jpg", "https://cdn/x_thumb.jpg"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"IMAGE","content":"https://cdn/x.jpg","thumbnail":"https://cdn/x_thumb.jpg"}`, body)

	body, err = EncodeAction(VoiceAction("https://cdn/v.mp3", 12))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"VOICE","content":"https://cdn/v.mp3","duration":12}`, body)
}

func TestEncodeActionRequiresType(t *testing.T) {
	_, err := EncodeAction(domain.Action{Content: "x"})
	require.Error(t, err)
	typ, ok := errors.TypeOf(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrorTypeValidation, typ)
}

func TestReadMarker(t *testing.T) {
	assert.Equal(t, "991", ReadMarker("991", time.Now()))

	now := time.UnixMilli(1700000000123)
	assert.Equal(t, "1700000000123", ReadMarker("", now))
}

func TestDecodeRoomTextMessageIsTaggedWithRoom(t *testing.T) {
	in, err := DecodeRoom("42", []byte(`{"type":"TEXT","content":"hi"}`))
	require.NoError(t, err)

	assert.Equal(t, events.KindMessage, in.Kind)
	assert.Equal(t, "42", in.RoomID)

	msg, ok := in.Data.(domain.RoomMessage)
	require.True(t, ok)
	assert.Equal(t, "42", msg.RoomID)
	assert.Equal(t, domain.MessageTypeText, msg.Message.Type)
	assert.Equal(t, "hi", msg.Message.Content)
	assert.JSONEq(t, `{"type":"TEXT","content":"hi"}`, string(msg.Raw))
}

func TestDecodeRoomUserStatus(t *testing.T) {
	in, err := DecodeRoom("42", []byte(`{"type":"user_status","userId":5,"isOnline":true,"timestamp":"2025-01-02 03:04:05"}`))
	require.NoError(t, err)

	assert.Equal(t, events.KindUserStatus, in.Kind)
	status, ok := in.Data.(domain.UserStatus)
	require.True(t, ok)
	assert.Equal(t, int64(5), status.UserID)
	assert.True(t, status.IsOnline)
	assert.Equal(t, "42", status.RoomID)

	ts, err := domain.ParseTimestamp(status.Timestamp)
	require.NoError(t, err)
	assert.Equal(t, 2025, ts.Year())
}

func TestDecodeRoomReadStatus(t *testing.T) {
	in, err := DecodeRoom("42", []byte(`{"type":"read_status","userId":5,"lastReadMessageId":77}`))
	require.NoError(t, err)

	assert.Equal(t, events.KindReadStatus, in.Kind)
	status, ok := in.Data.(domain.ReadStatus)
	require.True(t, ok)
	assert.Equal(t, int64(77), status.LastReadMessageID)
}

func TestDecodeUserQueue(t *testing.T) {
	in, err := DecodeUserQueue([]byte(`{"type":"error","message":"no access"}`))
	require.NoError(t, err)
	assert.Equal(t, events.KindError, in.Kind)
	serverErr, ok := in.Data.(error)
	require.True(t, ok)
	assert.Contains(t, serverErr.Error(), "no access")
	var e *errors.Error
	require.True(t, stderrors.As(serverErr, &e))
	assert.Equal(t, errors.ErrorTypeServer, e.Type)

	in, err = DecodeUserQueue([]byte(`{"type":"notification","title":"Sold","content":"item sold","notificationType":"TRANSACTION"}`))
	require.NoError(t, err)
	assert.Equal(t, events.KindNotification, in.Kind)
	notification := in.Data.(domain.Notification)
	assert.Equal(t, "Sold", notification.Title)
	assert.Equal(t, "TRANSACTION", notification.NotificationType)

	in, err = DecodeUserQueue([]byte(`{"type":"TEXT","content":"direct"}`))
	require.NoError(t, err)
	assert.Equal(t, events.KindMessage, in.Kind)
	assert.Empty(t, in.RoomID)
	assert.Empty(t, in.Data.(domain.RoomMessage).RoomID)
}

func TestDecodeMalformedPayload(t *testing.T) {
	_, err := DecodeRoom("42", []byte(`{not json`))
	require.Error(t, err)

	typ, ok := errors.TypeOf(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrorTypePayload, typ)

	_, err = DecodeUserQueue([]byte(`[1,2,3]`))
	require.Error(t, err)
}
