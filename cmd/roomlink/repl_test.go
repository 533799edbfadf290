package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/HMasataka/roomlink/pkg/domain"
	"github.com/HMasataka/roomlink/pkg/events"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	method string
	args   []any
}

type fakeClient struct {
	calls []call
	subs  []string
}

func (f *fakeClient) record(method string, args ...any) {
	f.calls = append(f.calls, call{method: method, args: args})
}

func (f *fakeClient) SendText(roomID, content string) error {
	f.record("SendText", roomID, content)
	return nil
}

func (f *fakeClient) SendImage(roomID, imageURL, thumbnailURL string) error {
	f.record("SendImage", roomID, imageURL, thumbnailURL)
	return nil
}

func (f *fakeClient) SendVoice(roomID, voiceURL string, duration int) error {
	f.record("SendVoice", roomID, voiceURL, duration)
	return nil
}

func (f *fakeClient) MarkRead(roomID, lastMessageID string) error {
	f.record("MarkRead", roomID, lastMessageID)
	return nil
}

func (f *fakeClient) SubscribeToRoom(roomID string) error {
	f.record("SubscribeToRoom", roomID)
	return nil
}

func (f *fakeClient) UnsubscribeFromRoom(roomID string) error {
	f.record("UnsubscribeFromRoom", roomID)
	return nil
}

func (f *fakeClient) UpdatePresence(status domain.Presence) {
	f.record("UpdatePresence", status)
}

func (f *fakeClient) Subscriptions() []string {
	return f.subs
}

func run(t *testing.T, r *repl, line string) error {
	t.Helper()
	in, err := parseInput(line)
	require.NoError(t, err)
	return r.execute(in)
}

func TestParseInput(t *testing.T) {
	in, err := parseInput("  hello there  ")
	require.NoError(t, err)
	assert.Equal(t, input{name: "text", text: "hello there"}, in)

	in, err = parseInput(`/image "https://cdn/a b.png" https://cdn/t.png`)
	require.NoError(t, err)
	assert.Equal(t, "image", in.name)
	assert.Equal(t, []string{"https://cdn/a b.png", "https://cdn/t.png"}, in.args)

	in, err = parseInput("")
	require.NoError(t, err)
	assert.Empty(t, in.name)

	_, err = parseInput(`/join "unterminated`)
	assert.Error(t, err)

	_, err = parseInput("/")
	assert.Error(t, err)
}

func TestREPLRequiresRoom(t *testing.T) {
	client := &fakeClient{}
	r := &repl{client: client, out: &bytes.Buffer{}}

	assert.Error(t, run(t, r, "hi"))
	assert.Error(t, run(t, r, "/read"))
	assert.Empty(t, client.calls)
}

func TestREPLCommands(t *testing.T) {
	client := &fakeClient{subs: []string{"/topic/chat/7"}}
	out := &bytes.Buffer{}
	r := &repl{client: client, out: out}

	require.NoError(t, run(t, r, "/join 7"))
	require.NoError(t, run(t, r, "hello"))
	require.NoError(t, run(t, r, "/image https://cdn/x.png"))
	require.NoError(t, run(t, r, "/voice https://cdn/v.ogg 4"))
	require.NoError(t, run(t, r, "/read 12"))
	require.NoError(t, run(t, r, "/status offline"))
	require.NoError(t, run(t, r, "/rooms"))
	require.NoError(t, run(t, r, "/leave"))

	assert.Equal(t, []call{
		{"SubscribeToRoom", []any{"7"}},
		{"SendText", []any{"7", "hello"}},
		{"SendImage", []any{"7", "https://cdn/x.png", ""}},
		{"SendVoice", []any{"7", "https://cdn/v.ogg", 4}},
		{"MarkRead", []any{"7", "12"}},
		{"UpdatePresence", []any{domain.PresenceOffline}},
		{"UnsubscribeFromRoom", []any{"7"}},
	}, client.calls)

	assert.Contains(t, out.String(), "joined 7")
	assert.Contains(t, out.String(), "/topic/chat/7")
	assert.Empty(t, r.currentRoom())
}

func TestREPLRejectsBadArguments(t *testing.T) {
	client := &fakeClient{}
	r := &repl{client: client, out: &bytes.Buffer{}, room: "7"}

	assert.Error(t, run(t, r, "/voice https://cdn/v.ogg soon"))
	assert.Error(t, run(t, r, "/status away"))
	assert.Error(t, run(t, r, "/join"))
	assert.Error(t, run(t, r, "/dance"))
	assert.ErrorIs(t, run(t, r, "/quit"), errQuit)
	assert.Empty(t, client.calls)
}

func TestRender(t *testing.T) {
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = false })

	event := events.NewEvent(events.KindMessage, "/topic/chat/7", domain.RoomMessage{
		RoomID:  "7",
		Message: domain.ChatMessage{SenderID: 3, Type: domain.MessageTypeVoice, Content: "https://cdn/v.ogg", Duration: 4},
	})
	event.Timestamp = time.Date(2024, 1, 2, 3, 4, 5, 0, time.Local)

	assert.Equal(t, "03:04:05 [7] user 3: [voice 4s] https://cdn/v.ogg", render(event))

	status := events.NewEvent(events.KindUserStatus, "/topic/chat/7", domain.UserStatus{RoomID: "7", UserID: 3, IsOnline: true})
	assert.Contains(t, render(status), "user 3 is online")

	direct := events.NewEvent(events.KindMessage, "/user/queue/messages", domain.RoomMessage{
		Message: domain.ChatMessage{SenderID: 1, Type: domain.MessageTypeText, Content: "psst"},
	})
	assert.Contains(t, render(direct), "[direct] user 1: psst")

	system := events.NewEvent(events.KindMessage, "/topic/chat/7", domain.RoomMessage{
		RoomID:  "7",
		Message: domain.ChatMessage{Type: domain.MessageTypeSystem, Content: "user 4 joined"},
	})
	system.Timestamp = event.Timestamp
	assert.Contains(t, render(system), "03:04:05 [7] * user 4 joined")
}
