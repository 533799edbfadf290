package envelope

import (
	"strings"
)

// Fixed destinations shared with the chat server
const (
	UserQueue           = "/user/queue/messages"
	PresenceDestination = "/app/user/status"

	roomTopicPrefix = "/topic/chat/"
	roomAppPrefix   = "/app/chat/"
)

// RoomTopic is the destination rooms broadcast on
func RoomTopic(roomID string) string {
	return roomTopicPrefix + roomID
}

// RoomSend is the destination chat messages for a room are sent to
func RoomSend(roomID string) string {
	return roomAppPrefix + roomID + "/send"
}

// RoomRead is the destination read markers for a room are sent to
func RoomRead(roomID string) string {
	return roomAppPrefix + roomID + "/read"
}

// RoomIDFromTopic extracts the room id from a room topic destination
func RoomIDFromTopic(destination string) (string, bool) {
	roomID, ok := strings.CutPrefix(destination, roomTopicPrefix)
	if !ok || roomID == "" || strings.Contains(roomID, "/") {
		return "", false
	}
	return roomID, true
}

// RoomIDFromApp extracts the room id and trailing action ("send" or "read")
// from an application destination.
func RoomIDFromApp(destination string) (roomID, action string, ok bool) {
	rest, found := strings.CutPrefix(destination, roomAppPrefix)
	if !found {
		return "", "", false
	}
	roomID, action, found = strings.Cut(rest, "/")
	if !found || roomID == "" || (action != "send" && action != "read") {
		return "", "", false
	}
	return roomID, action, true
}
