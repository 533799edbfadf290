package main

import (
	"fmt"

	"github.com/HMasataka/roomlink/pkg/domain"
	"github.com/HMasataka/roomlink/pkg/events"
	"github.com/fatih/color"
)

// render formats an event as one terminal line
func render(event *events.Event) string {
	ts := color.HiBlackString(event.Timestamp.Format("15:04:05"))

	switch data := event.Data.(type) {
	case domain.RoomMessage:
		room := data.RoomID
		if room == "" {
			room = "direct"
		}
		if data.Message.Type == domain.MessageTypeSystem {
			return fmt.Sprintf("%s %s %s", ts, color.CyanString("[%s]", room), color.YellowString("* %s", data.Message.Content))
		}
		return fmt.Sprintf("%s %s %s: %s", ts, color.CyanString("[%s]", room), color.GreenString("user %d", data.Message.SenderID), messageText(data.Message))
	case domain.UserStatus:
		state := color.RedString("offline")
		if data.IsOnline {
			state = color.GreenString("online")
		}
		return fmt.Sprintf("%s %s user %d is %s", ts, color.CyanString("[%s]", data.RoomID), data.UserID, state)
	case domain.ReadStatus:
		return fmt.Sprintf("%s %s user %d read up to %d", ts, color.CyanString("[%s]", data.RoomID), data.UserID, data.LastReadMessageID)
	case domain.Notification:
		return fmt.Sprintf("%s %s %s: %s", ts, color.MagentaString("notification"), data.Title, data.Content)
	case domain.ConnectedInfo:
		return fmt.Sprintf("%s %s %s", ts, color.GreenString("connected"), data.Address)
	case domain.DisconnectedInfo:
		if data.Reason != nil {
			return fmt.Sprintf("%s %s %v", ts, color.YellowString("disconnected"), data.Reason)
		}
		return fmt.Sprintf("%s %s", ts, color.YellowString("disconnected"))
	case error:
		return fmt.Sprintf("%s %s %v", ts, color.RedString("error"), data)
	default:
		return fmt.Sprintf("%s %s %v", ts, event.Kind, data)
	}
}

func messageText(msg domain.ChatMessage) string {
	if msg.IsRecalled {
		return color.HiBlackString("(recalled)")
	}

	switch msg.Type {
	case domain.MessageTypeImage:
		return fmt.Sprintf("[image] %s", msg.Content)
	case domain.MessageTypeVoice:
		return fmt.Sprintf("[voice %ds] %s", msg.Duration, msg.Content)
	default:
		return msg.Content
	}
}
