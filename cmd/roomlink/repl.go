package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/HMasataka/roomlink/pkg/domain"
	"github.com/mattn/go-shellwords"
)

const helpText = `commands:
  <text>                     send text to the current room
  /image <url> [thumbnail]   send an image
  /voice <url> <seconds>     send a voice message
  /read [message_id]         mark the current room as read
  /join <room_id>            subscribe to a room and make it current
  /leave [room_id]           unsubscribe from a room
  /status <online|offline>   update presence
  /rooms                     list subscriptions
  /help                      show this help
  /quit                      leave the chat`

var errQuit = errors.New("quit")

// chatClient is the part of the session the REPL drives
type chatClient interface {
	SendText(roomID, content string) error
	SendImage(roomID, imageURL, thumbnailURL string) error
	SendVoice(roomID, voiceURL string, duration int) error
	MarkRead(roomID, lastMessageID string) error
	SubscribeToRoom(roomID string) error
	UnsubscribeFromRoom(roomID string) error
	UpdatePresence(status domain.Presence)
	Subscriptions() []string
}

type input struct {
	name string
	args []string
	text string
}

// parseInput splits a REPL line. Lines without a leading slash are text.
func parseInput(line string) (input, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return input{}, nil
	}

	if !strings.HasPrefix(line, "/") {
		return input{name: "text", text: line}, nil
	}

	words, err := shellwords.Parse(line[1:])
	if err != nil {
		return input{}, fmt.Errorf("parse command: %w", err)
	}
	if len(words) == 0 {
		return input{}, fmt.Errorf("empty command")
	}

	return input{name: words[0], args: words[1:]}, nil
}

type repl struct {
	client chatClient
	out    io.Writer

	mu   sync.Mutex
	room string
}

func (r *repl) currentRoom() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.room
}

// execute runs one parsed line. It returns errQuit for /quit.
func (r *repl) execute(in input) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch in.name {
	case "":
		return nil
	case "text":
		if err := r.requireRoom(); err != nil {
			return err
		}
		return r.client.SendText(r.room, in.text)
	case "image":
		if err := r.requireRoom(); err != nil {
			return err
		}
		if len(in.args) < 1 || len(in.args) > 2 {
			return fmt.Errorf("usage: /image <url> [thumbnail]")
		}
		thumbnail := ""
		if len(in.args) == 2 {
			thumbnail = in.args[1]
		}
		return r.client.SendImage(r.room, in.args[0], thumbnail)
	case "voice":
		if err := r.requireRoom(); err != nil {
			return err
		}
		if len(in.args) != 2 {
			return fmt.Errorf("usage: /voice <url> <seconds>")
		}
		seconds, err := strconv.Atoi(in.args[1])
		if err != nil || seconds < 0 {
			return fmt.Errorf("invalid duration %q", in.args[1])
		}
		return r.client.SendVoice(r.room, in.args[0], seconds)
	case "read":
		if err := r.requireRoom(); err != nil {
			return err
		}
		lastID := ""
		if len(in.args) > 0 {
			lastID = in.args[0]
		}
		return r.client.MarkRead(r.room, lastID)
	case "join":
		if len(in.args) != 1 {
			return fmt.Errorf("usage: /join <room_id>")
		}
		if err := r.client.SubscribeToRoom(in.args[0]); err != nil {
			return err
		}
		r.room = in.args[0]
		fmt.Fprintf(r.out, "joined %s\n", r.room)
		return nil
	case "leave":
		room := r.room
		if len(in.args) > 0 {
			room = in.args[0]
		}
		if room == "" {
			return fmt.Errorf("usage: /leave <room_id>")
		}
		if err := r.client.UnsubscribeFromRoom(room); err != nil {
			return err
		}
		if room == r.room {
			r.room = ""
		}
		fmt.Fprintf(r.out, "left %s\n", room)
		return nil
	case "status":
		if len(in.args) != 1 {
			return fmt.Errorf("usage: /status <online|offline>")
		}
		switch status := domain.Presence(in.args[0]); status {
		case domain.PresenceOnline, domain.PresenceOffline:
			r.client.UpdatePresence(status)
			return nil
		default:
			return fmt.Errorf("unknown status %q", in.args[0])
		}
	case "rooms":
		for _, destination := range r.client.Subscriptions() {
			fmt.Fprintln(r.out, destination)
		}
		return nil
	case "help":
		fmt.Fprintln(r.out, helpText)
		return nil
	case "quit", "exit":
		return errQuit
	default:
		return fmt.Errorf("unknown command /%s, try /help", in.name)
	}
}

func (r *repl) requireRoom() error {
	if r.room == "" {
		return fmt.Errorf("no current room, /join one first")
	}
	return nil
}
