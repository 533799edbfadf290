package testbroker

import (
	"sort"
	"sync"
	"time"

	"github.com/HMasataka/roomlink/pkg/envelope"
	"github.com/HMasataka/roomlink/pkg/transport/stomp"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
)

// session is one client connection held by the broker
type session struct {
	id     string
	userID string
	conn   *websocket.Conn

	writeMu sync.Mutex

	mu   sync.Mutex
	subs map[string]string
}

func (s *session) subscribe(id, destination string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[id] = destination
}

func (s *session) unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}

func (s *session) subscriberCount(destination string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, d := range s.subs {
		if d == destination {
			count++
		}
	}
	return count
}

func (s *session) roomTopics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{})
	for _, d := range s.subs {
		if _, ok := envelope.RoomIDFromTopic(d); ok {
			seen[d] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// deliver writes a MESSAGE frame for every subscription on destination
func (s *session) deliver(destination, body, messageID string) bool {
	s.mu.Lock()
	var ids []string
	for id, d := range s.subs {
		if d == destination {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	sort.Strings(ids)
	for _, id := range ids {
		f := frame.New(frame.MESSAGE,
			stomp.HeaderDestination, destination,
			stomp.HeaderSubscription, id,
			stomp.HeaderMessageID, messageID,
			stomp.HeaderContentType, "application/json",
		)
		f.Body = []byte(body)
		s.write(f)
	}

	return len(ids) > 0
}

func (s *session) write(f *frame.Frame) {
	data, err := stomp.Encode(f)
	if err != nil {
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_ = s.conn.WriteMessage(websocket.TextMessage, data)
}
