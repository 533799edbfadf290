package session

import (
	"sort"

	"github.com/HMasataka/roomlink/pkg/domain"
)

// subscription is one active destination binding
type subscription struct {
	destination string
	unsubscribe domain.Unsubscribe
	handler     domain.DeliveryHandler
}

// registry holds at most one subscription per destination. It is guarded
// by the owning Session's mutex.
type registry struct {
	entries map[string]*subscription
}

func newRegistry() *registry {
	return &registry{
		entries: make(map[string]*subscription),
	}
}

func (r *registry) has(destination string) bool {
	_, ok := r.entries[destination]
	return ok
}

// add binds destination through conn unless it is already bound
func (r *registry) add(conn domain.Conn, destination string, handler domain.DeliveryHandler) (bool, error) {
	if r.has(destination) {
		return false, nil
	}

	unsubscribe, err := conn.Subscribe(destination, handler)
	if err != nil {
		return false, err
	}

	r.entries[destination] = &subscription{
		destination: destination,
		unsubscribe: unsubscribe,
		handler:     handler,
	}
	return true, nil
}

// remove releases destination if bound
func (r *registry) remove(destination string) (bool, error) {
	sub, ok := r.entries[destination]
	if !ok {
		return false, nil
	}

	delete(r.entries, destination)
	if sub.unsubscribe == nil {
		return true, nil
	}
	return true, sub.unsubscribe()
}

// clear drops every entry without unsubscribing; the closed connection
// has already invalidated them.
func (r *registry) clear() int {
	n := len(r.entries)
	r.entries = make(map[string]*subscription)
	return n
}

func (r *registry) destinations() []string {
	out := make([]string, 0, len(r.entries))
	for d := range r.entries {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
