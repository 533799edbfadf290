package events

import (
	"fmt"
	"sync"

	"github.com/HMasataka/roomlink/internal/logging"
	"github.com/rs/xid"
)

// Handler represents an event handler function
type Handler func(event *Event)

// HandlerID identifies one registration of a handler
type HandlerID string

// registration represents a single handler registration
type registration struct {
	id      HandlerID
	handler Handler
}

// Dispatcher delivers events to handlers registered per kind. Handlers run
// synchronously on the emitting goroutine in registration order.
type Dispatcher struct {
	handlers map[Kind][]*registration
	mu       sync.RWMutex
	logger   *logging.Logger
}

// NewDispatcher creates a dispatcher with every known kind registered
func NewDispatcher(logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Discard()
	}

	d := &Dispatcher{
		logger: logger,
	}
	d.reset()

	return d
}

// On appends handler to kind's list. Registering the same function twice
// yields two registrations and two invocations per emission.
func (d *Dispatcher) On(kind Kind, handler Handler) HandlerID {
	d.mu.Lock()
	defer d.mu.Unlock()

	reg := &registration{
		id:      HandlerID(xid.New().String()),
		handler: handler,
	}

	d.handlers[kind] = append(d.handlers[kind], reg)
	return reg.id
}

// Off removes the registration id from kind's list
func (d *Dispatcher) Off(kind Kind, id HandlerID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	regs := d.handlers[kind]
	for i, reg := range regs {
		if reg.id == id {
			d.handlers[kind] = append(regs[:i:i], regs[i+1:]...)
			return true
		}
	}

	return false
}

// Emit builds an event and publishes it
func (d *Dispatcher) Emit(kind Kind, source string, data any) *Event {
	event := NewEvent(kind, source, data)
	d.Publish(event)
	return event
}

// Publish invokes every handler registered for the event's kind. A panicking
// handler is logged and the remaining handlers still run.
func (d *Dispatcher) Publish(event *Event) {
	d.mu.RLock()
	regs := make([]*registration, len(d.handlers[event.Kind]))
	copy(regs, d.handlers[event.Kind])
	d.mu.RUnlock()

	for _, reg := range regs {
		d.invoke(reg, event)
	}
}

// Count returns the number of handlers registered for kind
func (d *Dispatcher) Count(kind Kind) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[kind])
}

// Clear drops every registration
func (d *Dispatcher) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reset()
}

func (d *Dispatcher) reset() {
	d.handlers = make(map[Kind][]*registration, len(Kinds()))
	for _, kind := range Kinds() {
		d.handlers[kind] = []*registration{}
	}
}

func (d *Dispatcher) invoke(reg *registration, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler failed",
				"kind", event.Kind,
				"handler_id", reg.id,
				"panic", fmt.Sprint(r),
			)
		}
	}()

	reg.handler(event)
}
