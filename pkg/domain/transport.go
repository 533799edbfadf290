package domain

import (
	"context"
)

// Headers carries frame headers alongside a transport payload
type Headers map[string]string

// Delivery is one inbound message received on a subscribed destination
type Delivery struct {
	Destination string
	Headers     Headers
	Body        []byte
}

// DeliveryHandler receives inbound messages for a subscription. The transport
// invokes handlers one at a time from a single reader.
type DeliveryHandler func(delivery Delivery)

// Unsubscribe releases a subscription obtained from Conn.Subscribe
type Unsubscribe func() error

// Conn is a live connection to the messaging backend
type Conn interface {
	// ID returns the unique identifier of the connection
	ID() string

	// Send sends body to destination
	Send(destination string, headers Headers, body string) error

	// Subscribe binds handler to destination
	Subscribe(destination string, handler DeliveryHandler) (Unsubscribe, error)

	// Close closes the connection and waits for the server to confirm
	Close(ctx context.Context) error

	// Done is closed once the connection is gone, for any reason
	Done() <-chan struct{}

	// Err returns the reason the connection ended, nil after a clean Close
	Err() error
}

// Transport opens connections to the messaging backend
type Transport interface {
	// Open connects to address authenticating with token
	Open(ctx context.Context, address, token string) (Conn, error)
}
