package stomp

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/HMasataka/roomlink/internal/logging"
	"github.com/HMasataka/roomlink/pkg/domain"
	"github.com/HMasataka/roomlink/pkg/errors"
	"github.com/gorilla/websocket"
	"github.com/rs/xid"
)

// Transport implements domain.Transport over gorilla websocket
type Transport struct {
	options Options
	logger  *logging.Logger
	dialer  *websocket.Dialer
}

// NewTransport creates a new STOMP transport
func NewTransport(opts ...Option) *Transport {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return NewTransportWithOptions(options)
}

// NewTransportWithOptions creates a transport from a complete option set
func NewTransportWithOptions(options Options) *Transport {
	if options.Logger == nil {
		options.Logger = logging.New(logging.Config{Level: "info", Format: "text"})
	}
	if options.SendBufferSize <= 0 {
		options.SendBufferSize = DefaultOptions().SendBufferSize
	}

	dialer := options.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: options.ConnectTimeout,
			ReadBufferSize:   options.ReadBufferSize,
			WriteBufferSize:  options.WriteBufferSize,
		}
	}

	return &Transport{
		options: options,
		logger:  options.Logger.WithComponent("stomp"),
		dialer:  dialer,
	}
}

// Open implements domain.Transport. The token is sent both as the token
// query parameter and as a bearer Authorization header.
func (t *Transport) Open(ctx context.Context, address, token string) (domain.Conn, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "INVALID_ADDRESS", "failed to parse server address")
	}

	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	if t.options.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.options.ConnectTimeout)
		defer cancel()
	}

	t.logger.Info("connecting to server", "address", address)

	ws, resp, err := t.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		dialErr := errors.Wrap(err, errors.ErrorTypeTransport, "DIAL_ERROR", "failed to connect to server")
		if resp != nil {
			dialErr = dialErr.WithDetails(fmt.Sprintf("handshake status %d", resp.StatusCode))
		}
		return nil, dialErr
	}

	host := t.options.Host
	if host == "" {
		host = u.Hostname()
	}

	conn := newConn(xid.New().String(), ws, t.logger, t.options)
	conn.start()

	if err := conn.handshake(ctx, host); err != nil {
		conn.shutdown(err)
		return nil, err
	}

	t.logger.Info("connected to server", "address", address, "connection_id", conn.ID())

	return conn, nil
}
