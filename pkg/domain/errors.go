package domain

import (
	"errors"
)

// Common domain errors
var (
	// ErrConnectionClosed is returned when trying to use a closed connection
	ErrConnectionClosed = errors.New("connection closed")

	// ErrSendBufferFull is returned when the outbound queue cannot take another frame
	ErrSendBufferFull = errors.New("send buffer is full")
)
