package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType int

const (
	// ErrorTypePrecondition indicates an operation called in the wrong session state
	ErrorTypePrecondition ErrorType = iota
	// ErrorTypeTransport indicates a connect, send or close failure
	ErrorTypeTransport
	// ErrorTypePayload indicates a malformed inbound message
	ErrorTypePayload
	// ErrorTypeReconnectExhausted indicates the reconnect attempt cap was reached
	ErrorTypeReconnectExhausted
	// ErrorTypeProtocol indicates a STOMP framing error
	ErrorTypeProtocol
	// ErrorTypeTimeout indicates a timeout error
	ErrorTypeTimeout
	// ErrorTypeValidation indicates a validation error
	ErrorTypeValidation
	// ErrorTypeServer indicates an error pushed by the messaging server
	ErrorTypeServer
	// ErrorTypeInternal indicates an internal error
	ErrorTypeInternal
)

// Error represents a structured error with metadata
type Error struct {
	Type      ErrorType `json:"type"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Cause     error     `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		if e.Details != "" {
			return fmt.Sprintf("[%s] %s: %s (caused by: %v)", e.Code, e.Message, e.Details, e.Cause)
		}
		return fmt.Sprintf("[%s] %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error is of a specific type
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// New creates a new error
func New(errorType ErrorType, code, message string) *Error {
	return &Error{
		Type:      errorType,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, errorType ErrorType, code, message string) *Error {
	return &Error{
		Type:      errorType,
		Code:      code,
		Message:   message,
		Cause:     err,
		Timestamp: time.Now(),
	}
}

// WithDetails adds details to an error
func (e *Error) WithDetails(details string) *Error {
	e.Details = details
	return e
}

// TypeOf reports the ErrorType of the outermost *Error in err's chain.
func TypeOf(err error) (ErrorType, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type, true
	}
	return ErrorTypeInternal, false
}

// Sentinels for errors.Is comparisons. Matching is by type and code.
var (
	ErrNoToken            = New(ErrorTypePrecondition, "NO_TOKEN", "authentication token is not set")
	ErrNotConnected       = New(ErrorTypePrecondition, "NOT_CONNECTED", "not connected to server")
	ErrDestroyed          = New(ErrorTypePrecondition, "DESTROYED", "session has been destroyed")
	ErrReconnectExhausted = New(ErrorTypeReconnectExhausted, "RECONNECT_EXHAUSTED", "maximum reconnect attempts reached")
)
