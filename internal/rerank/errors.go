package rerank

import (
	"errors"
	"net/http"
)

var (
	// ErrValidation indicates a malformed canonical request.
	ErrValidation = errors.New("validation error")

	// ErrConnection indicates the backend could not be reached or dropped the connection.
	ErrConnection = errors.New("backend connection error")

	// ErrTimeout indicates the backend did not answer within the configured deadline.
	ErrTimeout = errors.New("backend timeout")

	// ErrBackendProtocol indicates the backend answered with a payload that violates its schema.
	ErrBackendProtocol = errors.New("backend protocol error")
)

// Kind classifies a failure. Every failed request fails with exactly one kind.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindConnection
	KindTimeout
	KindBackendProtocol
)

// String returns the stable kind name used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConnection:
		return "connection"
	case KindTimeout:
		return "timeout"
	case KindBackendProtocol:
		return "backend_protocol"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindConnection:
		return ErrConnection
	case KindTimeout:
		return ErrTimeout
	case KindBackendProtocol:
		return ErrBackendProtocol
	default:
		return nil
	}
}

// Error is a classified failure. Message is safe to show to callers; Err is
// the internal cause and is only meant for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind, so errors.Is(err, ErrTimeout) works.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// Validation returns a ValidationError.
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// Connection returns a ConnectionError wrapping cause.
func Connection(msg string, cause error) *Error {
	return &Error{Kind: KindConnection, Message: msg, Err: cause}
}

// Timeout returns a TimeoutError wrapping cause.
func Timeout(msg string, cause error) *Error {
	return &Error{Kind: KindTimeout, Message: msg, Err: cause}
}

// Protocol returns a BackendProtocolError wrapping cause.
func Protocol(msg string, cause error) *Error {
	return &Error{Kind: KindBackendProtocol, Message: msg, Err: cause}
}

// KindOf returns the kind of err, or KindUnknown if err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// PublicMessage returns the caller-safe message for err.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

// HTTPStatus maps err to the status code of the inbound HTTP contract.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindConnection, KindTimeout, KindBackendProtocol:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
