package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionClosed is returned for sends attempted after Close or after
	// the transport failed.
	ErrSessionClosed = errors.New("session closed")
	// ErrInputClosed marks the inbound stream reaching EOF.
	ErrInputClosed = errors.New("input stream closed")
)

// ProtocolErrorKind classifies recoverable protocol violations.
type ProtocolErrorKind string

const (
	ProtocolMalformedFrame   ProtocolErrorKind = "malformed_frame"
	ProtocolFrameTooLarge    ProtocolErrorKind = "frame_too_large"
	ProtocolInvalidMessage   ProtocolErrorKind = "invalid_message"
	ProtocolUnmatchedID      ProtocolErrorKind = "unmatched_response"
	ProtocolNoHandler        ProtocolErrorKind = "no_handler"
	ProtocolValidationFailed ProtocolErrorKind = "validation_failed"
)

// ProtocolError is logged and never returned to callers of the engine; the
// session keeps running after one.
type ProtocolError struct {
	Kind   ProtocolErrorKind
	Method string
	ID     string
	Err    error
}

func (e *ProtocolError) Error() string {
	msg := "protocol error: " + string(e.Kind)
	if e.Method != "" {
		msg += " method=" + e.Method
	}
	if e.ID != "" {
		msg += " id=" + e.ID
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// TransportError reports that the input or output stream is unusable. It is
// fatal for the session.
type TransportError struct {
	Op  string // "read" or "write"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
