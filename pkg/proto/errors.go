package proto

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed is matched by every DecodeError.
	ErrMalformed = errors.New("malformed message")
	// ErrEmptyMessage is returned when encoding a message with neither
	// header nor body.
	ErrEmptyMessage = errors.New("message has neither header nor body")
	// ErrNoSession is returned for device initiated output without an open
	// session.
	ErrNoSession = errors.New("no active session")
	// ErrBusy is returned when a second session of the same feature is
	// requested.
	ErrBusy = errors.New("another session is active")
	// ErrNotConnected is returned when sending without a transport.
	ErrNotConnected = errors.New("transport not connected")
)

// DecodeError reports a frame that could not be decoded. No reply is ever
// sent for it.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed message: %s: %s", e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed message: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrMalformed) true for every DecodeError.
func (e *DecodeError) Is(target error) bool { return target == ErrMalformed }

func malformed(reason string, err error) error {
	return &DecodeError{Reason: reason, Err: err}
}

// ProtocolError reports a well-formed message that is unsupported or not
// valid in the current state.
type ProtocolError struct {
	Proto   ProtoType
	MsgType string
	Reason  string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error (%s/%q): %s", e.Proto, e.MsgType, e.Reason)
}

// NewProtocolError creates a ProtocolError for message m.
func NewProtocolError(m *Message, format string, a ...interface{}) *ProtocolError {
	return &ProtocolError{
		Proto:   m.Proto(),
		MsgType: m.MsgType(),
		Reason:  fmt.Sprintf(format, a...),
	}
}

// Unsupported creates the ProtocolError for an unknown message type.
func Unsupported(m *Message) *ProtocolError {
	return NewProtocolError(m, "unsupported message type")
}

// CapabilityError reports a failed device capability (shell, filesystem,
// remote connection, client hooks).
type CapabilityError struct {
	Op  string
	Err error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *CapabilityError) Unwrap() error { return e.Err }

// NewCapabilityError wraps err as a CapabilityError of operation op.
func NewCapabilityError(op string, err error) *CapabilityError {
	return &CapabilityError{Op: op, Err: err}
}

// ResourceError reports a failure to build or send a reply.
type ResourceError struct {
	Op  string
	Err error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// NewResourceError wraps err as a ResourceError of operation op.
func NewResourceError(op string, err error) *ResourceError {
	return &ResourceError{Op: op, Err: err}
}
