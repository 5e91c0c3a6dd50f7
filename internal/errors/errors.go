// Package errors defines the typed errors returned across the responder.
//
// Callers match them with the standard library's errors.Is and errors.As.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrResourceExhausted is returned by an add when every record slot is
	// in use and none matches the service being added.
	ErrResourceExhausted = errors.New("record table full")

	// ErrMessageTooLarge is returned when a record does not fit in the
	// fixed-size message buffer. The response it belonged to is dropped.
	ErrMessageTooLarge = errors.New("message buffer exhausted")

	// ErrClosed is returned by operations on a closed responder or transport.
	ErrClosed = errors.New("closed")
)

// NetworkError reports a socket level failure.
type NetworkError struct {
	Operation string // e.g. "bind", "send", "join group"
	Err       error
	Details   string
}

func (e *NetworkError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("network error during %s: %v (%s)", e.Operation, e.Err, e.Details)
	}
	return fmt.Sprintf("network error during %s: %v", e.Operation, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// WireFormatError reports a malformed packet. Decoding of the packet stops at
// the first one; it never affects responder state.
type WireFormatError struct {
	Operation string
	Offset    int
	Message   string
}

func (e *WireFormatError) Error() string {
	return fmt.Sprintf("wire format error during %s at offset %d: %s", e.Operation, e.Offset, e.Message)
}

// ValidationError reports invalid caller input such as an oversized label or
// an empty service name.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s %q: %s", e.Field, fmt.Sprint(e.Value), e.Message)
}
