// Package transport carries compressed frames to and from the remote
// pose-estimation service over a persistent connection.
//
// The service contract is deliberately thin: every outbound message is one
// compressed image, and the service answers asynchronously with compressed
// images. Nothing here interprets the payloads.
package transport

import (
	"context"
	"errors"
	"fmt"
)

// Conn is one open connection to the annotation service.
//
// Send and Receive may be called concurrently with each other, but each
// must only be called from a single goroutine. Close unblocks both and is
// idempotent.
type Conn interface {
	// Send transmits one payload. It returns once the payload is written.
	Send(ctx context.Context, payload []byte) error

	// Receive blocks until the next payload arrives.
	Receive(ctx context.Context) ([]byte, error)

	// Close closes the connection.
	Close() error
}

// Dialer opens connections.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Conn, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context) (Conn, error) {
	return f(ctx)
}

// ErrClosed is returned by Send and Receive after Close.
var ErrClosed = errors.New("transport: connection closed")

// DialError describes a failed connection attempt.
type DialError struct {
	URL    string
	Status int // HTTP status of the failed handshake, 0 if none
	Err    error
}

// Error implements the error interface.
func (e *DialError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transport: dial %s: handshake status %d: %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("transport: dial %s: %v", e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *DialError) Unwrap() error {
	return e.Err
}
