package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/luma/stampede/frame"
)

var (
	// ErrNotConnected is returned when an operation needs an open socket
	// and there is none.
	ErrNotConnected = errors.New("stampede: not connected")

	// ErrInvalidBrokerURI is returned for broker URIs that cannot be
	// parsed into at least one endpoint.
	ErrInvalidBrokerURI = errors.New("stampede: invalid broker URI")
)

// ConnectionError wraps a socket-level failure together with the endpoint
// it happened against.
type ConnectionError struct {
	Endpoint Endpoint
	Op       string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("stampede: %s %s: %v", e.Op, e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ErrorFrame is an ERROR frame received from the broker, surfaced as an
// error to the reader.
type ErrorFrame struct {
	Frame *frame.Frame
}

func (e *ErrorFrame) Error() string {
	if msg, ok := e.Frame.Header(frame.HdrMessage); ok && msg != "" {
		return fmt.Sprintf("stampede: broker error: %s", msg)
	}

	return fmt.Sprintf("stampede: broker error: %s", string(e.Frame.Body))
}

// HeartbeatError is raised by ServerAliveObserver when the broker stays
// silent past its negotiated heart-beat deadline.
type HeartbeatError struct {
	Silence  time.Duration
	Deadline time.Duration
}

func (e *HeartbeatError) Error() string {
	return fmt.Sprintf("stampede: no server activity for %s (deadline %s)", e.Silence, e.Deadline)
}
