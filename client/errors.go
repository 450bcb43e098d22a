package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/luma/stampede/frame"
)

var (
	// ErrConnectNotAcknowledged means the broker never answered CONNECT
	// with a CONNECTED frame within the connect timeout.
	ErrConnectNotAcknowledged = errors.New("stampede: broker did not acknowledge CONNECT")

	// ErrUnknownSubscription is returned for unsubscribe calls naming a
	// subscription this session does not hold.
	ErrUnknownSubscription = errors.New("stampede: unknown subscription")

	// ErrNotMapMessage is returned when a map transformation is requested
	// on a frame without the jms-map-json transformation header.
	ErrNotMapMessage = errors.New("stampede: frame does not carry a jms-map-json body")
)

// MissingReceiptError means a synchronous send saw no matching RECEIPT
// within the receipt wait.
type MissingReceiptError struct {
	ReceiptID string
	Wait      time.Duration
}

func (e *MissingReceiptError) Error() string {
	return fmt.Sprintf("stampede: no receipt %q within %s", e.ReceiptID, e.Wait)
}

// UnexpectedResponseError means a well-formed frame arrived where a
// specific one was expected.
type UnexpectedResponseError struct {
	Expected string
	Frame    *frame.Frame
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("stampede: expected %s, got %s frame", e.Expected, e.Frame.Command)
}

// InvalidStateError means the session state machine does not allow the
// attempted operation in its current state.
type InvalidStateError struct {
	State string
	Op    string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("stampede: %s is not allowed in state %s", e.Op, e.State)
}

// DrainingError means the operation must wait until the buffered consumer
// frames have been drained.
type DrainingError struct {
	State string
	Op    string
}

func (e *DrainingError) Error() string {
	return fmt.Sprintf("stampede: %s is not allowed while draining buffered frames in state %s", e.Op, e.State)
}
