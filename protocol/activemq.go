package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/luma/stampede/frame"
)

// Extension headers ActiveMQ accepts on SUBSCRIBE.
// https://activemq.apache.org/stomp.html
var activeMQExtensions = map[string]struct{}{
	"activemq.dispatchAsync":              {},
	"activemq.exclusive":                  {},
	"activemq.maximumPendingMessageLimit": {},
	"activemq.noLocal":                    {},
	"activemq.prefetchSize":               {},
	"activemq.priority":                   {},
	"activemq.retroactive":                {},
}

// ActiveMQ decorates the generic dialect with ActiveMQ's prefetch and
// durable-subscription headers.
type ActiveMQ struct {
	*Generic

	prefetchSize int
}

func NewActiveMQ(version Version, clientID string, o DialectOptions) *ActiveMQ {
	prefetch := o.PrefetchSize
	if prefetch < 1 {
		prefetch = 1
	}

	return &ActiveMQ{
		Generic:      NewGeneric(version, clientID),
		prefetchSize: prefetch,
	}
}

func (a *ActiveMQ) Subscribe(o SubscribeOptions) (*frame.Frame, error) {
	if err := validateActiveMQExtensions(o.Headers); err != nil {
		return nil, err
	}

	f, err := a.Generic.Subscribe(o)
	if err != nil {
		return nil, err
	}

	f.Headers.SetIfAbsent("activemq.prefetchSize", strconv.Itoa(a.prefetchSize))

	if o.Durable {
		a.durableHeaders(f)
	}

	return f, nil
}

func (a *ActiveMQ) Unsubscribe(destination, id string, durable bool) *frame.Frame {
	f := a.Generic.Unsubscribe(destination, id, durable)

	if durable {
		a.durableHeaders(f)
	}

	return f
}

// Ack prefers the broker-assigned ack header at 1.2, like the generic
// dialect. Nack differs: ActiveMQ wants the same ack identifier there too.
func (a *ActiveMQ) Nack(msg *frame.Frame, transaction string, requeue *bool) (*frame.Frame, error) {
	if requeue != nil {
		return nil, fmt.Errorf("stampede: activemq nack: %w", ErrRequeueNotSupported)
	}

	f, err := a.Generic.Nack(msg, transaction, nil)
	if err != nil {
		return nil, err
	}

	if a.Version().AtLeast(V12) {
		f.SetHeader(frame.HdrID, ackID(msg))
	}

	return f, nil
}

func (a *ActiveMQ) durableHeaders(f *frame.Frame) {
	f.SetHeader("activemq.subscriptionName", a.ClientID())
	f.SetHeader("durable-subscriber-name", a.ClientID())
}

func validateActiveMQExtensions(headers *frame.Headers) error {
	if headers == nil {
		return nil
	}

	var err error

	headers.Each(func(name, value string) {
		if err != nil || !strings.HasPrefix(name, "activemq.") {
			return
		}

		if _, ok := activeMQExtensions[name]; !ok {
			err = fmt.Errorf("stampede: subscribe header %q: %w", name, ErrUnknownExtension)
			return
		}

		if name == "activemq.priority" {
			p, perr := strconv.Atoi(value)
			if perr != nil || p < 0 || p > 127 {
				err = fmt.Errorf("stampede: subscribe header %q=%q: %w", name, value, ErrPriorityOutOfRange)
			}
		}
	})

	return err
}

var _ Protocol = (*ActiveMQ)(nil)
