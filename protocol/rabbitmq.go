package protocol

import (
	"fmt"
	"strconv"

	"github.com/luma/stampede/frame"
)

// RabbitMQ decorates the generic dialect with RabbitMQ's prefetch-count,
// persistent durable subscriptions and requeue-aware NACK.
// https://www.rabbitmq.com/stomp.html
type RabbitMQ struct {
	*Generic

	prefetchCount int
}

func NewRabbitMQ(version Version, clientID string, o DialectOptions) *RabbitMQ {
	prefetch := o.PrefetchCount
	if prefetch < 1 {
		prefetch = 1
	}

	return &RabbitMQ{
		Generic:       NewGeneric(version, clientID),
		prefetchCount: prefetch,
	}
}

func (r *RabbitMQ) Subscribe(o SubscribeOptions) (*frame.Frame, error) {
	f, err := r.Generic.Subscribe(o)
	if err != nil {
		return nil, err
	}

	f.Headers.SetIfAbsent("prefetch-count", strconv.Itoa(r.prefetchCount))

	if o.Durable {
		f.SetHeader("persistent", "true")
	}

	return f, nil
}

// Nack accepts a requeue flag and puts it on the wire.
func (r *RabbitMQ) Nack(msg *frame.Frame, transaction string, requeue *bool) (*frame.Frame, error) {
	if !r.Version().AtLeast(V11) {
		return nil, fmt.Errorf("stampede: nack at %s: %w", r.Version(), ErrNackNotSupported)
	}

	f, err := r.Generic.Nack(msg, transaction, nil)
	if err != nil {
		return nil, err
	}

	if requeue != nil {
		f.SetHeader("requeue", strconv.FormatBool(*requeue))
	}

	return f, nil
}

var _ Protocol = (*RabbitMQ)(nil)
