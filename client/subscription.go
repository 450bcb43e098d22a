package client

import (
	"github.com/luma/stampede/frame"
	"github.com/luma/stampede/protocol"
)

// Subscription is one active subscription within a consumer session.
type Subscription struct {
	// ID is the session-local subscription id sent to the broker.
	ID string

	Destination string
	Ack         protocol.AckMode
	Selector    string
	Durable     bool

	// idNum is the generator id backing ID, released on unsubscribe.
	idNum int
}

// Subscriptions is the consumer states' registry of active subscriptions,
// ordered by insertion.
type Subscriptions struct {
	list []*Subscription
}

func NewSubscriptions() *Subscriptions {
	return &Subscriptions{}
}

func (s *Subscriptions) Add(sub *Subscription) {
	s.list = append(s.list, sub)
}

func (s *Subscriptions) Get(id string) *Subscription {
	for _, sub := range s.list {
		if sub.ID == id {
			return sub
		}
	}

	return nil
}

func (s *Subscriptions) Remove(id string) *Subscription {
	for i, sub := range s.list {
		if sub.ID == id {
			s.list = append(s.list[:i], s.list[i+1:]...)
			return sub
		}
	}

	return nil
}

func (s *Subscriptions) Len() int {
	return len(s.list)
}

// All returns the subscriptions in insertion order.
func (s *Subscriptions) All() []*Subscription {
	out := make([]*Subscription, len(s.list))
	copy(out, s.list)
	return out
}

// ByFrame returns the first subscription matching the frame's subscription
// header. Dispatch is advisory: frames without a match are still delivered
// to the caller.
func (s *Subscriptions) ByFrame(f *frame.Frame) *Subscription {
	id, ok := f.Header(frame.HdrSubscription)
	if !ok {
		return nil
	}

	return s.Get(id)
}
