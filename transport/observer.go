package transport

import "github.com/luma/stampede/frame"

// Observer receives connection life-cycle callbacks. Implementations must
// be non-blocking: they run inline on the connection's read/write path.
type Observer interface {
	// SentFrame fires after a frame (or heartbeat) was fully written.
	SentFrame(f *frame.Frame)

	// ReceivedFrame fires for every decoded inbound frame, ERROR included.
	ReceivedFrame(f *frame.Frame)

	// EmptyLineRead fires for every server heartbeat byte consumed.
	EmptyLineRead()

	// EmptyRead fires when the socket returned no bytes, which usually
	// means the peer half-closed.
	EmptyRead()

	// EmptyBuffer fires when a read wait elapsed without any data. This is
	// the tick heartbeat emitters hang off.
	EmptyBuffer()
}

// NopObserver implements Observer with no-ops, for embedding.
type NopObserver struct{}

func (NopObserver) SentFrame(*frame.Frame)     {}
func (NopObserver) ReceivedFrame(*frame.Frame) {}
func (NopObserver) EmptyLineRead()             {}
func (NopObserver) EmptyRead()                 {}
func (NopObserver) EmptyBuffer()               {}

type observerSet struct {
	list []Observer
}

func (s *observerSet) add(o Observer) {
	s.list = append(s.list, o)
}

func (s *observerSet) remove(o Observer) {
	for i, existing := range s.list {
		if existing == o {
			s.list = append(s.list[:i], s.list[i+1:]...)
			return
		}
	}
}

func (s *observerSet) sentFrame(f *frame.Frame) {
	for _, o := range s.list {
		o.SentFrame(f)
	}
}

func (s *observerSet) receivedFrame(f *frame.Frame) {
	for _, o := range s.list {
		o.ReceivedFrame(f)
	}
}

func (s *observerSet) emptyLineRead() {
	for _, o := range s.list {
		o.EmptyLineRead()
	}
}

func (s *observerSet) emptyRead() {
	for _, o := range s.list {
		o.EmptyRead()
	}
}

func (s *observerSet) emptyBuffer() {
	for _, o := range s.list {
		o.EmptyBuffer()
	}
}
