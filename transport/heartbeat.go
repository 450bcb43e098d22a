package transport

import (
	"time"

	"go.uber.org/zap"

	"github.com/luma/stampede/frame"
)

// AliveSender is the slice of Connection the heartbeat emitter needs.
type AliveSender interface {
	SendAlive() error
}

// HeartbeatEmitter keeps the client→server heart-beat contract: whenever
// the connection has been idle for most of the negotiated send interval,
// it pushes a single alive byte.
//
// Attach it as an observer after CONNECT has negotiated a non-zero send
// interval.
type HeartbeatEmitter struct {
	NopObserver

	sender   AliveSender
	interval time.Duration

	// intervalUsage is how much of the interval may pass before an alive
	// byte goes out. Emitting at 65% leaves headroom for slow writes.
	intervalUsage float64

	lastSent time.Time
	log      *zap.Logger
}

func NewHeartbeatEmitter(sender AliveSender, interval time.Duration, log *zap.Logger) *HeartbeatEmitter {
	if log == nil {
		log = zap.NewNop()
	}

	return &HeartbeatEmitter{
		sender:        sender,
		interval:      interval,
		intervalUsage: 0.65,
		lastSent:      time.Now(),
		log:           log.Named("heartbeat"),
	}
}

// SetIntervalUsage tunes the safety margin. usage must be in (0, 1].
func (h *HeartbeatEmitter) SetIntervalUsage(usage float64) {
	if usage > 0 && usage <= 1 {
		h.intervalUsage = usage
	}
}

func (h *HeartbeatEmitter) SentFrame(*frame.Frame) {
	h.lastSent = time.Now()
}

func (h *HeartbeatEmitter) EmptyBuffer() {
	if h.interval <= 0 {
		return
	}

	threshold := time.Duration(float64(h.interval) * h.intervalUsage)

	if time.Since(h.lastSent) < threshold {
		return
	}

	if err := h.sender.SendAlive(); err != nil {
		h.log.Warn("Failed to emit heartbeat", zap.Error(err))
	}
}

var _ Observer = (*HeartbeatEmitter)(nil)

// ServerAliveObserver watches the inbound side of the heart-beat contract.
// Any frame or heartbeat byte counts as server activity; once the silence
// exceeds the negotiated receive interval times the grace factor, the
// observer trips and reports a HeartbeatError through OnFailure (once) and
// Expired().
type ServerAliveObserver struct {
	NopObserver

	interval time.Duration
	factor   float64

	lastSeen time.Time
	expired  bool

	// OnFailure, when set, is invoked once with the HeartbeatError.
	OnFailure func(error)

	log *zap.Logger
}

func NewServerAliveObserver(interval time.Duration, log *zap.Logger) *ServerAliveObserver {
	if log == nil {
		log = zap.NewNop()
	}

	return &ServerAliveObserver{
		interval: interval,
		factor:   2,
		lastSeen: time.Now(),
		log:      log.Named("serverAlive"),
	}
}

// SetGraceFactor tunes how many missed intervals are tolerated before the
// observer trips. factor must be >= 1.
func (o *ServerAliveObserver) SetGraceFactor(factor float64) {
	if factor >= 1 {
		o.factor = factor
	}
}

func (o *ServerAliveObserver) ReceivedFrame(*frame.Frame) {
	o.markAlive()
}

func (o *ServerAliveObserver) EmptyLineRead() {
	o.markAlive()
}

func (o *ServerAliveObserver) EmptyBuffer() {
	o.check()
}

func (o *ServerAliveObserver) EmptyRead() {
	o.check()
}

// Expired reports whether the server-alive deadline has been missed since
// the last inbound activity.
func (o *ServerAliveObserver) Expired() bool {
	return o.expired
}

func (o *ServerAliveObserver) markAlive() {
	o.lastSeen = time.Now()
	o.expired = false
}

func (o *ServerAliveObserver) check() {
	if o.interval <= 0 || o.expired {
		return
	}

	silence := time.Since(o.lastSeen)
	deadline := time.Duration(float64(o.interval) * o.factor)

	if silence <= deadline {
		return
	}

	o.expired = true
	err := &HeartbeatError{Silence: silence, Deadline: deadline}
	o.log.Warn("Server heartbeat missed", zap.Error(err))

	if o.OnFailure != nil {
		o.OnFailure(err)
	}
}

var _ Observer = (*ServerAliveObserver)(nil)
