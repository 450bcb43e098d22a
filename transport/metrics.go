package transport

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luma/stampede/frame"
)

// MetricsObserver exports frame and heartbeat counters to Prometheus.
type MetricsObserver struct {
	framesSent     prometheus.Counter
	framesReceived prometheus.Counter
	heartbeatsIn   prometheus.Counter
	emptyReads     prometheus.Counter
	emptyBuffers   prometheus.Counter
}

func NewMetricsObserver(reg prometheus.Registerer) *MetricsObserver {
	m := &MetricsObserver{
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stampede",
			Name:      "frames_sent_total",
			Help:      "Frames written to the broker, heartbeats included.",
		}),
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stampede",
			Name:      "frames_received_total",
			Help:      "Frames decoded from the broker.",
		}),
		heartbeatsIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stampede",
			Name:      "server_heartbeats_total",
			Help:      "Heartbeat bytes received from the broker.",
		}),
		emptyReads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stampede",
			Name:      "empty_reads_total",
			Help:      "Zero-byte reads, a sign of a half-closed peer.",
		}),
		emptyBuffers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stampede",
			Name:      "empty_buffer_ticks_total",
			Help:      "Read waits that elapsed without data.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.framesSent, m.framesReceived, m.heartbeatsIn, m.emptyReads, m.emptyBuffers)
	}

	return m
}

func (m *MetricsObserver) SentFrame(*frame.Frame) {
	m.framesSent.Inc()
}

func (m *MetricsObserver) ReceivedFrame(*frame.Frame) {
	m.framesReceived.Inc()
}

func (m *MetricsObserver) EmptyLineRead() {
	m.heartbeatsIn.Inc()
}

func (m *MetricsObserver) EmptyRead() {
	m.emptyReads.Inc()
}

func (m *MetricsObserver) EmptyBuffer() {
	m.emptyBuffers.Inc()
}

var _ Observer = (*MetricsObserver)(nil)
