package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects gateway counters. A nil *Metrics is valid and
// records nothing, which keeps tests free of a registry requirement.
type Metrics struct {
	connections        prometheus.Gauge
	framesTotal        *prometheus.CounterVec
	broadcastDelivered prometheus.Counter
	broadcastDropped   prometheus.Counter
	persistFailures    prometheus.Counter
}

// NewMetrics constructs and registers gateway metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gcf",
			Subsystem: "chat",
			Name:      "connections",
			Help:      "Currently open websocket connections.",
		}),
		framesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gcf",
			Subsystem: "chat",
			Name:      "frames_total",
			Help:      "Inbound frames handled, by command type.",
		}, []string{"type"}),
		broadcastDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gcf",
			Subsystem: "chat",
			Name:      "broadcast_delivered_total",
			Help:      "Payloads enqueued to recipient send queues.",
		}),
		broadcastDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gcf",
			Subsystem: "chat",
			Name:      "broadcast_dropped_total",
			Help:      "Payloads dropped because a recipient was closed or backpressured.",
		}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gcf",
			Subsystem: "chat",
			Name:      "persist_failures_total",
			Help:      "Chat store operations that returned an error.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.connections, m.framesTotal, m.broadcastDelivered, m.broadcastDropped, m.persistFailures)
	}
	return m
}

// ConnOpened increments the live connection gauge.
func (m *Metrics) ConnOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

// ConnClosed decrements the live connection gauge.
func (m *Metrics) ConnClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

// FrameHandled counts one inbound frame of the given type.
func (m *Metrics) FrameHandled(frameType string) {
	if m != nil {
		m.framesTotal.WithLabelValues(frameType).Inc()
	}
}

// BroadcastDelivered counts one enqueued payload.
func (m *Metrics) BroadcastDelivered() {
	if m != nil {
		m.broadcastDelivered.Inc()
	}
}

// BroadcastDropped counts one skipped or dropped payload.
func (m *Metrics) BroadcastDropped() {
	if m != nil {
		m.broadcastDropped.Inc()
	}
}

// PersistFailed counts one failed store call.
func (m *Metrics) PersistFailed() {
	if m != nil {
		m.persistFailures.Inc()
	}
}

// RegisterSessionsGauge exposes the registry's live entry count as a
// gauge. connections counts open sockets; sessions counts sockets that
// have authenticated and hold a registry entry.
func RegisterSessionsGauge(reg prometheus.Registerer, registry *Registry) {
	if reg == nil || registry == nil {
		return
	}
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "gcf",
		Subsystem: "chat",
		Name:      "sessions",
		Help:      "Authenticated sessions currently held in the registry.",
	}, func() float64 { return float64(registry.Len()) }))
}
