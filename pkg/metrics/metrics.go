// Package metrics holds the Prometheus instrumentation of the gateway.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "meshgate"

// Metrics is created once per process and shared by every gateway
// generation.
type Metrics struct {
	linesRead      prometheus.Counter
	messagesParsed prometheus.Counter
	commands       *prometheus.CounterVec // by command, outcome
	relayAttempts  *prometheus.CounterVec // by kind, result
	chunksDropped  prometheus.Counter
	reconnects     prometheus.Counter
	radarDecisions *prometheus.CounterVec // by outcome
	alertsSent     prometheus.Counter

	gatherer prometheus.Gatherer
}

// New creates and registers the gateway metrics on reg. A nil reg uses a
// private registry.
func New(reg *prometheus.Registry) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		linesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "lines_read_total",
			Help:      "Non-empty lines read from the device",
		}),
		messagesParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "parser",
			Name:      "messages_total",
			Help:      "Inbound text messages recognized",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "commands_total",
			Help:      "Command invocations by outcome",
		}, []string{"command", "outcome"}),
		relayAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "attempts_total",
			Help:      "Relay invocations by attempt kind and result",
		}, []string{"kind", "result"}),
		chunksDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "chunks_dropped_total",
			Help:      "Chunks dropped after both attempts failed",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "reconnects_total",
			Help:      "Times the device connection was lost and restarted",
		}),
		radarDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "radar",
			Name:      "decisions_total",
			Help:      "Radar events by decision",
		}, []string{"outcome"}),
		alertsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "delivered_total",
			Help:      "New external alerts forwarded to the mesh",
		}),
		gatherer: reg,
	}

	for _, c := range []prometheus.Collector{
		m.linesRead, m.messagesParsed, m.commands, m.relayAttempts,
		m.chunksDropped, m.reconnects, m.radarDecisions, m.alertsSent,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) LineRead() {
	if m != nil {
		m.linesRead.Inc()
	}
}

func (m *Metrics) MessageParsed() {
	if m != nil {
		m.messagesParsed.Inc()
	}
}

func (m *Metrics) Command(command, outcome string) {
	if m != nil {
		m.commands.WithLabelValues(command, outcome).Inc()
	}
}

// RelayAttempt counts one relay call. kind is "first" or "retry".
func (m *Metrics) RelayAttempt(kind string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.relayAttempts.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) ChunkDropped() {
	if m != nil {
		m.chunksDropped.Inc()
	}
}

func (m *Metrics) Reconnect() {
	if m != nil {
		m.reconnects.Inc()
	}
}

func (m *Metrics) RadarDecision(outcome string) {
	if m != nil {
		m.radarDecisions.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) AlertDelivered() {
	if m != nil {
		m.alertsSent.Inc()
	}
}
