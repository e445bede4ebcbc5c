// Package metrics exposes Prometheus collectors for push-to-talk dispatch
// and chat command handling.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nodetalk"

// Dispatch outcomes used as the "outcome" label.
const (
	OutcomeOK          = "ok"
	OutcomeRejected    = "rejected"
	OutcomeUnavailable = "unavailable"
	OutcomeTimeout     = "timeout"
	OutcomeNotFound    = "not_found"
	OutcomeError       = "error"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	invocations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	commands    *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ptt",
			Name:      "invocations_total",
			Help:      "Push-to-talk node.invoke calls by action and outcome.",
		}, []string{"action", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ptt",
			Name:      "invocation_duration_seconds",
			Help:      "Latency of push-to-talk node.invoke calls.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 15, 30},
		}, []string{"action"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "commands_total",
			Help:      "Chat commands handled by surface and result.",
		}, []string{"surface", "result"}),
	}
	reg.MustRegister(m.invocations, m.duration, m.commands)
	return m
}

// ObserveInvocation records one dispatch.
func (m *Metrics) ObserveInvocation(action, outcome string, latency time.Duration) {
	if m == nil {
		return
	}
	m.invocations.WithLabelValues(action, outcome).Inc()
	m.duration.WithLabelValues(action).Observe(latency.Seconds())
}

// RecordCommand records one chat command.
func (m *Metrics) RecordCommand(surface, result string) {
	if m == nil {
		return
	}
	if surface == "" {
		surface = "unknown"
	}
	m.commands.WithLabelValues(surface, result).Inc()
}
