// Package metrics wires the Prometheus instrumentation named in
// SPEC_FULL.md § 5.2, grounded on the teacher pack's kadirpekel-hector
// pkg/observability/metrics.go (a dedicated prometheus.Registry plus typed
// CounterVec/GaugeVec/HistogramVec fields, one constructor building them
// all at once).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector Morgana exports.
type Metrics struct {
	registry *prometheus.Registry

	ActiveConversations prometheus.Gauge
	TurnsTotal          *prometheus.CounterVec
	TurnDuration        prometheus.Histogram
	GuardViolations     *prometheus.CounterVec
	MCPToolCalls        *prometheus.CounterVec
	MailboxQueueDepth   *prometheus.GaugeVec
}

// New builds and registers every Morgana collector against a fresh
// registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		ActiveConversations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "morgana_active_conversations",
			Help: "Number of conversations with a live Manager.",
		}),
		TurnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "morgana_turns_total",
			Help: "Total turns processed, labeled by outcome.",
		}, []string{"outcome"}),
		TurnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "morgana_turn_duration_seconds",
			Help:    "End-to-end turn handling latency.",
			Buckets: prometheus.DefBuckets,
		}),
		GuardViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "morgana_guard_violations_total",
			Help: "Guard non-compliance verdicts, labeled by violation category.",
		}, []string{"category"}),
		MCPToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "morgana_mcp_tool_calls_total",
			Help: "MCP tool invocations, labeled by server and outcome.",
		}, []string{"server", "outcome"}),
		MailboxQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "morgana_mailbox_queue_depth",
			Help: "Current buffered job count per actor mailbox, labeled by component.",
		}, []string{"component"}),
	}

	reg.MustRegister(
		m.ActiveConversations,
		m.TurnsTotal,
		m.TurnDuration,
		m.GuardViolations,
		m.MCPToolCalls,
		m.MailboxQueueDepth,
	)
	return m
}

// Handler returns the http.Handler serving this registry's metrics in the
// Prometheus exposition format, mounted at /metrics by cmd/morgana.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
