// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "slackbot_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slackbot_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// EventsTotal counts Slack events by type and how they were handled.
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slackbot_events_total",
			Help: "Slack events received",
		},
		[]string{"type", "outcome"},
	)

	// EventsInFlight tracks events currently held by a worker.
	EventsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slackbot_events_in_flight",
			Help: "Slack events currently being processed",
		},
	)

	// BackendDuration tracks Dify invocation latency.
	BackendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "slackbot_backend_duration_seconds",
			Help:    "Dify invocation duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"kind", "status"},
	)

	// BackendInvocationsTotal counts Dify invocations.
	BackendInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slackbot_backend_invocations_total",
			Help: "Dify invocations",
		},
		[]string{"kind", "status"},
	)

	// HistoryLookupsTotal counts thread history lookups by result.
	HistoryLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slackbot_history_lookups_total",
			Help: "Thread history lookups for a conversation marker",
		},
		[]string{"result"},
	)

	// AdminCommandsTotal counts admin DM commands.
	AdminCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slackbot_admin_commands_total",
			Help: "Admin commands received over direct message",
		},
		[]string{"command", "outcome"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordEvent counts a Slack event outcome.
func RecordEvent(eventType, outcome string) {
	EventsTotal.WithLabelValues(eventType, outcome).Inc()
}

// RecordBackend records metrics for a Dify invocation.
func RecordBackend(kind, status string, duration float64) {
	BackendDuration.WithLabelValues(kind, status).Observe(duration)
	BackendInvocationsTotal.WithLabelValues(kind, status).Inc()
}

// RecordHistoryLookup counts a thread history lookup result.
func RecordHistoryLookup(result string) {
	HistoryLookupsTotal.WithLabelValues(result).Inc()
}

// RecordAdminCommand counts an admin command outcome.
func RecordAdminCommand(command, outcome string) {
	AdminCommandsTotal.WithLabelValues(command, outcome).Inc()
}
