package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics for the stop progression engine.
var (
	StopCompletionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stop_completions_total",
			Help: "Total number of stops completed",
		},
	)

	StopFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stop_failures_total",
			Help: "Total number of stops marked failed",
		},
	)

	DeliveriesDeliveredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "deliveries_delivered_total",
			Help: "Total number of deliveries that reached terminal delivered status",
		},
	)

	CursorConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cursor_conflicts_total",
			Help: "Total number of lost compare-and-swap races on the delivery cursor",
		},
	)
)

// Register registers all engine metrics with the default registry.
func Register() {
	prometheus.MustRegister(
		StopCompletionsTotal,
		StopFailuresTotal,
		DeliveriesDeliveredTotal,
		CursorConflictsTotal,
	)
}
