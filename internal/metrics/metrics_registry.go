package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "antinuke_events_received_total",
			Help: "Raw guild events handed to the pipeline",
		},
		[]string{"action"},
	)

	EventsDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "antinuke_events_deduplicated_total",
			Help: "Events dropped because their correlation id was already seen",
		},
	)

	AttributionMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "antinuke_attribution_misses_total",
			Help: "Events dropped because no qualifying audit entry was found",
		},
		[]string{"action"},
	)

	AttributionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "antinuke_attribution_duration_seconds",
			Help:    "Time spent resolving an event's actor from the audit log",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 1.5, 2, 3, 5},
		},
	)

	Decisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "antinuke_decisions_total",
			Help: "Policy decisions by kind",
		},
		[]string{"action", "kind"},
	)

	Punishments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "antinuke_punishments_total",
			Help: "Punishments by kind and outcome",
		},
		[]string{"punishment", "outcome"},
	)

	Reverts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "antinuke_reverts_total",
			Help: "Reversal attempts by outcome",
		},
		[]string{"action", "outcome"},
	)

	NotificationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "antinuke_notification_failures_total",
			Help: "Log channel deliveries that failed",
		},
	)

	OpenCircuitBreakers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "antinuke_circuit_breakers_open",
			Help: "Guild scoped circuit breakers currently open",
		},
		[]string{"name"},
	)

	TrackedWindows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "antinuke_tracked_windows",
			Help: "Live (guild, actor, action) windows held in memory",
		},
	)
)
