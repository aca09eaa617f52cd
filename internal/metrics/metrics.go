// Package metrics exposes the agent's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sentinelDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_decisions_total",
		Help: "Total decisions by resulting action.",
	}, []string{"action"})

	sentinelActiveBlocks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_active_blocks",
		Help: "Number of currently active blocks.",
	})

	sentinelTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sentinel_tick_duration_seconds",
		Help:    "Duration of one monitoring tick in seconds.",
		Buckets: prometheus.DefBuckets,
	})

	sentinelDetectorFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_detector_failures_total",
		Help: "Detector sample failures by source.",
	}, []string{"source"})

	sentinelEnforcementFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_enforcement_failures_total",
		Help: "Enforcement adapter failures by operation.",
	}, []string{"op"})

	sentinelNotifierFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_notifier_failures_total",
		Help: "Total notification delivery failures.",
	})

	sentinelAuditRecordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_audit_records_total",
		Help: "Total audit records appended.",
	})
)

// RecordDecision records one decision outcome.
func RecordDecision(action string) {
	sentinelDecisionsTotal.WithLabelValues(action).Inc()
}

// SetActiveBlocks updates the active-block gauge.
func SetActiveBlocks(n int) {
	sentinelActiveBlocks.Set(float64(n))
}

// ObserveTick records the duration of one monitoring tick.
func ObserveTick(seconds float64) {
	sentinelTickDuration.Observe(seconds)
}

// RecordDetectorFailure records a failed detector sample.
func RecordDetectorFailure(source string) {
	sentinelDetectorFailuresTotal.WithLabelValues(source).Inc()
}

// RecordEnforcementFailure records a failed Block or Unblock call.
func RecordEnforcementFailure(op string) {
	sentinelEnforcementFailuresTotal.WithLabelValues(op).Inc()
}

// RecordNotifierFailure records a failed notification delivery.
func RecordNotifierFailure() {
	sentinelNotifierFailuresTotal.Inc()
}

// RecordAuditAppend records an audit record append.
func RecordAuditAppend() {
	sentinelAuditRecordsTotal.Inc()
}
