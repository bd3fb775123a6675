// Fraudguard - Account Risk Scoring and Automated Fraud Enforcement
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fraudguard

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus Metrics Integration for Production Observability
// This package provides instrumentation for:
// - Batch risk evaluation (duration, outcomes, enforcement)
// - GeoIP resolution (lookups, cache efficiency, circuit breaker)
// - Signal ingestion (consumed, processed, poisoned)
// - API endpoint latency and throughput

var (
	// Batch Evaluation Metrics
	BatchRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_runs_total",
			Help: "Total number of batch risk evaluation runs",
		},
		[]string{"outcome"}, // "success", "failure", "canceled"
	)

	BatchRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batch_run_duration_seconds",
			Help:    "Duration of batch risk evaluation runs in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	BatchUsersEvaluated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "batch_users_evaluated_total",
			Help: "Total number of user accounts evaluated across batch runs",
		},
	)

	BatchUserFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "batch_user_failures_total",
			Help: "Total number of per-user evaluations that failed and were skipped",
		},
	)

	BatchLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "batch_last_success_timestamp",
			Help: "Unix timestamp of last successful batch run",
		},
	)

	// Enforcement Metrics
	BansApplied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "enforcement_bans_applied_total",
			Help: "Total number of automated bans applied",
		},
	)

	BanFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "enforcement_ban_failures_total",
			Help: "Total number of ban attempts that failed to persist",
		},
	)

	RiskSignalsSurfaced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "enforcement_risk_signals_total",
			Help: "Total number of risk signals surfaced for human review",
		},
	)

	RiskScoreDistribution = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "risk_score",
			Help:    "Distribution of composite risk scores across evaluations",
			Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)

	// GeoIP Metrics
	GeoIPLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geoip_lookups_total",
			Help: "Total number of GeoIP provider lookups",
		},
		[]string{"provider", "result"}, // result: "success", "failure", "rejected"
	)

	GeoIPLookupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "geoip_lookup_duration_seconds",
			Help:    "Duration of GeoIP provider lookups in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	GeoIPCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geoip_cache_hits_total",
			Help: "Total number of GeoIP cache hits",
		},
	)

	GeoIPCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geoip_cache_misses_total",
			Help: "Total number of GeoIP cache misses (provider lookup required)",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Signal Ingestion Metrics
	IngestMessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_messages_consumed_total",
			Help: "Total number of signal messages consumed from the stream",
		},
		[]string{"signal_type"}, // "login", "fingerprint", "behavior", "ip_reputation"
	)

	IngestMessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_messages_processed_total",
			Help: "Total number of signal messages successfully persisted",
		},
		[]string{"signal_type"},
	)

	IngestMessagesPoisoned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_messages_poisoned_total",
			Help: "Total number of messages routed to the poison queue",
		},
		[]string{"signal_type"},
	)

	IngestProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_processing_duration_seconds",
			Help:    "Duration of signal message processing in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordBatchRun records the outcome of one batch evaluation run.
func RecordBatchRun(duration time.Duration, evaluated, failures int, err error) {
	BatchRunDuration.Observe(duration.Seconds())
	BatchUsersEvaluated.Add(float64(evaluated))
	BatchUserFailures.Add(float64(failures))
	if err != nil {
		BatchRunsTotal.WithLabelValues("failure").Inc()
		return
	}
	BatchRunsTotal.WithLabelValues("success").Inc()
	BatchLastSuccess.Set(float64(time.Now().Unix()))
}

// RecordGeoIPLookup records one provider lookup.
func RecordGeoIPLookup(provider, result string, duration time.Duration) {
	GeoIPLookups.WithLabelValues(provider, result).Inc()
	GeoIPLookupDuration.Observe(duration.Seconds())
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
