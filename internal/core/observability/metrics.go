// Package observability holds the Prometheus instruments of the resolver.
package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "upstream_latency_seconds",
			Help: "Latency of upstream calls in seconds.",
			// overpass region queries may run for minutes
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 16),
		},
		[]string{"upstream"},
	)

	upstreamErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_errors_total",
			Help: "Failed upstream calls by kind.",
		},
		[]string{"upstream", "kind"},
	)

	resolveResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resolve_results_total",
			Help: "Resolution calls by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	regionIDsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "region_ids_total",
			Help: "Region relation ids seen by discovery sessions, by disposition.",
		},
		[]string{"disposition"},
	)

	stateOpDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "state_store_operation_duration_seconds",
			Help:    "Duration of session state store operations.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op", "result"},
	)

	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "region_sessions_active",
			Help: "Open region discovery sessions.",
		},
	)
)

// Outcomes of a resolution call.
const (
	OutcomeFound    = "found"
	OutcomeEmpty    = "empty"
	OutcomeInvalid  = "invalid"
	OutcomeUpstream = "upstream_error"
)

// Collectors returns all instruments, for registration on a custom registry.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal,
		httpRequestDurationSeconds,
		upstreamLatencySeconds,
		upstreamErrorsTotal,
		resolveResultsTotal,
		regionIDsTotal,
		stateOpDurationSeconds,
		activeSessions,
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstreamLatency(upstream string, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(upstream).Observe(durationSeconds)
}

func IncUpstreamError(upstream, kind string) {
	upstreamErrorsTotal.WithLabelValues(upstream, kind).Inc()
}

func IncResolve(op, outcome string) {
	resolveResultsTotal.WithLabelValues(op, outcome).Inc()
}

// AddRegionIDs counts ids that were new, already emitted, or left for retry.
func AddRegionIDs(disposition string, n int) {
	if n <= 0 {
		return
	}
	regionIDsTotal.WithLabelValues(disposition).Add(float64(n))
}

func ObserveStateOp(op string, err error, durationSeconds float64) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	stateOpDurationSeconds.WithLabelValues(op, result).Observe(durationSeconds)
}

func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}
