// Package metrics exposes Prometheus instrumentation for sandboxed executions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "luabox_executions_total",
			Help: "Total number of sandboxed executions",
		},
		[]string{"outcome"},
	)

	ExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "luabox_execution_duration_ms",
			Help:    "Execution duration in milliseconds, including wrapper staging",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"outcome"},
	)

	ActiveExecutions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "luabox_active_executions",
			Help: "Number of interpreter processes currently running",
		},
	)

	ArtifactCleanupFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "luabox_artifact_cleanup_failures_total",
			Help: "Total number of wrapper files that could not be removed",
		},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "luabox_rate_limit_hits_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
