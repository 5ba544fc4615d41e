package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheLookups counts cache reads by namespace and result (hit|miss|expired|error).
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "winewize_cache_lookups_total",
			Help: "Total number of pairing cache lookups",
		},
		[]string{"namespace", "result"},
	)

	// AIRequests counts calls to the AI provider by operation and status (ok|error).
	AIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "winewize_ai_requests_total",
			Help: "Total number of AI provider requests",
		},
		[]string{"operation", "status"},
	)

	// FallbackSource records which source the wine fallback chain resolved from.
	FallbackSource = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "winewize_fallback_source_total",
			Help: "Wine lookups by the storage source that satisfied them",
		},
		[]string{"source"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "winewize_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
