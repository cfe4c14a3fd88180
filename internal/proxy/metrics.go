package proxy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts handled rerank requests by outcome: ok or the
	// error kind (validation, connection, timeout, backend_protocol, unknown).
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rerankd_proxy_requests_total",
			Help: "Rerank requests handled by the proxy, by outcome",
		},
		[]string{"outcome"},
	)

	// ResultsReturned tracks how many results successful responses carry.
	ResultsReturned = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rerankd_proxy_results",
			Help:    "Number of results per successful rerank response",
			Buckets: []float64{0, 1, 3, 5, 10, 25, 50, 100, 250, 1000},
		},
	)

	// BackendDuration tracks backend exchange latency as seen by the proxy.
	BackendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rerankd_proxy_backend_duration_seconds",
			Help:    "Duration of backend exchanges for successful requests",
			Buckets: prometheus.DefBuckets,
		},
	)
)
