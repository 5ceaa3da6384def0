package docstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// metricCacheHits tracks cache hits per collection
	metricCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steward_docstore_cache_hits_total",
			Help: "Total number of accessor cache hits",
		},
		[]string{"collection"},
	)

	// metricCacheMisses tracks cache misses per collection
	metricCacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steward_docstore_cache_misses_total",
			Help: "Total number of accessor cache misses",
		},
		[]string{"collection"},
	)

	// metricRetryAttempts tracks retried store calls
	metricRetryAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "steward_docstore_retries_total",
			Help: "Total number of retried store operations",
		},
	)

	// metricOpDuration tracks store operation latency
	metricOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "steward_docstore_operation_seconds",
			Help:    "Store operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"collection", "operation"},
	)

	// metricOpErrors tracks failed operations by error kind
	metricOpErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steward_docstore_operation_errors_total",
			Help: "Total number of failed store operations",
		},
		[]string{"collection", "operation", "kind"},
	)

	// metricSubscriptionEvents tracks snapshots pushed to subscribers
	metricSubscriptionEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steward_docstore_subscription_events_total",
			Help: "Total number of subscription snapshots delivered",
		},
		[]string{"collection"},
	)
)
