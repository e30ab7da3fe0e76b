// Package metrics provides Prometheus metrics recording for internal packages.
// This package exists to avoid import cycles between database, repository and worker packages.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SlowQueryThreshold marks a database operation as slow
const SlowQueryThreshold = 100 * time.Millisecond

var (
	// dbQueryDuration tracks database operation duration in seconds
	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gpdata_db_query_duration_seconds",
			Help:    "Database operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"collection", "operation"},
	)

	// dbQueryTotal tracks total database operations
	dbQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpdata_db_queries_total",
			Help: "Total number of database operations",
		},
		[]string{"collection", "operation"},
	)

	// dbQueryErrors tracks database operation errors by error kind
	dbQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpdata_db_query_errors_total",
			Help: "Total number of database operation errors",
		},
		[]string{"collection", "operation", "kind"},
	)

	// dbSlowQueries tracks slow database operations
	dbSlowQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpdata_db_slow_queries_total",
			Help: "Total number of slow database operations (>100ms)",
		},
		[]string{"collection", "operation"},
	)
)

// RecordDBQuery records database operation metrics
func RecordDBQuery(collection, operation string, duration time.Duration) {
	dbQueryTotal.WithLabelValues(collection, operation).Inc()
	dbQueryDuration.WithLabelValues(collection, operation).Observe(duration.Seconds())

	// Track slow queries
	if duration > SlowQueryThreshold {
		dbSlowQueries.WithLabelValues(collection, operation).Inc()
	}
}

// RecordDBError records a database operation error
func RecordDBError(collection, operation, kind string) {
	dbQueryErrors.WithLabelValues(collection, operation, kind).Inc()
}
