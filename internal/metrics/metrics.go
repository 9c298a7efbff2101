// Package metrics holds the prometheus collectors shared by the data layer,
// the order engine and the HTTP middleware.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// DBRetries counts re-executions caused by transient database errors.
	DBRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retailcore_db_retries_total",
			Help: "Total number of database operations retried after a transient error",
		},
		[]string{"op"}, // query | exec | transaction
	)

	// DBOperationDuration includes every retry of one logical operation.
	DBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "retailcore_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op", "outcome"},
	)

	OrdersPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retailcore_orders_placed_total",
			Help: "Order placement attempts by result",
		},
		[]string{"result"}, // created | duplicate | rejected | error
	)

	OrderTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retailcore_order_transitions_total",
			Help: "Committed order status transitions",
		},
		[]string{"to"},
	)

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retailcore_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "retailcore_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retailcore_order_events_total",
			Help: "Order events handled by the worker pool",
		},
		[]string{"sink", "result"}, // sink: pubsub | kafka
	)
)

var registerOnce sync.Once

// Register adds all collectors to reg once per process.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(
			DBRetries,
			DBOperationDuration,
			OrdersPlaced,
			OrderTransitions,
			HTTPRequests,
			HTTPDuration,
			EventsPublished,
		)
	})
}

// ObserveDB records the duration of one logical database operation.
func ObserveDB(op string, err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	DBOperationDuration.WithLabelValues(op, outcome).Observe(elapsed.Seconds())
}
