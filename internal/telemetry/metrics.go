// Package telemetry provides application-level observability for groupkeeper.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http(s)://<host>:<GK_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090.  The endpoint returns data in the Prometheus text exposition
// format and is intended to be scraped by a Prometheus server every 15–60 seconds.
// It is NOT served by the Gin router and is therefore absent from the public API surface.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Membership graph refresh duration and skip/error counters
//   - Expired membership edge counter (background expiry sweep)
//   - Notification email counter (membership request / expiry mail)
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/groups/:name)
// rather than the raw request URL to prevent unbounded label cardinality from
// user-supplied path segments such as group or user names.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics — labelled by method, route template, and status code.
//
// HTTPRequestsTotal is a CounterVec with labels {method, path, status}.
// The path label holds the Gin route template, NOT the raw URL, to prevent
// unbounded cardinality.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//
// HTTPRequestDuration is a HistogramVec with labels {method, path} and exponential-ish
// buckets from 5 ms to 30 s.  Use histogram_quantile to compute latency percentiles.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Membership graph metrics — recorded by the graph refresh background job.
//
// GraphRefreshDuration observes one complete rebuild of the in-memory membership
// graph from the database.  Refreshes that are skipped because the checkpoint
// counter has not moved are counted separately in GraphRefreshSkippedTotal and
// do not produce an observation here.
//
// Example PromQL queries:
//   - p95 rebuild time:  histogram_quantile(0.95, rate(graph_refresh_duration_seconds_bucket[1h]))
//   - Rebuilds per hour: increase(graph_refresh_duration_seconds_count[1h])
var (
	GraphRefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "graph_refresh_duration_seconds",
			Help:    "Duration of a full membership graph rebuild from the database.",
			Buckets: prometheus.DefBuckets,
		},
	)

	GraphRefreshSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "graph_refresh_skipped_total",
			Help: "Total number of graph refresh cycles skipped because the checkpoint was unchanged.",
		},
	)

	GraphRefreshErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "graph_refresh_errors_total",
			Help: "Total number of failed graph refresh attempts.",
		},
	)
)

// ExpiredEdgesTotal is incremented once per membership edge deactivated by the
// background expiry sweep.  A sudden spike usually means a bulk grant with a
// shared expiration date rolled over.
var ExpiredEdgesTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "expired_membership_edges_total",
		Help: "Total number of membership edges deactivated because their expiration passed.",
	},
)

// NotificationEmailsSentTotal is a CounterVec with label {kind} incremented once per
// email successfully delivered (kind: membership_request, request_resolved,
// edge_expired).  A stalled counter combined with pending requests is a useful
// alert signal for SMTP delivery failures.
var NotificationEmailsSentTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notification_emails_sent_total",
		Help: "Total number of notification emails successfully sent, by kind.",
	},
	[]string{"kind"},
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool.  It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request to avoid the overhead of sql.DB.Stats().
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits cleanly when the database becomes unreachable (db.Ping fails),
// which happens automatically when the application shuts down and defers db.Close().
//
// Call this once, immediately after db.Connect() succeeds in main.go.
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
