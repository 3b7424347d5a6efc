package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors of the service
type Metrics struct {
	// HTTP request metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Graph metrics
	GraphBuilds        prometheus.Counter
	GraphBuildWarnings prometheus.Counter
	LayoutDuration     *prometheus.HistogramVec

	// Relationship metrics
	ForeignKeyProposals *prometheus.CounterVec
	ForeignKeyDeletions *prometheus.CounterVec

	// Backend metrics
	BackendRequests        *prometheus.CounterVec
	BackendRequestDuration *prometheus.HistogramVec

	// Session metrics
	ActiveSessions prometheus.Gauge
	TableDrops     *prometheus.CounterVec
}

var (
	metrics  *Metrics
	initOnce sync.Once
)

// Init registers every collector with the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		metrics = &Metrics{
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "schemacanvas_http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "endpoint", "status"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "schemacanvas_http_request_duration_seconds",
					Help:    "HTTP request latency in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method", "endpoint"},
			),

			GraphBuilds: promauto.NewCounter(prometheus.CounterOpts{
				Name: "schemacanvas_graph_builds_total",
				Help: "Total number of schema graph builds",
			}),
			GraphBuildWarnings: promauto.NewCounter(prometheus.CounterOpts{
				Name: "schemacanvas_graph_build_warnings_total",
				Help: "Records skipped or dropped while building schema graphs",
			}),
			LayoutDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "schemacanvas_layout_duration_seconds",
					Help:    "Time spent computing auto layouts",
					Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
				},
				[]string{"direction"},
			),

			ForeignKeyProposals: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "schemacanvas_fk_proposals_total",
					Help: "Foreign key proposals by outcome",
				},
				[]string{"outcome"},
			),
			ForeignKeyDeletions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "schemacanvas_fk_deletions_total",
					Help: "Foreign key deletions by outcome",
				},
				[]string{"outcome"},
			),

			BackendRequests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "schemacanvas_backend_requests_total",
					Help: "Calls to the schema backend",
				},
				[]string{"operation", "status"},
			),
			BackendRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "schemacanvas_backend_request_duration_seconds",
					Help:    "Schema backend call latency in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"operation"},
			),

			ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "schemacanvas_active_sessions",
				Help: "Number of open editing sessions",
			}),
			TableDrops: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "schemacanvas_table_drops_total",
					Help: "Tables dropped onto a canvas by final state",
				},
				[]string{"state"},
			),
		}
	})
}

// Get returns the initialized metrics, or nil before Init.
func Get() *Metrics {
	return metrics
}

func RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	if metrics == nil {
		return
	}
	metrics.HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	metrics.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordGraphBuild records one schema build and the number of records it had to skip
func RecordGraphBuild(warnings int) {
	if metrics == nil {
		return
	}
	metrics.GraphBuilds.Inc()
	metrics.GraphBuildWarnings.Add(float64(warnings))
}

func RecordLayout(direction string, duration time.Duration) {
	if metrics == nil {
		return
	}
	metrics.LayoutDuration.WithLabelValues(direction).Observe(duration.Seconds())
}

// RecordForeignKeyProposal outcome is one of committed, rejected, invalid or cancelled
func RecordForeignKeyProposal(outcome string) {
	if metrics == nil {
		return
	}
	metrics.ForeignKeyProposals.WithLabelValues(outcome).Inc()
}

func RecordForeignKeyDeletion(outcome string) {
	if metrics == nil {
		return
	}
	metrics.ForeignKeyDeletions.WithLabelValues(outcome).Inc()
}

func RecordBackendRequest(operation string, err error, duration time.Duration) {
	if metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.BackendRequests.WithLabelValues(operation, status).Inc()
	metrics.BackendRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func SessionOpened() {
	if metrics == nil {
		return
	}
	metrics.ActiveSessions.Inc()
}

func SessionClosed() {
	if metrics == nil {
		return
	}
	metrics.ActiveSessions.Dec()
}

func RecordTableDrop(state string) {
	if metrics == nil {
		return
	}
	metrics.TableDrops.WithLabelValues(state).Inc()
}
