// Package metrics exposes Prometheus collectors for project lifecycle
// operations, the reconciler, and the terminal gateway.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ProjectsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sandboxd_projects_total",
			Help: "Total number of projects by status",
		},
		[]string{"status"},
	)

	ProjectCreateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sandboxd_project_create_duration_seconds",
			Help:    "Time taken to create a project end to end",
			Buckets: prometheus.DefBuckets,
		},
	)

	ProjectStopDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sandboxd_project_stop_duration_seconds",
			Help:    "Time taken to stop (snapshot) a project",
			Buckets: prometheus.DefBuckets,
		},
	)

	ProjectStartDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sandboxd_project_start_duration_seconds",
			Help:    "Time taken to start (restore) a project",
			Buckets: prometheus.DefBuckets,
		},
	)

	ProjectDeleteDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sandboxd_project_delete_duration_seconds",
			Help:    "Time taken to delete a project",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sandboxd_reconciliation_duration_seconds",
			Help:    "Time taken for a reconciliation cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sandboxd_reconciliation_cycles_total",
			Help: "Total number of reconciliation cycles completed",
		},
	)

	StuckProjectsRecoveredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sandboxd_stuck_projects_recovered_total",
			Help: "Total number of projects reset from a stuck transitional state to error",
		},
	)

	IdleProjectsSnapshottedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sandboxd_idle_projects_snapshotted_total",
			Help: "Total number of projects auto-snapshotted for being idle",
		},
	)

	TerminalConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sandboxd_terminal_connections_active",
			Help: "Number of currently open terminal relay connections",
		},
	)

	TerminalConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandboxd_terminal_connections_total",
			Help: "Total terminal connections by close reason",
		},
		[]string{"close_code"},
	)

	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandboxd_api_requests_total",
			Help: "Total API requests by method, route, and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sandboxd_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func init() {
	prometheus.MustRegister(
		ProjectsTotal,
		ProjectCreateDuration,
		ProjectStopDuration,
		ProjectStartDuration,
		ProjectDeleteDuration,
		ReconciliationDuration,
		ReconciliationCyclesTotal,
		StuckProjectsRecoveredTotal,
		IdleProjectsSnapshottedTotal,
		TerminalConnectionsActive,
		TerminalConnectionsTotal,
		APIRequestsTotal,
		APIRequestDuration,
	)
}

// Handler returns the Prometheus scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
