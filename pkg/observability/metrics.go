package observability

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization metrics
	AuthzDecisionsTotal *prometheus.CounterVec
	SnapshotDuration    prometheus.Histogram

	// Lifecycle metrics
	SignInGuardTotal   *prometheus.CounterVec
	InvitationsTotal   *prometheus.CounterVec
	StatusChangesTotal *prometheus.CounterVec

	// Email metrics
	EmailDispatchTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warden_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_authz_decisions_total",
				Help: "Authorization gate decisions by required permission and outcome",
			},
			[]string{"permission", "outcome"},
		),
		SnapshotDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "warden_rbac_snapshot_duration_seconds",
				Help:    "Time spent resolving an RBAC snapshot",
				Buckets: prometheus.DefBuckets,
			},
		),
		SignInGuardTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_signin_guard_total",
				Help: "Pre-sign-in guard outcomes",
			},
			[]string{"outcome"},
		),
		InvitationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_invitations_total",
				Help: "User invitation attempts by outcome",
			},
			[]string{"outcome"},
		),
		StatusChangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_account_status_changes_total",
				Help: "Account lifecycle transitions",
			},
			[]string{"to"},
		),
		EmailDispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_email_dispatch_total",
				Help: "Templated email dispatches by template and outcome",
			},
			[]string{"template", "outcome"},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "warden_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "warden_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthzDecisionsTotal,
		m.SnapshotDuration,
		m.SignInGuardTotal,
		m.InvitationsTotal,
		m.StatusChangesTotal,
		m.EmailDispatchTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// UpdateDBStats updates database connection pool gauges
func (m *Metrics) UpdateDBStats(db *sql.DB) {
	stats := db.Stats()
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
}

// PollDBStats refreshes the connection pool gauges every interval until
// ctx is cancelled.
func (m *Metrics) PollDBStats(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.UpdateDBStats(db)
		}
	}
}

// MetricsHandler returns an HTTP handler for the /metrics endpoint
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
