package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Grant inventory metrics
	GrantsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rolesweep_grants_total",
			Help: "Persisted grants by class",
		},
		[]string{"class"},
	)

	GrantsExpiredPending = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rolesweep_grants_expired_pending",
			Help: "Expired grants still present in the store by class",
		},
		[]string{"class"},
	)

	// Reconciliation metrics
	GrantsReconciled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rolesweep_grants_reconciled_total",
			Help: "Expired grants processed by class and outcome",
		},
		[]string{"class", "outcome"},
	)

	ReconciliationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rolesweep_reconciliation_duration_seconds",
			Help:    "Reconciliation run duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"filter"},
	)

	ReconciliationRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rolesweep_reconciliation_runs_total",
			Help: "Reconciliation runs by filter and result",
		},
		[]string{"filter", "result"},
	)

	RemoveRolesCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rolesweep_remove_roles_calls_total",
			Help: "Batched role removal calls by result",
		},
		[]string{"result"},
	)

	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rolesweep_notifications_total",
			Help: "Expiry notifications dispatched by result",
		},
		[]string{"result"},
	)

	CascadeRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rolesweep_cascade_total",
			Help: "Premium cascade invocations by result",
		},
		[]string{"result"},
	)

	// Platform API metrics
	PlatformRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rolesweep_platform_requests_total",
			Help: "Platform API requests by method and status",
		},
		[]string{"method", "status"},
	)

	PlatformRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rolesweep_platform_request_duration_seconds",
			Help:    "Platform API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(GrantsTotal)
	prometheus.MustRegister(GrantsExpiredPending)
	prometheus.MustRegister(GrantsReconciled)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationRuns)
	prometheus.MustRegister(RemoveRolesCalls)
	prometheus.MustRegister(Notifications)
	prometheus.MustRegister(CascadeRuns)
	prometheus.MustRegister(PlatformRequests)
	prometheus.MustRegister(PlatformRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
