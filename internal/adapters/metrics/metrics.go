package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"registrar/internal/domain/program"
)

// ProgramUnknown labels registrations whose program key is not a known type.
const ProgramUnknown = "unknown"

// Registration outcomes counted by RegistrationOutcome.
const (
	OutcomeCreated          = "created"
	OutcomeInvalid          = "invalid"
	OutcomeSpam             = "spam"
	OutcomeFailed           = "failed"
	OutcomeNeedsRepair      = "needs_repair"
	OutcomeWaitlisted       = "waitlisted"
	OutcomeAccountCreated   = "account_created"
	OutcomeAccountSkipped   = "account_skipped"
	OutcomeProjectionDiffer = "projection_mismatch"
)

// Metrics holds the service's Prometheus collectors on a private registry.
// All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	RequestDuration      *prometheus.HistogramVec
	QueryDuration        *prometheus.HistogramVec
	QueryErrors          *prometheus.CounterVec
	Registrations        *prometheus.CounterVec
	NotificationFailures *prometheus.CounterVec
	ProbeResults         *prometheus.CounterVec
	AdminUpdates         *prometheus.CounterVec
}

// New creates and registers all collectors, including Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "registrar_http_request_duration_seconds",
			Help:    "HTTP request duration by method, route pattern and status",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route", "status"}),
		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "registrar_db_query_duration_seconds",
			Help:    "SQLite call duration by operation",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5},
		}, []string{"op"}),
		QueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registrar_db_query_errors_total",
			Help: "SQLite calls that returned an error, by operation",
		}, []string{"op"}),
		Registrations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registrar_registrations_total",
			Help: "Registration submissions by program and outcome",
		}, []string{"program", "outcome"}),
		NotificationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registrar_notification_failures_total",
			Help: "Notifications that could not be delivered, by action type",
		}, []string{"action"}),
		ProbeResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registrar_linkage_probe_results_total",
			Help: "Account existence probe outcomes",
		}, []string{"result"}),
		AdminUpdates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registrar_admin_updates_total",
			Help: "Admin registration updates by result",
		}, []string{"result"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveQuery records one database call.
func (m *Metrics) ObserveQuery(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.QueryDuration.WithLabelValues(op).Observe(d.Seconds())
	if err != nil {
		m.QueryErrors.WithLabelValues(op).Inc()
	}
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// RegistrationOutcome counts a submission result.
// A program outside the known types is counted as ProgramUnknown.
func (m *Metrics) RegistrationOutcome(programType, outcome string) {
	if m == nil {
		return
	}
	t, err := program.ParseType(programType)
	label := string(t)
	if err != nil {
		label = ProgramUnknown
	}
	m.Registrations.WithLabelValues(label, outcome).Inc()
}

// NotificationFailed counts an undelivered notification.
func (m *Metrics) NotificationFailed(action string) {
	if m == nil {
		return
	}
	m.NotificationFailures.WithLabelValues(action).Inc()
}

// ProbeResult counts an existence probe outcome.
func (m *Metrics) ProbeResult(result string) {
	if m == nil {
		return
	}
	m.ProbeResults.WithLabelValues(result).Inc()
}

// AdminUpdate counts an admin update result (applied, unchanged, rejected).
func (m *Metrics) AdminUpdate(result string) {
	if m == nil {
		return
	}
	m.AdminUpdates.WithLabelValues(result).Inc()
}
