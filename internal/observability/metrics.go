package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	gatekeeper      *prometheus.CounterVec
	guard           *prometheus.CounterVec
	logins          *prometheus.CounterVec
	auditDropped    prometheus.Counter
}

// NewMetrics menginisialisasi registry, metrik HTTP dan metrik otorisasi.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rbacadmin_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rbacadmin_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	gatekeeper := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rbacadmin_gatekeeper_decisions_total",
		Help: "Keputusan gatekeeper untuk prefix terlindungi (allow/redirect).",
	}, []string{"outcome"})
	guard := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rbacadmin_guard_decisions_total",
		Help: "Keputusan route guard per permission dan hasil.",
	}, []string{"permission", "outcome"})
	logins := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rbacadmin_login_attempts_total",
		Help: "Percobaan login berdasarkan hasil.",
	}, []string{"result"})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rbacadmin_audit_events_dropped_total",
		Help: "Event audit yang dibuang karena antrean penuh.",
	})
	registry.MustRegister(requests, duration, gatekeeper, guard, logins, dropped)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		gatekeeper:      gatekeeper,
		guard:           guard,
		logins:          logins,
		auditDropped:    dropped,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// GatekeeperDecision counts an edge decision ("allow" or "redirect").
func (m *Metrics) GatekeeperDecision(outcome string) {
	if m == nil {
		return
	}
	m.gatekeeper.WithLabelValues(outcome).Inc()
}

// GuardDecision counts a route guard outcome for a permission.
func (m *Metrics) GuardDecision(permission, outcome string) {
	if m == nil {
		return
	}
	m.guard.WithLabelValues(permission, outcome).Inc()
}

// LoginAttempt counts a login outcome ("success" or a failure reason).
func (m *Metrics) LoginAttempt(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}

// AuditDropped counts an audit event lost to back-pressure.
func (m *Metrics) AuditDropped() {
	if m == nil {
		return
	}
	m.auditDropped.Inc()
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
