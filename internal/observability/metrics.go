package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	salesCreated    prometheus.Counter
	salesCancelled  prometheus.Counter
	txConflicts     prometheus.Counter
	jobRuns         *prometheus.CounterVec
	integrityDrift  *prometheus.CounterVec
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "caldera_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "caldera_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	salesCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "caldera_sales_created_total",
		Help: "Sales committed successfully.",
	})
	salesCancelled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "caldera_sales_cancelled_total",
		Help: "Sales cancelled successfully.",
	})
	txConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "caldera_tx_conflicts_total",
		Help: "Sale transactions aborted by concurrency conflicts.",
	})
	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "caldera_jobs_total",
		Help: "Background job runs by job name and result.",
	}, []string{"job", "result"})
	integrityDrift := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "caldera_integrity_drift_total",
		Help: "Integrity findings by scan kind.",
	}, []string{"kind"})
	registry.MustRegister(requests, duration, salesCreated, salesCancelled, txConflicts, jobRuns, integrityDrift)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		salesCreated:    salesCreated,
		salesCancelled:  salesCancelled,
		txConflicts:     txConflicts,
		jobRuns:         jobRuns,
		integrityDrift:  integrityDrift,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// SaleCreated increments the created-sales counter.
func (m *Metrics) SaleCreated() {
	if m != nil {
		m.salesCreated.Inc()
	}
}

// SaleCancelled increments the cancelled-sales counter.
func (m *Metrics) SaleCancelled() {
	if m != nil {
		m.salesCancelled.Inc()
	}
}

// TxConflict increments the concurrency-conflict counter.
func (m *Metrics) TxConflict() {
	if m != nil {
		m.txConflicts.Inc()
	}
}

// JobRun records one background job execution.
func (m *Metrics) JobRun(job, result string) {
	if m != nil {
		m.jobRuns.WithLabelValues(job, result).Inc()
	}
}

// IntegrityDrift records one integrity finding.
func (m *Metrics) IntegrityDrift(kind string) {
	if m != nil {
		m.integrityDrift.WithLabelValues(kind).Inc()
	}
}

// Middleware records metrics for every HTTP request.
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
