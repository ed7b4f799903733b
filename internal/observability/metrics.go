// Package observability exposes Prometheus metrics for the service core.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the application's Prometheus metrics.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	transitionsTotal   *prometheus.CounterVec
	stockMovements     *prometheus.CounterVec
	paymentsTotal      prometheus.Counter
	invoicesFinalized  prometheus.Counter
	notificationsTotal *prometheus.CounterVec
}

// NewMetrics initialises the registry and the base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fixpoint_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fixpoint_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fixpoint_job_transitions_total",
		Help: "Committed job status transitions by target status.",
	}, []string{"to_status"})
	movements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fixpoint_stock_movements_total",
		Help: "Committed inventory movements by adjustment type.",
	}, []string{"type"})
	payments := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fixpoint_payments_recorded_total",
		Help: "Payments recorded against invoices.",
	})
	finalized := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fixpoint_invoices_finalized_total",
		Help: "Invoices finalized.",
	})
	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fixpoint_notifications_queued_total",
		Help: "Notifications queued for dispatch, by kind.",
	}, []string{"kind"})
	registry.MustRegister(requests, duration, transitions, movements, payments, finalized, notifications)
	return &Metrics{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:      requests,
		requestDuration:    duration,
		transitionsTotal:   transitions,
		stockMovements:     movements,
		paymentsTotal:      payments,
		invoicesFinalized:  finalized,
		notificationsTotal: notifications,
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

// Middleware records request count and duration per route.
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

// JobTransition counts one committed status transition.
func (m *Metrics) JobTransition(toStatus string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(toStatus).Inc()
}

// StockMovement counts one committed inventory movement.
func (m *Metrics) StockMovement(adjustmentType string) {
	if m == nil {
		return
	}
	m.stockMovements.WithLabelValues(adjustmentType).Inc()
}

// PaymentRecorded counts one recorded payment.
func (m *Metrics) PaymentRecorded() {
	if m == nil {
		return
	}
	m.paymentsTotal.Inc()
}

// InvoiceFinalized counts one finalized invoice.
func (m *Metrics) InvoiceFinalized() {
	if m == nil {
		return
	}
	m.invoicesFinalized.Inc()
}

// NotificationQueued counts one queued notification.
func (m *Metrics) NotificationQueued(kind string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(kind).Inc()
}

// Registerer exposes the registry for custom metric registration.
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
