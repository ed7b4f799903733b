package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	metrics := NewMetrics()
	metrics.JobTransition("READY")
	metrics.StockMovement("DEDUCT")
	metrics.PaymentRecorded()
	metrics.InvoiceFinalized()
	metrics.NotificationQueued("JOB_READY")

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	metrics.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		`fixpoint_job_transitions_total{to_status="READY"} 1`,
		`fixpoint_stock_movements_total{type="DEDUCT"} 1`,
		`fixpoint_payments_recorded_total 1`,
		`fixpoint_invoices_finalized_total 1`,
		`fixpoint_notifications_queued_total{kind="JOB_READY"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func TestMetricsMiddlewareRecordsRoute(t *testing.T) {
	metrics := NewMetrics()
	router := chi.NewRouter()
	router.Use(metrics.Middleware)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	mr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(mr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(mr.Body.String(), `fixpoint_http_requests_total{code="200",route="/healthz"} 1`) {
		t.Fatalf("request counter not recorded:\n%s", mr.Body.String())
	}
}

func TestNilMetricsSafe(t *testing.T) {
	var m *Metrics
	m.JobTransition("READY")
	m.StockMovement("ADD")
	m.PaymentRecorded()
	m.InvoiceFinalized()
	m.NotificationQueued("LOW_STOCK")

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
}
