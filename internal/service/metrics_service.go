package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP surface
// and the pass lifecycle counters.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	passesCreated   *prometheus.CounterVec
	passesClosed    *prometheus.CounterVec
	passesDenied    prometheus.Counter
	passesExpired   prometheus.Counter
	escalations     *prometheus.CounterVec
	sweepDuration   prometheus.Histogram
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	passesCreated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "passes_created_total",
		Help: "Total passes created, by pass type",
	}, []string{"type"})

	passesClosed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "passes_closed_total",
		Help: "Total passes closed, by close reason",
	}, []string{"reason"})

	passesDenied := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "passes_denied_total",
		Help: "Total pass requests denied by policy",
	})

	passesExpired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "passes_expired_total",
		Help: "Total passes auto-expired by the overdue sweep",
	})

	escalations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pass_escalations_total",
		Help: "Total escalation notifications dispatched, by tier",
	}, []string{"tier"})

	sweepDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sweep_duration_seconds",
		Help:    "Duration of overdue sweep runs",
		Buckets: prometheus.DefBuckets,
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, passesCreated, passesClosed,
		passesDenied, passesExpired, escalations, sweepDuration, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		passesCreated:   passesCreated,
		passesClosed:    passesClosed,
		passesDenied:    passesDenied,
		passesExpired:   passesExpired,
		escalations:     escalations,
		sweepDuration:   sweepDuration,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records per-route request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// IncPassCreated counts one issued pass.
func (m *MetricsService) IncPassCreated(passType string) {
	if m == nil {
		return
	}
	m.passesCreated.WithLabelValues(passType).Inc()
}

// IncPassDenied counts one policy denial.
func (m *MetricsService) IncPassDenied() {
	if m == nil {
		return
	}
	m.passesDenied.Inc()
}

// IncPassClosed counts one closed pass.
func (m *MetricsService) IncPassClosed(reason string) {
	if m == nil {
		return
	}
	m.passesClosed.WithLabelValues(reason).Inc()
}

// IncPassExpired counts one auto-expiry.
func (m *MetricsService) IncPassExpired() {
	if m == nil {
		return
	}
	m.passesExpired.Inc()
	m.passesClosed.WithLabelValues("expired").Inc()
}

// IncEscalation counts one dispatched escalation at the given tier.
func (m *MetricsService) IncEscalation(tier string) {
	if m == nil {
		return
	}
	m.escalations.WithLabelValues(tier).Inc()
}

// ObserveSweep records the wall time of one overdue sweep run.
func (m *MetricsService) ObserveSweep(duration time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(duration.Seconds())
}
