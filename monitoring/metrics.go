package monitoring

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	backendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_backend_requests_total",
			Help: "Backend REST calls by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	backendLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_backend_request_duration_seconds",
			Help:    "Backend REST call latency",
			Buckets: prometheus.ExponentialBuckets(0.025, 2, 10),
		},
		[]string{"endpoint"},
	)

	tokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_token_refresh_total",
			Help: "Access token refresh attempts by result",
		},
		[]string{"result"},
	)

	checkoutCompletions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_checkout_completions_total",
			Help: "Order placements by mode and result",
		},
		[]string{"mode", "result"},
	)

	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storefront_active_sessions",
			Help: "Visitor sessions currently held in memory",
		},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "storefront_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)
)

// Monitor is the single sink for storefront metrics. The zero value is
// usable; a nil *Monitor drops everything, which keeps tests quiet.
type Monitor struct{}

func NewMonitor() *Monitor {
	return &Monitor{}
}

// Track backend calls
func (m *Monitor) TrackBackendCall(endpoint, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	backendRequests.WithLabelValues(endpoint, outcome).Inc()
	backendLatency.WithLabelValues(endpoint).Observe(d.Seconds())
}

// Track token refresh
func (m *Monitor) TrackRefresh(result string) {
	if m == nil {
		return
	}
	tokenRefreshes.WithLabelValues(result).Inc()
}

// Track order placement
func (m *Monitor) TrackCompletion(mode, result string) {
	if m == nil {
		return
	}
	checkoutCompletions.WithLabelValues(mode, result).Inc()
}

func (m *Monitor) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	activeSessions.Set(float64(n))
}

func (m *Monitor) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	breakerState.WithLabelValues(name).Set(float64(state))
}

// Serve exposes /metrics on its own port until ctx is cancelled.
func (m *Monitor) Serve(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics listener started", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics listener stopped", "error", err)
	}
}
