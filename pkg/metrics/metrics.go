// Package metrics provides Prometheus instrumentation for the matching
// engine. Counters report only plaintext-visible events; nothing here
// observes encrypted state.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OrdersPlaced counts orders accepted by the validator.
	OrdersPlaced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ciphermatch_orders_placed_total",
		Help: "Orders accepted at creation",
	})

	// OrdersRejected counts orders rejected by encrypted validation.
	OrdersRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ciphermatch_orders_rejected_total",
		Help: "Orders rejected by parameter validation",
	})

	// OrdersCancelled counts owner and override cancellations.
	OrdersCancelled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ciphermatch_orders_cancelled_total",
		Help: "Orders cancelled, partitioned by initiator",
	}, []string{"initiator"})

	// FillsExecuted counts fills that crossed the decision boundary with a
	// non-zero amount.
	FillsExecuted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ciphermatch_fills_executed_total",
		Help: "Non-zero fills applied to orders",
	})

	// OrdersExpired counts orders finalized by the expiration sweep.
	OrdersExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ciphermatch_orders_expired_total",
		Help: "Orders finalized by expiration sweeps",
	})

	// OrdersRenewed counts auto-renewals applied at sweep time.
	OrdersRenewed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ciphermatch_orders_renewed_total",
		Help: "Orders auto-renewed at sweep time",
	})

	// RevealFailures counts indeterminate reveals degraded to defaults.
	RevealFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ciphermatch_reveal_failures_total",
		Help: "Reveals that degraded to the caller default",
	})

	// OpenOrders tracks currently open orders.
	OpenOrders = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ciphermatch_open_orders",
		Help: "Currently open orders",
	})

	// TickDuration tracks end-to-end tick processing time.
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ciphermatch_tick_duration_seconds",
		Help:    "Tick processing duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// SweepDuration tracks hour-bucket expiration sweep time.
	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ciphermatch_sweep_duration_seconds",
		Help:    "Expiration sweep duration in seconds",
		Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1.0},
	})

	// WebSocketClients tracks connected fill-feed subscribers.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ciphermatch_websocket_clients",
		Help: "Connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ciphermatch_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ciphermatch_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request metrics around an HTTP handler.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)

		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
