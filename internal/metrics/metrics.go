// Package metrics provides Prometheus instrumentation for the decision engine.
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
	// PredictionsSubmitted counts prediction jobs submitted, by model.
	PredictionsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapbet_predictions_submitted_total",
		Help: "Total prediction jobs submitted",
	}, []string{"model"})

	// PredictionsCompleted counts terminal jobs, by final status.
	PredictionsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapbet_predictions_completed_total",
		Help: "Prediction jobs reaching a terminal status",
	}, []string{"status"})

	// PollDuration measures submit-to-terminal latency.
	PollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "snapbet_prediction_poll_duration_seconds",
		Help:    "Time from submission to terminal job status",
		Buckets: []float64{1, 5, 10, 30, 60, 120},
	})

	// TicketsBuilt counts order tickets, partitioned by pricing mode.
	TicketsBuilt = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapbet_tickets_built_total",
		Help: "Order tickets built, by pricing mode (priced or estimated)",
	}, []string{"mode"})

	// NoBetRecommendations counts recommendations the model declined to size.
	NoBetRecommendations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snapbet_no_bet_total",
		Help: "Recommendations flagged no-bet",
	})

	// PositionsSettled counts settlements by outcome.
	PositionsSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapbet_positions_settled_total",
		Help: "Positions settled, by outcome",
	}, []string{"outcome"})

	// ActivePositions tracks currently open positions across users.
	ActivePositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "snapbet_active_positions",
		Help: "Number of currently active tracked positions",
	})

	// RiskRejections counts positions rejected by the exposure limiter.
	RiskRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snapbet_risk_rejections_total",
		Help: "Position accepts rejected by the exposure limiter",
	})

	// QuoteFetches counts market quote lookups by resulting status.
	QuoteFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapbet_quote_fetches_total",
		Help: "Market quote lookups, by quote status",
	}, []string{"status"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "snapbet_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapbet_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "snapbet_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; routes here are low-cardinality.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
