// Package metrics provides Prometheus instrumentation for the trading engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ActiveMatches tracks matches currently running.
	ActiveMatches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "leverclick_active_matches",
		Help: "Number of currently running matches",
	})

	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leverclick_ticks_total",
		Help: "Total number of economy ticks applied",
	})

	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "leverclick_tick_duration_seconds",
		Help:    "Time spent applying one tick under the match lock",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
	})

	// PositionsOpened counts opened and merged positions by direction.
	PositionsOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leverclick_positions_opened_total",
		Help: "Positions opened or merged",
	}, []string{"direction"})

	// PositionsClosed counts settled positions; reason is manual or liquidated.
	PositionsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leverclick_positions_closed_total",
		Help: "Positions settled",
	}, []string{"reason"})

	Bankruptcies = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leverclick_bankruptcies_total",
		Help: "Players forced into bankruptcy by a payment",
	})

	RejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leverclick_rejections_total",
		Help: "Player commands rejected by validation",
	}, []string{"operation", "reason"})

	// PublishFailures counts presentation updates a publisher could not deliver.
	PublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leverclick_publish_failures_total",
		Help: "Match updates a publisher failed to deliver",
	}, []string{"publisher"})

	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "leverclick_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leverclick_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "leverclick_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request count and latency, labelled by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
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

// Hijack lets the WebSocket upgrade pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}
