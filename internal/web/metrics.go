package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hpungsan/margin/internal/logger"
)

var (
	// requestsTotal counts API requests by route and status code
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "margin_http_requests_total",
		Help: "Total HTTP requests by route, method and status code",
	}, []string{"route", "method", "code"})

	// requestDuration tracks request latency per route
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "margin_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
	}, []string{"route"})

	// annotationMutations counts successful store mutations by kind
	annotationMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "margin_annotation_mutations_total",
		Help: "Annotation store mutations by operation",
	}, []string{"operation"})
)

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// instrument records metrics and a log line for every request.
func instrument(log *logger.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		requestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		requestDuration.WithLabelValues(route).Observe(elapsed.Seconds())

		if route == "GET /metrics" {
			return
		}
		log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", elapsed.Milliseconds(),
		)
	})
}
