package obs

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"durga.org/internal/directory"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	workflowTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "directory_workflow_total",
			Help: "Directory mutations by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	raceRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "directory_grant_race_retries_total",
			Help: "Insert races resolved by retrying as an update.",
		},
		[]string{"operation"},
	)

	initOnce sync.Once
)

// Init registers all metrics in the default registry. Repeated calls are no-ops.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration, workflowTotal, raceRetries)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records in-flight, count and latency per route. Routed requests are labelled
// with their chi pattern, everything else with CanonicalPath.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		path := ""
		if rc := chi.RouteContext(r.Context()); rc != nil {
			path = rc.RoutePattern()
		}
		if path == "" {
			path = CanonicalPath(r.URL.Path)
		}
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// collections whose next path segment is an identifier.
var collections = map[string]bool{
	"identities":  true,
	"roles":       true,
	"teams":       true,
	"departments": true,
	"members":     true,
}

// CanonicalPath replaces identifier segments with :id to bound label cardinality.
func CanonicalPath(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" {
		return "/"
	}
	segs := strings.Split(strings.Trim(raw, "/"), "/")
	for i := 1; i < len(segs); i++ {
		if collections[segs[i-1]] && segs[i] != "" {
			segs[i] = ":id"
		}
	}
	return "/" + strings.Join(segs, "/")
}

// Outcome classifies a workflow error into a metric label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, directory.ErrNotFound):
		return "not_found"
	case errors.Is(err, directory.ErrConflict):
		return "conflict"
	case errors.Is(err, directory.ErrInactive):
		return "inactive"
	case errors.Is(err, directory.ErrInvalidArgument):
		return "invalid"
	default:
		return "error"
	}
}

// WorkflowMetrics reports directory.Service outcomes to Prometheus.
type WorkflowMetrics struct{}

var _ directory.Metrics = WorkflowMetrics{}

func (WorkflowMetrics) Workflow(operation string, err error) {
	workflowTotal.WithLabelValues(operation, Outcome(err)).Inc()
}

func (WorkflowMetrics) RaceRetry(operation string) {
	raceRetries.WithLabelValues(operation).Inc()
}
