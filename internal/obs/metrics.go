package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Shared HTTP metrics
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

	// RemoteOps counts record-store calls issued by the workspace by outcome
	// (committed, rolled_back, diverged, failed).
	RemoteOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casedesk_remote_ops_total",
			Help: "Remote record store operations by outcome.",
		},
		[]string{"op", "outcome"},
	)

	initOnce sync.Once
)

// Init registers metrics in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration, RemoteOps)
	})
}

// Handler exposes the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRemote records one remote operation outcome.
func ObserveRemote(op, outcome string) {
	RemoteOps.WithLabelValues(op, outcome).Inc()
}

// Instrument measures request rate, latency and in-flight count.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// collections whose second segment is a record id.
var idCollections = map[string]map[string]bool{
	"events": {"": true, "reschedule": true, "toggle": true, "case": true, "messages": true},
	"cases":  {"": true, "events": true, "documents": true},
}

// CanonicalPath collapses record ids so label cardinality stays bounded.
func CanonicalPath(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(raw, "/"), "/")
	if len(parts) >= 3 && parts[0] == "v1" && parts[1] == "files" {
		return "/v1/files/:key"
	}
	if len(parts) < 3 || len(parts) > 4 || parts[0] != "v1" {
		return raw
	}
	subs, ok := idCollections[parts[1]]
	if !ok {
		return raw
	}
	sub := ""
	if len(parts) == 4 {
		sub = parts[3]
	}
	if !subs[sub] {
		return raw
	}
	parts[2] = ":id"
	return "/" + strings.Join(parts, "/")
}

// statusWriter is a local copy so the response code is known.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming responses working through the wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
