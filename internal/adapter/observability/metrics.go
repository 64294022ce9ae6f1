package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	ListingsFetchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listings_fetched_total",
			Help: "Raw items enumerated per source before filtering",
		},
		[]string{"source"},
	)
	ListingsStoredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listings_stored_total",
			Help: "New listings persisted per source",
		},
		[]string{"source"},
	)
	ListingsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listings_dropped_total",
			Help: "Listings dropped per source and reason (old, dup, invalid)",
		},
		[]string{"source", "reason"},
	)
	SourceRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "source_run_duration_seconds",
			Help:    "Duration of one full source fetch-parse-store run",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"source"},
	)
	SourceRunsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_runs_failed_total",
			Help: "Source runs that ended in error (no watermark advance)",
		},
		[]string{"source"},
	)

	SchedulerJobFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_job_failures_total",
			Help: "Scheduled job executions that returned an error or panicked",
		},
		[]string{"job"},
	)

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of AI requests by provider and operation",
		},
		[]string{"provider", "operation"},
	)
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "AI request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider", "operation"},
	)
	AITokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_total",
			Help: "Estimated tokens sent to and received from the LLM",
		},
		[]string{"direction"},
	)

	FxRateFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fx_rate_fallbacks_total",
			Help: "FX lookups that failed and fell back to rate=1",
		},
	)
)

func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(ListingsFetchedTotal)
	prometheus.MustRegister(ListingsStoredTotal)
	prometheus.MustRegister(ListingsDroppedTotal)
	prometheus.MustRegister(SourceRunDuration)
	prometheus.MustRegister(SourceRunsFailedTotal)
	prometheus.MustRegister(SchedulerJobFailuresTotal)
	prometheus.MustRegister(AIRequestsTotal)
	prometheus.MustRegister(AIRequestDuration)
	prometheus.MustRegister(AITokensTotal)
	prometheus.MustRegister(FxRateFallbacksTotal)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

// ObserveSourceRun records the outcome of one source run.
func ObserveSourceRun(source string, dur time.Duration, err error) {
	SourceRunDuration.WithLabelValues(source).Observe(dur.Seconds())
	if err != nil {
		SourceRunsFailedTotal.WithLabelValues(source).Inc()
	}
}
