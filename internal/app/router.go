// Package app is the composition root: it wires configuration,
// infrastructure clients, repositories and pipeline services into the
// runnable pieces the CLI commands start.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	httpserver "github.com/fairyhunter13/jobfeed/internal/adapter/httpserver"
	"github.com/fairyhunter13/jobfeed/internal/adapter/observability"
	"github.com/fairyhunter13/jobfeed/internal/config"
)

// ParseOrigins splits a comma-separated origin list into a slice, trimming spaces.
// If the input is empty, returns ["*"].
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.TimeoutMiddleware(30 * time.Second))
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Group(func(qr chi.Router) {
		qr.Use(httprate.LimitByIP(cfg.RateLimitPerMin, 1*time.Minute))
		qr.Get("/v1/listings", srv.ListingsHandler())
	})

	r.Get("/healthz", httpserver.HealthzHandler())
	r.Get("/readyz", srv.ReadyzHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) { promhttp.Handler().ServeHTTP(w, r) })

	return otelhttp.NewHandler(httpserver.SecurityHeaders(r), "jobfeed.api")
}
