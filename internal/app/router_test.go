package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpserver "github.com/fairyhunter13/jobfeed/internal/adapter/httpserver"
	"github.com/fairyhunter13/jobfeed/internal/config"
	"github.com/fairyhunter13/jobfeed/internal/domain"
)

type stubSearcher struct{}

func (stubSearcher) SearchListings(domain.Context, domain.SearchFilters) ([]domain.Listing, error) {
	return nil, nil
}

func (stubSearcher) CountListings(domain.Context, domain.SearchFilters) (int64, error) {
	return 0, nil
}

func testRouter() http.Handler {
	cfg := config.Config{JobAgeLimitDays: 90, RateLimitPerMin: 120, CORSAllowOrigins: "*"}
	srv := httpserver.NewServer(cfg, stubSearcher{}, nil, nil, "$",
		func(context.Context) error { return nil })
	return BuildRouter(cfg, srv)
}

func TestRouterRoutes(t *testing.T) {
	t.Parallel()
	router := testRouter()

	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/v1/listings"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouterSetsSecurityHeaders(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestRouterEchoesRequestID(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "req-42")
	testRouter().ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-Id"))
}

func TestParseOrigins(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"*"}, ParseOrigins(""))
	assert.Equal(t, []string{"*"}, ParseOrigins("*"))
	assert.Equal(t, []string{"https://a.example", "https://b.example"},
		ParseOrigins(" https://a.example, https://b.example "))
	assert.Equal(t, []string{"*"}, ParseOrigins(" , "))
}
