package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitMetrics(t *testing.T) {
	assert.NotPanics(t, InitMetrics)
}

func TestHTTPMetricsMiddleware_PassesResponseThrough(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/listings", nil)
	h := HTTPMetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHTTPMetricsMiddleware_InsideRouter(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Use(HTTPMetricsMiddleware)
	r.Get("/v1/listings", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	ts := httptest.NewServer(r)
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/v1/listings")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestObserveSourceRun(t *testing.T) {
	t.Parallel()

	ObserveSourceRun("remotive", 1500*time.Millisecond, nil)
	ObserveSourceRun("wellfound", 2*time.Second, errors.New("feed down"))
}
