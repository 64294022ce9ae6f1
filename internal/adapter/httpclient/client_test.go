package httpclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestClientGet(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "jobfeed-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "1", mustCookie(r, "session"))
		_, _ = w.Write([]byte("payload"))
	}))
	defer ts.Close()

	c := New(Options{
		Headers: map[string]string{"User-Agent": "jobfeed-test"},
		Cookies: []*http.Cookie{{Name: "session", Value: "1"}},
		Policy:  fastPolicy(1),
	})
	body, err := c.Get(t.Context(), ts.URL)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(body))
}

func mustCookie(r *http.Request, name string) string {
	ck, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return ck.Value
}

func TestClientGet_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("recovered"))
	}))
	defer ts.Close()

	c := New(Options{Policy: fastPolicy(5)})
	body, err := c.Get(t.Context(), ts.URL)
	require.NoError(t, err)
	assert.Equal(t, "recovered", string(body))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClientGet_ClientErrorFailsFast(t *testing.T) {
	t.Parallel()

	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "no such job", http.StatusNotFound)
	}))
	defer ts.Close()

	c := New(Options{Policy: fastPolicy(5)})
	_, err := c.Get(t.Context(), ts.URL)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "404 must not be retried")

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Contains(t, se.Body, "no such job")
}

func TestClientGetJSON(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"jobs":[{"title":"Go Engineer"}],"totalCount":1}`))
	}))
	defer ts.Close()

	var out struct {
		Jobs []struct {
			Title string `json:"title"`
		} `json:"jobs"`
		TotalCount int `json:"totalCount"`
	}
	c := New(Options{Policy: fastPolicy(1)})
	require.NoError(t, c.GetJSON(t.Context(), ts.URL, &out))
	assert.Equal(t, 1, out.TotalCount)
	require.Len(t, out.Jobs, 1)
	assert.Equal(t, "Go Engineer", out.Jobs[0].Title)
}

func TestClientPostJSON(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "csrf-1", r.Header.Get("X-Csrf-Token"))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer ts.Close()

	header := http.Header{}
	header.Set("x-csrf-token", "csrf-1")

	var out struct {
		OK bool `json:"ok"`
	}
	c := New(Options{Policy: fastPolicy(1)})
	require.NoError(t, c.PostJSON(t.Context(), ts.URL, header, map[string]any{"ids": []int{1, 2}}, &out))
	assert.True(t, out.OK)
}

func TestClientPostJSON_BodyRebuiltPerAttempt(t *testing.T) {
	t.Parallel()

	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		// The retried attempt must carry the full body again.
		var in struct {
			IDs []int `json:"ids"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, []int{7, 8}, in.IDs)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	c := New(Options{Policy: fastPolicy(3)})
	require.NoError(t, c.PostJSON(t.Context(), ts.URL, nil, map[string]any{"ids": []int{7, 8}}, nil))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestStatusError(t *testing.T) {
	t.Parallel()

	e := &StatusError{StatusCode: 429, URL: "https://jobs.example"}
	assert.True(t, e.Retryable())
	assert.Equal(t, 429, e.HTTPStatus())
	assert.Contains(t, e.Error(), "429")

	assert.True(t, (&StatusError{StatusCode: 500}).Retryable())
	assert.False(t, (&StatusError{StatusCode: 403}).Retryable())
	assert.False(t, (&StatusError{StatusCode: 404}).Retryable())
}
