package scrapfly

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/jobfeed/internal/adapter/httpclient"
	"github.com/fairyhunter13/jobfeed/internal/domain"
)

func okEnvelope(content string) string {
	b, _ := json.Marshal(map[string]any{
		"result": map[string]any{
			"success":     true,
			"status_code": 200,
			"content":     content,
			"url":         "https://jobs.example/feed",
		},
	})
	return string(b)
}

func faultEnvelope(status int, retryable bool) string {
	return fmt.Sprintf(`{"result":{"success":false,"status_code":%d,"url":"https://jobs.example/feed",
		"error":{"message":"upstream denied","retryable":%t}}}`, status, retryable)
}

func fastPolicy(attempts int, extra ...int) httpclient.Policy {
	return httpclient.Policy{
		MaxAttempts:      attempts,
		InitialInterval:  time.Millisecond,
		MaxInterval:      2 * time.Millisecond,
		ExtraStatusCodes: extra,
	}
}

func TestDo_DecodesSuccessEnvelope(t *testing.T) {
	t.Parallel()

	var gotQuery int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "test-key", q.Get("key"))
		assert.Equal(t, "https://jobs.example/feed", q.Get("url"))
		assert.Empty(t, q.Get("asp"))
		atomic.AddInt32(&gotQuery, 1)
		_, _ = w.Write([]byte(okEnvelope("<rss/>")))
	}))
	defer ts.Close()

	c := New("test-key", ts.URL, time.Second, false, fastPolicy(3))
	res, err := c.Fetch(t.Context(), "https://jobs.example/feed")
	require.NoError(t, err)
	assert.Equal(t, "<rss/>", res.Content)
	assert.Equal(t, 200, res.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&gotQuery))
}

func TestDo_ForwardsHeadersAndCookies(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "application/json", q.Get("headers[content-type]"))
		assert.Equal(t, "a=1; b=2", q.Get("headers[cookie]"))
		assert.Equal(t, "true", q.Get("asp"))
		assert.Equal(t, "true", q.Get("render_js"))
		assert.Equal(t, http.MethodPost, r.Method)
		_, _ = w.Write([]byte(okEnvelope("{}")))
	}))
	defer ts.Close()

	c := New("test-key", ts.URL, time.Second, true, fastPolicy(1))
	_, err := c.Do(t.Context(), Request{
		URL:     "https://jobs.example/graphql",
		Headers: map[string]string{"Content-Type": "application/json"},
		Cookies: map[string]string{"b": "2", "a": "1"},
		Body:    []byte(`{"query":"{}"}`),
	})
	require.NoError(t, err)
}

func TestDo_RetriesRetryableFault(t *testing.T) {
	t.Parallel()

	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			_, _ = w.Write([]byte(faultEnvelope(503, true)))
			return
		}
		_, _ = w.Write([]byte(okEnvelope("late but fine")))
	}))
	defer ts.Close()

	c := New("test-key", ts.URL, time.Second, false, fastPolicy(5))
	res, err := c.Fetch(t.Context(), "https://jobs.example/feed")
	require.NoError(t, err)
	assert.Equal(t, "late but fine", res.Content)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDo_AntiBotDenialRetriedViaExtraStatus(t *testing.T) {
	t.Parallel()

	// The gateway marks 403 denials non-retryable, but the ASP policy
	// lists them, so a fresh attempt still goes out.
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			_, _ = w.Write([]byte(faultEnvelope(http.StatusForbidden, false)))
			return
		}
		_, _ = w.Write([]byte(okEnvelope("rendered")))
	}))
	defer ts.Close()

	c := New("test-key", ts.URL, time.Second, true, fastPolicy(3, http.StatusForbidden))
	res, err := c.Do(t.Context(), Request{URL: "https://jobs.example/feed"})
	require.NoError(t, err)
	assert.Equal(t, "rendered", res.Content)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestDo_NonRetryableFaultFailsFast(t *testing.T) {
	t.Parallel()

	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(faultEnvelope(http.StatusGone, false)))
	}))
	defer ts.Close()

	c := New("test-key", ts.URL, time.Second, false, fastPolicy(5))
	_, err := c.Fetch(t.Context(), "https://jobs.example/feed")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrListingGone)
	assert.ErrorIs(t, err, domain.ErrUpstreamBlocked)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "410 must not be retried")

	var fault *Error
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, http.StatusGone, fault.StatusCode)
	assert.Equal(t, "upstream denied", fault.Message)
}

func TestDo_MalformedEnvelope(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer ts.Close()

	c := New("test-key", ts.URL, time.Second, false, fastPolicy(1))
	_, err := c.Fetch(t.Context(), "https://jobs.example/feed")
	require.ErrorIs(t, err, domain.ErrSchemaMismatch)
}

func TestDo_MissingAPIKey(t *testing.T) {
	t.Parallel()

	c := New("", "", time.Second, false, httpclient.Policy{})
	_, err := c.Fetch(t.Context(), "https://jobs.example/feed")
	require.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestError_Taxonomy(t *testing.T) {
	t.Parallel()

	gone := &Error{StatusCode: http.StatusGone}
	assert.ErrorIs(t, gone, domain.ErrListingGone)
	assert.ErrorIs(t, gone, domain.ErrUpstreamBlocked)

	denied := &Error{StatusCode: http.StatusForbidden}
	assert.NotErrorIs(t, denied, domain.ErrListingGone)
	assert.ErrorIs(t, denied, domain.ErrUpstreamBlocked)

	flagged := &Error{StatusCode: 503, IsRetryable: true}
	assert.True(t, flagged.Retryable())
	assert.Equal(t, 503, flagged.HTTPStatus())
}
