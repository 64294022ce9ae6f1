package fx

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/jobfeed/internal/domain"
)

const usdDoc = `{"date":"2025-05-20","usd":{"inr":82.89,"eur":0.92,"usd":1}}`

func newTestConverter(urls ...string) *Converter {
	c := New("USD", time.Second)
	c.urls = urls
	return c
}

func TestRate(t *testing.T) {
	t.Parallel()

	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/2025-05-20/usd.json", r.URL.Path)
		_, _ = w.Write([]byte(usdDoc))
	}))
	defer ts.Close()

	c := newTestConverter(ts.URL + "/%s/%s.json")
	on := time.Date(2025, 5, 20, 15, 30, 0, 0, time.UTC)

	rate, err := c.Rate(t.Context(), "INR", on)
	require.NoError(t, err)
	assert.Equal(t, "82.89", rate.String())

	// Same day resolves from the cache, any currency in the table.
	rate, err = c.Rate(t.Context(), "EUR", on.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "0.92", rate.String())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "one fetch covers the whole day")
}

func TestRate_BaseCurrencyIsOne(t *testing.T) {
	t.Parallel()

	// No endpoint is ever dialed for the base currency.
	c := newTestConverter("http://127.0.0.1:0/%s/%s.json")
	rate, err := c.Rate(t.Context(), "USD", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "1", rate.String())
}

func TestRate_UnknownCurrency(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(usdDoc))
	}))
	defer ts.Close()

	c := newTestConverter(ts.URL + "/%s/%s.json")
	_, err := c.Rate(t.Context(), "XYZ", time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRate_FallsBackToMirror(t *testing.T) {
	t.Parallel()

	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer primary.Close()
	var mirrorHits int32
	mirror := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&mirrorHits, 1)
		_, _ = w.Write([]byte(usdDoc))
	}))
	defer mirror.Close()

	c := newTestConverter(primary.URL+"/%s/%s.json", mirror.URL+"/%s/%s.json")
	rate, err := c.Rate(t.Context(), "INR", time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "82.89", rate.String())
	assert.Equal(t, int32(1), atomic.LoadInt32(&mirrorHits))
}

func TestRate_BothEndpointsDown(t *testing.T) {
	t.Parallel()

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer down.Close()

	c := newTestConverter(down.URL+"/%s/%s.json", down.URL+"/%s/%s.json")
	_, err := c.Rate(t.Context(), "INR", time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2025-05-20")
}

func TestDecodeRates(t *testing.T) {
	t.Parallel()

	rates, err := decodeRates([]byte(usdDoc), "usd")
	require.NoError(t, err)
	assert.Equal(t, "82.89", rates["inr"].String())

	_, err = decodeRates([]byte(`{"date":"2025-05-20"}`), "usd")
	require.ErrorIs(t, err, domain.ErrSchemaMismatch)

	_, err = decodeRates([]byte(`not json`), "usd")
	require.ErrorIs(t, err, domain.ErrSchemaMismatch)

	_, err = decodeRates([]byte(`{"usd":{"inr":"NaNish"}}`), "usd")
	require.ErrorIs(t, err, domain.ErrSchemaMismatch)
}
