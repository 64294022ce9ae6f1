// Package fx resolves daily FX rates from the public currency-api dataset,
// with a mirror fallback and an in-memory per-day cache.
package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/jobfeed/internal/adapter/httpclient"
	"github.com/fairyhunter13/jobfeed/internal/domain"
)

const (
	primaryURL  = "https://cdn.jsdelivr.net/npm/@fawazahmed0/currency-api@%s/v1/currencies/%s.json"
	fallbackURL = "https://%s.currency-api.pages.dev/v1/currencies/%s.json"
)

// Converter resolves how many units of a foreign currency one unit of the
// base (default) currency bought on a given date. One fetch per date covers
// every currency; results are cached for the process lifetime.
type Converter struct {
	hc   *httpclient.Client
	base string
	// Endpoint templates tried in order, each formatted with (date, base).
	urls []string

	mu    sync.RWMutex
	cache map[string]map[string]decimal.Decimal
}

// New builds a converter for the given base currency.
func New(base string, timeout time.Duration) *Converter {
	return &Converter{
		hc:   httpclient.New(httpclient.Options{Timeout: timeout, Policy: httpclient.Policy{MaxAttempts: 3}}),
		base: strings.ToLower(base),
		urls: []string{primaryURL, fallbackURL},

		cache: make(map[string]map[string]decimal.Decimal),
	}
}

// Rate implements domain.RateProvider. The date is truncated to the day the
// listing was posted.
func (c *Converter) Rate(ctx context.Context, currency string, on time.Time) (decimal.Decimal, error) {
	currency = strings.ToLower(currency)
	if currency == c.base {
		return decimal.NewFromInt(1), nil
	}
	day := on.UTC().Format("2006-01-02")

	c.mu.RLock()
	rates, ok := c.cache[day]
	c.mu.RUnlock()
	if !ok {
		var err error
		rates, err = c.fetch(ctx, day)
		if err != nil {
			return decimal.Decimal{}, err
		}
		c.mu.Lock()
		c.cache[day] = rates
		c.mu.Unlock()
	}

	rate, ok := rates[currency]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: no %s rate for %s", domain.ErrNotFound, currency, day)
	}
	return rate, nil
}

func (c *Converter) fetch(ctx context.Context, day string) (map[string]decimal.Decimal, error) {
	var lastErr error
	for i, tmpl := range c.urls {
		u := fmt.Sprintf(tmpl, day, c.base)
		data, err := c.hc.Get(ctx, u)
		if err != nil {
			lastErr = err
			if i == 0 {
				slog.Warn("fx primary endpoint failed, trying fallback",
					slog.String("date", day), slog.Any("error", err))
			}
			continue
		}
		rates, err := decodeRates(data, c.base)
		if err != nil {
			lastErr = err
			continue
		}
		return rates, nil
	}
	return nil, fmt.Errorf("op=fx.fetch date=%s: %w", day, lastErr)
}

func decodeRates(data []byte, base string) (map[string]decimal.Decimal, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: fx document: %v", domain.ErrSchemaMismatch, err)
	}
	raw, ok := doc[base]
	if !ok {
		return nil, fmt.Errorf("%w: fx document missing %q table", domain.ErrSchemaMismatch, base)
	}
	var rates map[string]decimal.Decimal
	if err := json.Unmarshal(raw, &rates); err != nil {
		return nil, fmt.Errorf("%w: fx rate table: %v", domain.ErrSchemaMismatch, err)
	}
	return rates, nil
}
