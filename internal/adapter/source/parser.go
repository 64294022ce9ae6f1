// Package source implements the job board adapters and the shared parsing
// helpers they are built from: the recency gate, the already-stored sift,
// salary extraction and FX conversion, and reference-data lookups.
package source

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/jobfeed/internal/adapter/observability"
	"github.com/fairyhunter13/jobfeed/internal/domain"
	"github.com/fairyhunter13/jobfeed/pkg/textx"
)

// itemMeta is the cheap pre-parse view of an item used by the sift pass.
type itemMeta struct {
	Link     string
	PostedOn time.Time
}

// sift screens items through the recency gate and the already-stored check
// before full parsing, so detail pages are only fetched for listings that
// are actually new. Items without a date always pass the gate. The returned
// slice holds indexes into metas, in input order.
func sift(ctx domain.Context, checker domain.LinkChecker, cutoff time.Time, portal string, metas []itemMeta) ([]int, error) {
	observability.ListingsFetchedTotal.WithLabelValues(portal).Add(float64(len(metas)))
	recent := make([]int, 0, len(metas))
	links := make([]string, 0, len(metas))
	for i, m := range metas {
		if m.Link == "" {
			continue
		}
		if !m.PostedOn.IsZero() && m.PostedOn.Before(cutoff) {
			slog.Debug("listing predates cutoff, skipping",
				slog.String("portal", portal), slog.String("link", m.Link), slog.Time("posted_on", m.PostedOn))
			observability.ListingsDroppedTotal.WithLabelValues(portal, "old").Inc()
			continue
		}
		recent = append(recent, i)
		links = append(links, m.Link)
	}
	if len(recent) == 0 {
		return nil, nil
	}

	existing, err := checker.ExistingLinks(ctx, links)
	if err != nil {
		return nil, fmt.Errorf("op=source.sift portal=%s: %w", portal, err)
	}

	keep := recent[:0]
	for _, idx := range recent {
		if _, stored := existing[strings.ToLower(metas[idx].Link)]; stored {
			slog.Debug("listing already stored, skipping",
				slog.String("portal", portal), slog.String("link", metas[idx].Link))
			observability.ListingsDroppedTotal.WithLabelValues(portal, "dup").Inc()
			continue
		}
		keep = append(keep, idx)
	}
	return keep, nil
}

// convertRange converts both ends of a parsed range into the default
// currency at the posting date's rate. A failed rate lookup degrades to
// rate 1 with a warning so the listing is kept.
func convertRange(ctx domain.Context, rates domain.RateProvider, minAmt, maxAmt Amount, on time.Time, portal string) (*decimal.Decimal, *decimal.Decimal) {
	return convertAmount(ctx, rates, minAmt, on, portal), convertAmount(ctx, rates, maxAmt, on, portal)
}

func convertAmount(ctx domain.Context, rates domain.RateProvider, amt Amount, on time.Time, portal string) *decimal.Decimal {
	if on.IsZero() {
		on = time.Now().UTC()
	}
	rate := decimal.NewFromInt(1)
	if rates != nil {
		r, err := rates.Rate(ctx, amt.Currency, on)
		if err != nil || !r.IsPositive() {
			slog.Warn("no exchange rate, assuming 1",
				slog.String("portal", portal), slog.String("currency", amt.Currency),
				slog.String("date", on.Format("2006-01-02")), slog.Any("error", err))
			observability.FxRateFallbacksTotal.Inc()
		} else {
			rate = r
		}
	}
	v := amt.Value.Div(rate).Round(2)
	return &v
}

// staleAfterParse applies the recency gate to posting dates that are only
// known once the detail page has been fetched.
func staleAfterParse(portal, link string, posted, cutoff time.Time) bool {
	if posted.IsZero() || !posted.Before(cutoff) {
		return false
	}
	slog.Debug("listing predates cutoff, skipping",
		slog.String("portal", portal), slog.String("link", link), slog.Time("posted_on", posted))
	observability.ListingsDroppedTotal.WithLabelValues(portal, "old").Inc()
	return true
}

// jsonPayload re-renders a decoded item for the payload archive.
func jsonPayload(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		slog.Error("payload marshal failed", slog.Any("error", err))
		return "{}"
	}
	return string(b)
}

// htmlText strips markup from an HTML fragment, returning its sanitized
// text content.
func htmlText(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return textx.SanitizeText(s)
	}
	return textx.SanitizeText(doc.Text())
}
