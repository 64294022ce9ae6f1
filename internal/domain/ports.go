package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Source is one external job board. Fetch enumerates raw items, applies the
// recency gate against cutoff, drops links already persisted, parses the rest
// and returns canonical listings together with their raw payloads, in
// pagination order.
type Source interface {
	Name() string
	DisplayName() string
	BaseURL() string
	Fetch(ctx Context, cutoff time.Time) ([]Listing, []RawPayload, error)
}

// LinkChecker answers case-insensitive membership queries for stored links.
type LinkChecker interface {
	ExistingLinks(ctx Context, links []string) (map[string]struct{}, error)
}

// ListingStore persists canonical listings, tags and raw payloads with
// idempotent batched upserts.
type ListingStore interface {
	LinkChecker
	StoreListings(ctx Context, listings []Listing, payloads []RawPayload) (StoreResult, error)
	ListingsWithoutTags(ctx Context, limit int) ([]TagRequest, error)
	AttachTags(ctx Context, tagsByLink map[string][]string) (int, error)
	PurgeOlderThan(ctx Context, cutoff time.Time) (jobs int64, payloads int64, err error)
}

// WatermarkStore tracks the per-source incremental cursor. GetOrCreate
// rejects names outside the registered source set.
type WatermarkStore interface {
	GetOrCreate(ctx Context, name string) (Watermark, error)
	Advance(ctx Context, name string, runAt time.Time) error
}

// TagExtractor backfills tags for tagless listings. The returned map is keyed
// by listing link; entries not matching an input link are already discarded.
type TagExtractor interface {
	ExtractTags(ctx Context, batch []TagRequest) (map[string][]string, error)
}

// RateProvider resolves FX rates. Rate returns how many units of currency one
// unit of the default currency bought on the given date; conversion divides
// the foreign amount by it.
type RateProvider interface {
	Rate(ctx Context, currency string, on time.Time) (decimal.Decimal, error)
}

// SortOrder selects the ordering of listing search results.
type SortOrder string

// Supported search orderings.
const (
	SortPostedOnDesc SortOrder = "posted_on_desc"
	SortSalaryDesc   SortOrder = "salary_desc"
)

// SearchFilters narrows listing searches on the read-only query paths.
type SearchFilters struct {
	Tags            []string
	MinSalary       decimal.Decimal
	IncludeNoSalary bool
	PostedAfter     time.Time
	// IsRemote is tri-state: nil matches both remote and on-site listings.
	IsRemote *bool
	// LocationCodes is the already-expanded set (country plus its
	// subdivisions). Listings with an empty location set always match.
	LocationCodes []string
	Sort          SortOrder
	Offset        int
	Limit         int
}

// ListingSearcher serves the read-only query API inside read-only
// transactions.
type ListingSearcher interface {
	SearchListings(ctx Context, f SearchFilters) ([]Listing, error)
	CountListings(ctx Context, f SearchFilters) (int64, error)
}
