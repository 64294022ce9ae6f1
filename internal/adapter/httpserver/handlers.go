package httpserver

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/jobfeed/internal/config"
	"github.com/fairyhunter13/jobfeed/internal/domain"
)

// PerPage is the fixed page size of the listings endpoint.
const PerPage = 12

// defaultMinSalary filters out unsalaried noise unless the caller overrides.
var defaultMinSalary = decimal.NewFromInt(20000)

// SubdivisionLister expands a country code into its subdivision codes.
type SubdivisionLister interface {
	Subdivisions(countryCode string) []string
}

// Server aggregates the query API dependencies.
type Server struct {
	Cfg    config.Config
	Search domain.ListingSearcher
	Geo    SubdivisionLister
	// BaseURLs maps portal display names to their base URLs for link
	// attribution.
	BaseURLs map[string]string
	// CurrencySymbol prefixes rendered salary ranges.
	CurrencySymbol string
	DBCheck        func(ctx context.Context) error

	Now func() time.Time
}

// NewServer constructs a Server with all handlers wired.
func NewServer(cfg config.Config, search domain.ListingSearcher, geo SubdivisionLister, baseURLs map[string]string, symbol string, dbCheck func(ctx context.Context) error) *Server {
	return &Server{
		Cfg:            cfg,
		Search:         search,
		Geo:            geo,
		BaseURLs:       baseURLs,
		CurrencySymbol: symbol,
		DBCheck:        dbCheck,
		Now:            func() time.Time { return time.Now().UTC() },
	}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// listingsQuery is the parsed and validated form of the listings parameters.
type listingsQuery struct {
	MinSalary       decimal.Decimal
	IncludeNoSalary bool
	PostedOnAfter   time.Time
	Tags            []string
	IsRemote        *bool
	Location        string `validate:"omitempty,iso3166_1_alpha2|iso3166_2"`
	Sort            string `validate:"oneof=posted_on_desc salary_desc"`
	Page            int    `validate:"gte=1"`
}

type listingItem struct {
	Title         string           `json:"title"`
	Description   string           `json:"description,omitempty"`
	Link          string           `json:"link"`
	MinSalary     *decimal.Decimal `json:"min_salary"`
	MaxSalary     *decimal.Decimal `json:"max_salary"`
	SalaryDisplay string           `json:"salary_display,omitempty"`
	PostedOn      time.Time        `json:"posted_on"`
	IsRemote      bool             `json:"is_remote"`
	Locations     []string         `json:"locations"`
	CompanyName   string           `json:"company_name,omitempty"`
	Tags          []string         `json:"tags"`
	PortalName    string           `json:"portal_name"`
}

type listingsResponse struct {
	Listings   []listingItem `json:"listings"`
	Page       int           `json:"page"`
	PerPage    int           `json:"per_page"`
	TotalPages int           `json:"total_pages"`
	Total      int64         `json:"total"`
}

// ListingsHandler serves GET /v1/listings.
func (s *Server) ListingsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := s.parseListingsQuery(r.URL.Query())
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if err := getValidator().Struct(q); err != nil {
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}

		filters := domain.SearchFilters{
			Tags:            q.Tags,
			MinSalary:       q.MinSalary,
			IncludeNoSalary: q.IncludeNoSalary,
			PostedAfter:     q.PostedOnAfter,
			IsRemote:        q.IsRemote,
			LocationCodes:   s.expandLocation(q.Location),
			Sort:            domain.SortOrder(q.Sort),
			Offset:          (q.Page - 1) * PerPage,
			Limit:           PerPage,
		}

		total, err := s.Search.CountListings(r.Context(), filters)
		if err != nil {
			LoggerFrom(r).Error("count listings failed", "error", err)
			writeError(w, r, err, nil)
			return
		}
		listings, err := s.Search.SearchListings(r.Context(), filters)
		if err != nil {
			LoggerFrom(r).Error("search listings failed", "error", err)
			writeError(w, r, err, nil)
			return
		}

		items := make([]listingItem, 0, len(listings))
		for _, l := range listings {
			items = append(items, listingItem{
				Title:         l.Title,
				Description:   l.Description,
				Link:          l.Link,
				MinSalary:     l.MinSalary,
				MaxSalary:     l.MaxSalary,
				SalaryDisplay: l.SalaryDisplay(s.CurrencySymbol),
				PostedOn:      l.PostedOn,
				IsRemote:      l.IsRemote,
				Locations:     l.Locations,
				CompanyName:   l.CompanyName,
				Tags:          l.Tags,
				PortalName:    domain.PortalFromLink(l.Link, s.BaseURLs),
			})
		}

		writeJSON(w, http.StatusOK, listingsResponse{
			Listings:   items,
			Page:       q.Page,
			PerPage:    PerPage,
			TotalPages: int(math.Ceil(float64(total) / float64(PerPage))),
			Total:      total,
		})
	}
}

// parseListingsQuery applies defaults and strict parsing. Defaults: salary
// floor 20000, window of one retention period, newest first, page one.
func (s *Server) parseListingsQuery(values url.Values) (listingsQuery, error) {
	q := listingsQuery{
		MinSalary:     defaultMinSalary,
		PostedOnAfter: s.Now().Add(-s.Cfg.RetentionWindow()),
		Sort:          string(domain.SortPostedOnDesc),
		Page:          1,
	}

	if raw := values.Get("min_salary"); raw != "" {
		d, err := decimal.NewFromString(raw)
		if err != nil || d.IsNegative() {
			return q, fmt.Errorf("%w: min_salary %q", domain.ErrInvalidArgument, raw)
		}
		q.MinSalary = d
	}
	if raw := values.Get("include_no_salary"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return q, fmt.Errorf("%w: include_no_salary %q", domain.ErrInvalidArgument, raw)
		}
		q.IncludeNoSalary = b
	}
	if raw := values.Get("posted_on_after"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			return q, fmt.Errorf("%w: posted_on_after %q", domain.ErrInvalidArgument, raw)
		}
		q.PostedOnAfter = t
	}
	for _, tag := range values["tags"] {
		if tag = strings.TrimSpace(tag); tag != "" {
			q.Tags = append(q.Tags, tag)
		}
	}
	if raw := values.Get("is_remote"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return q, fmt.Errorf("%w: is_remote %q", domain.ErrInvalidArgument, raw)
		}
		q.IsRemote = &b
	}
	q.Location = strings.ToUpper(strings.TrimSpace(values.Get("location")))
	if raw := values.Get("sort"); raw != "" {
		q.Sort = raw
	}
	if raw := values.Get("page"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil {
			return q, fmt.Errorf("%w: page %q", domain.ErrInvalidArgument, raw)
		}
		if p > 1 {
			q.Page = p
		}
	}
	return q, nil
}

// expandLocation widens a country code to itself plus its subdivisions, so a
// search for "US" also matches listings pinned to "US-CA".
func (s *Server) expandLocation(code string) []string {
	if code == "" {
		return nil
	}
	codes := []string{code}
	if s.Geo != nil {
		codes = append(codes, s.Geo.Subdivisions(code)...)
	}
	return codes
}

func parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02", raw)
}

// HealthzHandler reports process liveness.
func HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
}

// ReadyzHandler probes the database before reporting ready.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, 1)
		ok := true
		if s.DBCheck != nil {
			if err := s.DBCheck(ctx); err != nil {
				checks = append(checks, check{Name: "db", OK: false, Details: err.Error()})
				ok = false
			} else {
				checks = append(checks, check{Name: "db", OK: true})
			}
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
