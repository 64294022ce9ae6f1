// Package domain holds the canonical entities, ports and error taxonomy of
// the ingestion pipeline. It has no dependencies on adapters; adapters depend
// on it.
package domain

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Context is an alias to the standard context to keep domain signatures terse.
type Context = context.Context

// DataFormat declares how a source serializes its raw documents.
type DataFormat string

// Supported payload serializations.
const (
	FormatJSON DataFormat = "json"
	FormatXML  DataFormat = "xml"
	FormatHTML DataFormat = "html"
)

// NonTechTag is the tag the LLM extractor returns for listings with no
// technical content.
const NonTechTag = "non-tech"

// Listing is a canonical job listing after parsing and normalization.
// Salaries are denominated in the configured default currency.
type Listing struct {
	Title       string
	Description string
	Link        string
	MinSalary   *decimal.Decimal
	MaxSalary   *decimal.Decimal
	PostedOn    time.Time
	IsActive    bool
	IsRemote    bool
	Locations   []string
	CompanyName string
	Tags        []string
}

// Validate applies the invariants that are also enforced by the database
// CHECK constraints. Location vocabulary membership is checked separately
// against the reference table.
func (l Listing) Validate() error {
	if strings.TrimSpace(l.Title) == "" || strings.TrimSpace(l.Link) == "" {
		return ErrInvalidArgument
	}
	if l.MinSalary != nil && l.MinSalary.IsNegative() {
		return ErrInvalidSalary
	}
	if l.MaxSalary != nil && l.MaxSalary.IsNegative() {
		return ErrInvalidSalary
	}
	if l.MinSalary != nil && l.MaxSalary != nil && l.MaxSalary.LessThan(*l.MinSalary) {
		return ErrInvalidSalary
	}
	return nil
}

// SalaryDisplay renders the salary range compactly for the given currency
// symbol: "$80K - $120K", "$75K and above", "Up to $150K", "$100K".
// Empty when no salary is known.
func (l Listing) SalaryDisplay(symbol string) string {
	switch {
	case l.MinSalary != nil && l.MaxSalary != nil:
		if l.MinSalary.Equal(*l.MaxSalary) {
			return symbol + compactAmount(*l.MinSalary)
		}
		return symbol + compactAmount(*l.MinSalary) + " - " + symbol + compactAmount(*l.MaxSalary)
	case l.MinSalary != nil:
		return symbol + compactAmount(*l.MinSalary) + " and above"
	case l.MaxSalary != nil:
		return "Up to " + symbol + compactAmount(*l.MaxSalary)
	default:
		return ""
	}
}

var (
	thousand = decimal.NewFromInt(1000)
	million  = decimal.NewFromInt(1_000_000)
)

func compactAmount(d decimal.Decimal) string {
	switch {
	case d.GreaterThanOrEqual(million):
		return d.Div(million).Round(2).String() + "M"
	case d.GreaterThanOrEqual(thousand):
		return d.Div(thousand).Round(2).String() + "K"
	default:
		return d.Round(2).String()
	}
}

// RawPayload is the raw source document retained alongside a listing,
// keyed by the same link.
type RawPayload struct {
	Link      string
	Payload   string
	ExtraInfo *string
}

// Watermark is the per-source incremental cursor. LastRunAt is nil until the
// source completes its first successful run.
type Watermark struct {
	ID        int64
	Name      string
	LastRunAt *time.Time
}

// TagRequest is one tagless listing handed to the LLM extractor.
type TagRequest struct {
	Link        string
	Title       string
	Description string
}

// StoreResult reports what a batched upsert actually inserted; conflicting
// rows are counted as skipped by omission.
type StoreResult struct {
	JobsInserted     int
	PayloadsInserted int
	TagsLinked       int
}

// PortalFromLink derives the portal display name for a stored link by
// case-insensitive prefix match against the registered base URLs. Empty when
// no prefix matches.
func PortalFromLink(link string, baseURLs map[string]string) string {
	lower := strings.ToLower(link)
	for name, base := range baseURLs {
		if base != "" && strings.HasPrefix(lower, strings.ToLower(base)) {
			return name
		}
	}
	return ""
}
