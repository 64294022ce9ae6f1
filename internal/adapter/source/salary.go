package source

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/jobfeed/internal/adapter/source/refdata"
	"github.com/fairyhunter13/jobfeed/internal/domain"
)

var (
	// "$120,000", "₹15L", "2.5k" style single amounts.
	salaryAmountRe = regexp.MustCompile(`^([^\d\s.,]*)\s*(\d+(?:,\d{3})*(?:\.\d+)?)\s*([kKmMbBlL])?$`)
	// Trailing ISO 4217 code ("$100k – $150k CAD").
	currencyCodeRe = regexp.MustCompile(`(?i)[A-Z]{3}$`)
	// Range separators boards use between the two amounts.
	rangeSepRe = regexp.MustCompile(`\s*(?:–|—|\bto\b|-)\s*`)
)

var salaryMultipliers = map[string]decimal.Decimal{
	"":  decimal.NewFromInt(1),
	"k": decimal.NewFromInt(1_000),
	"m": decimal.NewFromInt(1_000_000),
	"b": decimal.NewFromInt(1_000_000_000),
	// Indian boards quote lakhs.
	"l": decimal.NewFromInt(100_000),
}

// Amount is a parsed salary figure still in its source currency.
type Amount struct {
	Currency string
	Value    decimal.Decimal
}

// SalaryParser turns compensation strings into amounts. Currency is decided
// by, in order: a trailing ISO code, the leading symbol resolved through the
// reference tables, or the default currency for bare numbers.
type SalaryParser struct {
	resolver        *refdata.Resolver
	defaultCurrency string
}

func NewSalaryParser(resolver *refdata.Resolver, defaultCurrency string) *SalaryParser {
	return &SalaryParser{resolver: resolver, defaultCurrency: strings.ToUpper(defaultCurrency)}
}

// ExtractRange parses compensation strings like "$100k – $150k • 1.0% – 2.0%"
// or "90000 - 120000". A single amount yields min == max. Everything after
// the first "•" (equity details) is ignored. Failures wrap
// domain.ErrInvalidSalary; callers null the salary and keep the listing.
func (p *SalaryParser) ExtractRange(compensation string) (Amount, Amount, error) {
	s := strings.TrimSpace(compensation)
	if s == "" {
		return Amount{}, Amount{}, fmt.Errorf("%w: no salary info", domain.ErrInvalidSalary)
	}
	s, _, _ = strings.Cut(s, "•")
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, Amount{}, fmt.Errorf("%w: no salary info", domain.ErrInvalidSalary)
	}

	code := ""
	if m := currencyCodeRe.FindString(s); m != "" && p.resolver.KnownCurrency(m) {
		code = strings.ToUpper(m)
		s = strings.TrimSpace(s[:len(s)-len(m)])
	}

	parts := rangeSepRe.Split(s, 2)
	minSym, minVal, err := parseAmountPart(parts[0])
	if err != nil {
		return Amount{}, Amount{}, err
	}
	maxSym, maxVal := minSym, minVal
	if len(parts) == 2 {
		maxSym, maxVal, err = parseAmountPart(parts[1])
		if err != nil {
			return Amount{}, Amount{}, err
		}
	}

	currency, err := p.currencyFor(code, minSym, maxSym)
	if err != nil {
		return Amount{}, Amount{}, err
	}
	return Amount{Currency: currency, Value: minVal}, Amount{Currency: currency, Value: maxVal}, nil
}

// ExtractAmount parses a lone figure such as "100,000" or "$85k".
func (p *SalaryParser) ExtractAmount(s string) (Amount, error) {
	minAmt, _, err := p.ExtractRange(s)
	return minAmt, err
}

func (p *SalaryParser) currencyFor(code, minSym, maxSym string) (string, error) {
	if code != "" {
		return code, nil
	}
	sym := minSym
	if sym == "" {
		sym = maxSym
	}
	if sym == "" {
		return p.defaultCurrency, nil
	}
	currency, ok := p.resolver.CurrencyFromSymbol(sym)
	if !ok {
		return "", fmt.Errorf("%w: unsupported currency symbol %q", domain.ErrInvalidSalary, sym)
	}
	return currency, nil
}

func parseAmountPart(part string) (string, decimal.Decimal, error) {
	m := salaryAmountRe.FindStringSubmatch(strings.TrimSpace(part))
	if m == nil {
		return "", decimal.Decimal{}, fmt.Errorf("%w: unsupported salary format %q", domain.ErrInvalidSalary, part)
	}
	value, err := decimal.NewFromString(strings.ReplaceAll(m[2], ",", ""))
	if err != nil {
		return "", decimal.Decimal{}, fmt.Errorf("%w: %q is not a number", domain.ErrInvalidSalary, m[2])
	}
	return m[1], value.Mul(salaryMultipliers[strings.ToLower(m[3])]), nil
}
