// Package refdata carries the embedded reference tables the parsers resolve
// against: currency symbols, ISO country and subdivision codes, and tag
// spelling aliases.
package refdata

import (
	"embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/jobfeed/pkg/textx"
)

//go:embed countries.yaml symbols.yaml tags.yaml
var files embed.FS

// Country is one row of countries.yaml.
type Country struct {
	Code         string            `yaml:"code"`
	Name         string            `yaml:"name"`
	Currency     string            `yaml:"currency"`
	Aliases      []string          `yaml:"aliases"`
	Subdivisions map[string]string `yaml:"subdivisions"`
}

type countriesFile struct {
	Countries []Country `yaml:"countries"`
}

type symbolsFile struct {
	Symbols map[string][]string `yaml:"symbols"`
}

type tagsFile struct {
	Aliases map[string]string `yaml:"aliases"`
}

// Resolver answers lookups against the embedded tables. Construct one per
// process and share it; all methods are safe for concurrent use.
type Resolver struct {
	symbolCodes     map[string][]string
	currencySymbol  map[string]string
	currencies      map[string]struct{}
	countryByKey    map[string]string
	countryCurrency map[string]string
	subdivByKey     map[string]string
	subdivByCountry map[string][]string
	tagAliases      map[string]string
	localeCurrency  string
	allCodes        []string

	mu       sync.RWMutex
	nameMemo map[string]string
}

// Load parses the embedded tables and derives the tie-break currency from
// the locale's territory (e.g. "en_US" resolves through US to USD).
func Load(locale string) (*Resolver, error) {
	var cf countriesFile
	if err := unmarshalFile("countries.yaml", &cf); err != nil {
		return nil, err
	}
	var sf symbolsFile
	if err := unmarshalFile("symbols.yaml", &sf); err != nil {
		return nil, err
	}
	var tf tagsFile
	if err := unmarshalFile("tags.yaml", &tf); err != nil {
		return nil, err
	}

	r := &Resolver{
		symbolCodes:     make(map[string][]string, len(sf.Symbols)),
		currencySymbol:  make(map[string]string),
		currencies:      make(map[string]struct{}),
		countryByKey:    make(map[string]string, 3*len(cf.Countries)),
		countryCurrency: make(map[string]string, len(cf.Countries)),
		subdivByKey:     make(map[string]string),
		subdivByCountry: make(map[string][]string),
		tagAliases:      make(map[string]string, len(tf.Aliases)),
		nameMemo:        make(map[string]string),
	}

	for _, c := range cf.Countries {
		code := strings.ToUpper(strings.TrimSpace(c.Code))
		if len(code) != 2 || c.Name == "" {
			return nil, fmt.Errorf("op=refdata.Load: malformed country row %q/%q", c.Code, c.Name)
		}
		r.countryByKey[strings.ToLower(code)] = code
		r.countryByKey[normalizeKey(c.Name)] = code
		for _, alias := range c.Aliases {
			r.countryByKey[normalizeKey(alias)] = code
		}
		if c.Currency != "" {
			ccy := strings.ToUpper(c.Currency)
			r.countryCurrency[code] = ccy
			r.currencies[ccy] = struct{}{}
		}
		subdivs := make([]string, 0, len(c.Subdivisions))
		for sc, sn := range c.Subdivisions {
			sc = strings.ToUpper(sc)
			subdivs = append(subdivs, sc)
			r.subdivByKey[strings.ToLower(sc)] = sc
			r.subdivByKey[normalizeKey(sn)] = sc
		}
		sort.Strings(subdivs)
		if len(subdivs) > 0 {
			r.subdivByCountry[code] = subdivs
		}
		r.allCodes = append(r.allCodes, code)
		r.allCodes = append(r.allCodes, subdivs...)
	}
	sort.Strings(r.allCodes)

	for sym, codes := range sf.Symbols {
		upper := make([]string, len(codes))
		for i, c := range codes {
			upper[i] = strings.ToUpper(c)
		}
		r.symbolCodes[strings.ToLower(sym)] = upper
	}

	// Reverse mapping for display: a currency renders with the shortest
	// symbol that names it as first candidate.
	symbols := make([]string, 0, len(r.symbolCodes))
	for sym := range r.symbolCodes {
		symbols = append(symbols, sym)
	}
	sort.Slice(symbols, func(i, j int) bool {
		if len(symbols[i]) != len(symbols[j]) {
			return len(symbols[i]) < len(symbols[j])
		}
		return symbols[i] < symbols[j]
	})
	for _, sym := range symbols {
		code := r.symbolCodes[sym][0]
		if _, ok := r.currencySymbol[code]; !ok {
			r.currencySymbol[code] = sym
		}
	}

	for k, v := range tf.Aliases {
		r.tagAliases[normalizeKey(k)] = v
	}

	territory := locale
	if i := strings.LastIndexAny(locale, "_-"); i >= 0 {
		territory = locale[i+1:]
	}
	country, ok := r.countryByKey[strings.ToLower(territory)]
	if !ok {
		return nil, fmt.Errorf("op=refdata.Load: locale %q has no known territory", locale)
	}
	r.localeCurrency = r.countryCurrency[country]

	return r, nil
}

// CurrencyFromSymbol resolves a compensation symbol ("$", "₹", "zł") to an
// ISO 4217 code. Shared symbols resolve to the locale currency when it is a
// candidate, otherwise to the first listed candidate.
func (r *Resolver) CurrencyFromSymbol(symbol string) (string, bool) {
	codes, ok := r.symbolCodes[strings.ToLower(strings.TrimSpace(symbol))]
	if !ok || len(codes) == 0 {
		return "", false
	}
	if len(codes) > 1 && r.localeCurrency != "" {
		for _, c := range codes {
			if c == r.localeCurrency {
				return c, true
			}
		}
	}
	return codes[0], true
}

// KnownCurrency reports whether code is an ISO 4217 code the tables carry.
func (r *Resolver) KnownCurrency(code string) bool {
	_, ok := r.currencies[strings.ToUpper(code)]
	return ok
}

// SymbolFor returns the display symbol of an ISO 4217 code ("USD" yields
// "$"), or the code with a trailing space when no symbol is known.
func (r *Resolver) SymbolFor(code string) string {
	code = strings.ToUpper(code)
	if sym, ok := r.currencySymbol[code]; ok {
		return sym
	}
	return code + " "
}

// CountryCode maps a free-form place name ("United States", "USA only",
// "California", "gb-eng") to its ISO 3166 code. Results, including misses,
// are memoized.
func (r *Resolver) CountryCode(name string) (string, bool) {
	key := normalizeKey(name)
	if key == "" {
		return "", false
	}

	r.mu.RLock()
	code, seen := r.nameMemo[key]
	r.mu.RUnlock()
	if seen {
		return code, code != ""
	}

	code = r.lookup(key)
	r.mu.Lock()
	r.nameMemo[key] = code
	r.mu.Unlock()
	return code, code != ""
}

func (r *Resolver) lookup(key string) string {
	if c, ok := r.countryByKey[key]; ok {
		return c
	}
	if s, ok := r.subdivByKey[key]; ok {
		return s
	}
	// Region strings like "USA only" carry a qualifier suffix.
	if trimmed, found := strings.CutSuffix(key, " only"); found {
		if c, ok := r.countryByKey[trimmed]; ok {
			return c
		}
		if s, ok := r.subdivByKey[trimmed]; ok {
			return s
		}
	}
	return ""
}

// Subdivisions returns the sorted subdivision codes of a country, or nil
// when the tables carry none for it.
func (r *Resolver) Subdivisions(countryCode string) []string {
	return r.subdivByCountry[strings.ToUpper(countryCode)]
}

// ValidLocationCodes returns every country and subdivision code, sorted.
func (r *Resolver) ValidLocationCodes() []string {
	return r.allCodes
}

// CanonicalTag folds a raw tag to its canonical lower-case form.
func (r *Resolver) CanonicalTag(tag string) string {
	key := normalizeKey(tag)
	if canonical, ok := r.tagAliases[key]; ok {
		return canonical
	}
	return key
}

func normalizeKey(s string) string {
	return textx.CollapseSpaces(strings.ToLower(s))
}

func unmarshalFile(name string, out any) error {
	data, err := files.ReadFile(name)
	if err != nil {
		return fmt.Errorf("op=refdata.read file=%s: %w", name, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("op=refdata.parse file=%s: %w", name, err)
	}
	return nil
}
