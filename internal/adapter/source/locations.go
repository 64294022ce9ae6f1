package source

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/fairyhunter13/jobfeed/internal/adapter/source/refdata"
)

type jsonLDPosting struct {
	ApplicantLocationRequirements json.RawMessage `json:"applicantLocationRequirements"`
}

type jsonLDPlace struct {
	Name string `json:"name"`
}

// LocationsFromJSONLD pulls applicantLocationRequirements out of the page's
// ld+json script and resolves each place name to an ISO code. Unknown names
// are dropped. Boards embed raw newlines inside the JSON string literals, so
// those are escaped before decoding.
func LocationsFromJSONLD(doc *goquery.Document, resolver *refdata.Resolver) []string {
	var codes []string
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		raw := escapeRawControlChars(sel.Text())
		var posting jsonLDPosting
		if err := json.Unmarshal([]byte(raw), &posting); err != nil {
			return true
		}
		if len(posting.ApplicantLocationRequirements) == 0 {
			return true
		}
		for _, place := range decodePlaces(posting.ApplicantLocationRequirements) {
			if code, ok := resolver.CountryCode(place.Name); ok {
				codes = append(codes, code)
			}
		}
		return len(codes) == 0
	})
	return dedupeStrings(codes)
}

// ResolveLocations maps free-form place names to ISO codes, dropping the
// ones the reference tables do not know.
func ResolveLocations(resolver *refdata.Resolver, names []string) []string {
	codes := make([]string, 0, len(names))
	for _, name := range names {
		if code, ok := resolver.CountryCode(name); ok {
			codes = append(codes, code)
		}
	}
	return dedupeStrings(codes)
}

func decodePlaces(raw json.RawMessage) []jsonLDPlace {
	var many []jsonLDPlace
	if err := json.Unmarshal(raw, &many); err == nil {
		return many
	}
	var one jsonLDPlace
	if err := json.Unmarshal(raw, &one); err == nil {
		return []jsonLDPlace{one}
	}
	return nil
}

func escapeRawControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false
	for _, r := range s {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		switch r {
		case '\\':
			if inString {
				escaped = true
			}
			b.WriteRune(r)
		case '"':
			inString = !inString
			b.WriteRune(r)
		case '\n':
			if inString {
				b.WriteString(`\n`)
			} else {
				b.WriteRune(r)
			}
		case '\r':
			if inString {
				b.WriteString(`\r`)
			} else {
				b.WriteRune(r)
			}
		case '\t':
			if inString {
				b.WriteString(`\t`)
			} else {
				b.WriteRune(r)
			}
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
