package source

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func docFromHTML(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestLocationsFromJSONLD(t *testing.T) {
	t.Parallel()

	r := testResolver(t)

	t.Run("array of places", func(t *testing.T) {
		t.Parallel()
		doc := docFromHTML(t, `<html><head><script type="application/ld+json">
{"@type":"JobPosting","applicantLocationRequirements":[
  {"@type":"Country","name":"United States"},
  {"@type":"Country","name":"Atlantis"},
  {"@type":"Country","name":"Canada"},
  {"@type":"Country","name":"USA"}
]}
</script></head><body></body></html>`)
		assert.Equal(t, []string{"US", "CA"}, LocationsFromJSONLD(doc, r))
	})

	t.Run("single place object", func(t *testing.T) {
		t.Parallel()
		doc := docFromHTML(t, `<html><head><script type="application/ld+json">
{"applicantLocationRequirements":{"@type":"Country","name":"United Kingdom"}}
</script></head><body></body></html>`)
		assert.Equal(t, []string{"GB"}, LocationsFromJSONLD(doc, r))
	})

	t.Run("raw newline inside string literal", func(t *testing.T) {
		t.Parallel()
		// Boards emit unescaped control characters inside description
		// strings; the decoder must survive them.
		doc := docFromHTML(t, `<html><head><script type="application/ld+json">
{"description":"line one
line two	tabbed","applicantLocationRequirements":{"@type":"Country","name":"India"}}
</script></head><body></body></html>`)
		assert.Equal(t, []string{"IN"}, LocationsFromJSONLD(doc, r))
	})

	t.Run("skips scripts without the field", func(t *testing.T) {
		t.Parallel()
		doc := docFromHTML(t, `<html><head>
<script type="application/ld+json">{"@type":"Organization","name":"Acme"}</script>
<script type="application/ld+json">{"applicantLocationRequirements":[{"name":"Germany"}]}</script>
</head><body></body></html>`)
		assert.Equal(t, []string{"DE"}, LocationsFromJSONLD(doc, r))
	})

	t.Run("nothing resolvable", func(t *testing.T) {
		t.Parallel()
		doc := docFromHTML(t, `<html><head><script type="application/ld+json">
{"applicantLocationRequirements":[{"name":"Narnia"}]}
</script></head><body></body></html>`)
		assert.Empty(t, LocationsFromJSONLD(doc, r))
	})
}

func TestResolveLocations(t *testing.T) {
	t.Parallel()

	r := testResolver(t)

	got := ResolveLocations(r, []string{
		"United States", "USA only", "California", "gb-eng", "Narnia", "united states",
	})
	assert.Equal(t, []string{"US", "US-CA", "GB-ENG"}, got)
}
