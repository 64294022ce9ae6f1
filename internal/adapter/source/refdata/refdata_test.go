package refdata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, locale string) *Resolver {
	t.Helper()
	r, err := Load(locale)
	require.NoError(t, err)
	return r
}

func TestLoad_RejectsUnknownTerritory(t *testing.T) {
	t.Parallel()

	_, err := Load("xx_ZZ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "territory")
}

func TestCurrencyFromSymbol(t *testing.T) {
	t.Parallel()

	r := load(t, "en_US")

	tests := []struct {
		symbol string
		want   string
	}{
		{"$", "USD"},
		{" $ ", "USD"},
		{"€", "EUR"},
		{"₹", "INR"},
		{"zł", "PLN"},
		{"C$", "CAD"},
		{"kr", "SEK"},
	}
	for _, tc := range tests {
		got, ok := r.CurrencyFromSymbol(tc.symbol)
		require.True(t, ok, tc.symbol)
		assert.Equal(t, tc.want, got, tc.symbol)
	}

	_, ok := r.CurrencyFromSymbol("☂")
	assert.False(t, ok)
}

func TestCurrencyFromSymbol_LocaleTieBreak(t *testing.T) {
	t.Parallel()

	// "$" lists USD first, so a locale whose currency is another candidate
	// must win the tie, and one outside the candidates must not.
	sg := load(t, "en_SG")
	got, ok := sg.CurrencyFromSymbol("$")
	require.True(t, ok)
	assert.Equal(t, "SGD", got)

	pl := load(t, "pl_PL")
	got, ok = pl.CurrencyFromSymbol("$")
	require.True(t, ok)
	assert.Equal(t, "USD", got, "non-candidate locale falls back to the first listed code")
}

func TestKnownCurrency(t *testing.T) {
	t.Parallel()

	r := load(t, "en_US")
	assert.True(t, r.KnownCurrency("USD"))
	assert.True(t, r.KnownCurrency("cad"))
	assert.False(t, r.KnownCurrency("XYZ"))
}

func TestSymbolFor(t *testing.T) {
	t.Parallel()

	r := load(t, "en_US")
	assert.Equal(t, "$", r.SymbolFor("USD"))
	assert.Equal(t, "$", r.SymbolFor("usd"))
	assert.Equal(t, "€", r.SymbolFor("EUR"))
	assert.Equal(t, "₹", r.SymbolFor("INR"))
	// No symbol row names BDT, so the code itself is the prefix.
	assert.Equal(t, "BDT ", r.SymbolFor("BDT"))
}

func TestCountryCode(t *testing.T) {
	t.Parallel()

	r := load(t, "en_US")

	tests := []struct {
		name string
		want string
	}{
		{"United States", "US"},
		{"USA", "US"},
		{"usa only", "US"},
		{"us", "US"},
		{"United  Kingdom", "GB"},
		{"UK", "GB"},
		{"England", "GB-ENG"},
		{"California", "US-CA"},
		{"us-ca", "US-CA"},
		{"Czech Republic", "CZ"},
		{"Türkiye", "TR"},
	}
	for _, tc := range tests {
		got, ok := r.CountryCode(tc.name)
		require.True(t, ok, tc.name)
		assert.Equal(t, tc.want, got, tc.name)
	}

	_, ok := r.CountryCode("Atlantis")
	assert.False(t, ok)
	_, ok = r.CountryCode("")
	assert.False(t, ok)

	// Memoized misses answer the same way on the second call.
	_, ok = r.CountryCode("Atlantis")
	assert.False(t, ok)
}

func TestSubdivisions(t *testing.T) {
	t.Parallel()

	r := load(t, "en_US")

	subs := r.Subdivisions("us")
	require.Len(t, subs, 51)
	assert.Equal(t, "US-AK", subs[0])
	assert.Contains(t, subs, "US-CA")

	assert.Nil(t, r.Subdivisions("DE"), "countries without a subdivision table answer nil")
}

func TestValidLocationCodes(t *testing.T) {
	t.Parallel()

	r := load(t, "en_US")
	codes := r.ValidLocationCodes()

	assert.Contains(t, codes, "US")
	assert.Contains(t, codes, "US-CA")
	assert.Contains(t, codes, "GB-SCT")
	assert.Contains(t, codes, "XK")
	assert.True(t, sortedStrings(codes))
}

func sortedStrings(s []string) bool {
	for i := 1; i < len(s); i++ {
		if s[i-1] > s[i] {
			return false
		}
	}
	return true
}

func TestCanonicalTag(t *testing.T) {
	t.Parallel()

	r := load(t, "en_US")
	assert.Equal(t, "go", r.CanonicalTag("Golang"))
	assert.Equal(t, "backend", r.CanonicalTag(" back-end "))
	assert.Equal(t, "node.js", r.CanonicalTag("NodeJS"))
	assert.Equal(t, "rust", r.CanonicalTag("Rust"))
	assert.Equal(t, "", r.CanonicalTag("   "))
}
