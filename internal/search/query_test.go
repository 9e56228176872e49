package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMaxPrice(t *testing.T) {
	q := Parse("wireless headphones under $50")

	require.NotNil(t, q.MaxPrice)
	assert.Equal(t, 50.0, *q.MaxPrice)
	assert.Nil(t, q.MinPrice)
	assert.Equal(t, "wireless headphones", q.Cleaned)
	assert.Equal(t, "electronics", q.Intent)
}

func TestParsePriceRange(t *testing.T) {
	q := Parse("running shoes between $60 and $120")

	require.NotNil(t, q.MinPrice)
	require.NotNil(t, q.MaxPrice)
	assert.Equal(t, 60.0, *q.MinPrice)
	assert.Equal(t, 120.0, *q.MaxPrice)
	assert.Equal(t, "clothing", q.Intent)
}

func TestParseReversedRangeSwaps(t *testing.T) {
	q := Parse("desk lamp between $90 and $30")

	require.NotNil(t, q.MinPrice)
	require.NotNil(t, q.MaxPrice)
	assert.Equal(t, 30.0, *q.MinPrice)
	assert.Equal(t, 90.0, *q.MaxPrice)
}

func TestParseBias(t *testing.T) {
	cheap := Parse("cheap mechanical keyboard")
	assert.Equal(t, BiasPriceAsc, cheap.Bias)
	assert.NotContains(t, cheap.Cleaned, "cheap")

	quality := Parse("best rated espresso machine")
	assert.Equal(t, BiasRatingDesc, quality.Bias)

	// A cheapness signal wins when both appear.
	both := Parse("best cheap laptop")
	assert.Equal(t, BiasPriceAsc, both.Bias)
}

func TestParsePlainQuery(t *testing.T) {
	q := Parse("garden hose")

	assert.Nil(t, q.MinPrice)
	assert.Nil(t, q.MaxPrice)
	assert.Equal(t, BiasNone, q.Bias)
	assert.Equal(t, "general", q.Intent)
	assert.Equal(t, "garden hose", q.Enriched)
	assert.Empty(t, q.ProviderHint)
}

func TestParseEnrichment(t *testing.T) {
	q := Parse("noise cancelling earbuds")

	assert.Equal(t, "electronics", q.Intent)
	assert.Equal(t, "noise cancelling earbuds electronics", q.Enriched)
	assert.Equal(t, "electronics", q.ProviderHint)
}

func TestParseIsPure(t *testing.T) {
	a := Parse("leather jacket under $200")
	b := Parse("leather jacket under $200")
	assert.Equal(t, a, b)
}

func TestCacheKeyStableAcrossPhrasing(t *testing.T) {
	geo := GeoForCountry("US")
	a := CacheKey(Parse("wireless headphones under $50"), Filters{}, geo)
	b := CacheKey(Parse("  Wireless   Headphones under $50 "), Filters{}, geo)
	assert.Equal(t, a, b)

	other := CacheKey(Parse("wireless headphones under $40"), Filters{}, geo)
	assert.NotEqual(t, a, other)

	eu := CacheKey(Parse("wireless headphones under $50"), Filters{}, GeoForCountry("NL"))
	assert.NotEqual(t, a, eu)
}

func TestGeoForCountry(t *testing.T) {
	assert.Equal(t, Geo{Country: "GB", Currency: "GBP"}, GeoForCountry("GB"))
	assert.Equal(t, Geo{Country: "NL", Currency: "EUR"}, GeoForCountry("NL"))
	assert.Equal(t, Geo{Country: "US", Currency: "USD"}, GeoForCountry(""))
	assert.Equal(t, Geo{Country: "ZZ", Currency: "USD"}, GeoForCountry("ZZ"))
}

func TestRankPriceBounds(t *testing.T) {
	max := 50.0
	q := Query{MaxPrice: &max, Bias: BiasPriceAsc}
	in := []Candidate{
		{Title: "over", Price: 79.99},
		{Title: "mid", Price: 44.50},
		{Title: "low", Price: 19.99},
	}

	out := Rank(q, in)

	require.Len(t, out, 2)
	assert.Equal(t, "low", out[0].Title)
	assert.Equal(t, "mid", out[1].Title)
}

func TestRankRatingDesc(t *testing.T) {
	q := Query{Bias: BiasRatingDesc}
	out := Rank(q, []Candidate{
		{Title: "ok", Rating: 3.9},
		{Title: "great", Rating: 4.8},
		{Title: "good", Rating: 4.2},
	})

	require.Len(t, out, 3)
	assert.Equal(t, "great", out[0].Title)
	assert.Equal(t, "ok", out[2].Title)
}
