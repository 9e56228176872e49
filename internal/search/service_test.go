package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	calls   int
	results []Candidate
}

func (p *countingProvider) Query(ctx context.Context, q Query, geo Geo, limit int) ([]Candidate, error) {
	p.calls++
	return p.results, nil
}

func (p *countingProvider) Name() string { return "counting" }

type mapCache struct {
	entries map[string][]Candidate
}

func newMapCache() *mapCache { return &mapCache{entries: map[string][]Candidate{}} }

func (c *mapCache) Get(ctx context.Context, key string) ([]Candidate, bool) {
	out, ok := c.entries[key]
	return out, ok
}

func (c *mapCache) Set(ctx context.Context, key string, products []Candidate) {
	c.entries[key] = products
}

// expire empties the cache, standing in for redis TTL eviction.
func (c *mapCache) expire() { c.entries = map[string][]Candidate{} }

type recordingSessions struct {
	created int
}

func (s *recordingSessions) Create(ctx context.Context, userID, query string, geo Geo, products []Candidate) (*Session, error) {
	s.created++
	return &Session{SessionID: "ss_test", UserID: userID, Query: query, Geo: geo, Products: products}, nil
}

type recordingCatalog struct {
	seen int
}

func (c *recordingCatalog) RecordSeen(ctx context.Context, products []Candidate) {
	c.seen += len(products)
}

func TestServiceSearch_CacheRoundTrip(t *testing.T) {
	provider := &countingProvider{results: []Candidate{
		{Title: "Wireless Headphones", URL: "https://shop.example.com/p/1", Retailer: "shop", Price: 39.99, Rating: 4.4},
		{Title: "Budget Earbuds", URL: "https://shop.example.com/p/2", Retailer: "shop", Price: 19.99, Rating: 4.1},
	}}
	cache := newMapCache()
	sessions := &recordingSessions{}
	catalog := &recordingCatalog{}
	svc := NewService(cache, sessions, catalog, provider)

	params := Params{
		UserID: "demo-user",
		Text:   "wireless headphones under $50",
		Geo:    GeoForCountry("US"),
	}

	first, err := svc.Search(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, SourceFresh, first.Meta.Source)
	assert.Equal(t, 1, provider.calls)
	assert.Len(t, first.Products, 2)
	assert.Equal(t, 2, catalog.seen, "fresh results feed the catalog")

	second, err := svc.Search(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, SourceCache, second.Meta.Source)
	assert.Equal(t, 1, provider.calls, "a warm cache must not re-query providers")
	assert.Equal(t, first.Products, second.Products)
	assert.Equal(t, 2, sessions.created, "every search snapshots a session, cached or not")
	assert.Equal(t, 2, catalog.seen, "cached results are not re-recorded")

	cache.expire()

	third, err := svc.Search(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, SourceFresh, third.Meta.Source)
	assert.Equal(t, 2, provider.calls, "an expired entry goes back to the providers")
}

func TestServiceSearch_FilterChangesKey(t *testing.T) {
	provider := &countingProvider{results: []Candidate{
		{Title: "Desk Lamp", URL: "https://shop.example.com/p/9", Retailer: "shop", Price: 24.99, Rating: 4.0},
	}}
	cache := newMapCache()
	svc := NewService(cache, &recordingSessions{}, &recordingCatalog{}, provider)

	base := Params{UserID: "demo-user", Text: "desk lamp", Geo: GeoForCountry("US")}
	_, err := svc.Search(context.Background(), base)
	require.NoError(t, err)

	max := 30.0
	filtered := base
	filtered.Filter = Filters{MaxPrice: &max}
	_, err = svc.Search(context.Background(), filtered)
	require.NoError(t, err)
	assert.Equal(t, 2, provider.calls, "different filters must not share a cache entry")

	_, err = svc.Search(context.Background(), filtered)
	require.NoError(t, err)
	assert.Equal(t, 2, provider.calls, "repeating the filtered search hits its own entry")
}
