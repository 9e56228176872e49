package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Candidate is one ranked product from a provider or the cache.
type Candidate struct {
	Title    string  `json:"title"`
	URL      string  `json:"url"`
	ImageURL string  `json:"image_url,omitempty"`
	Retailer string  `json:"retailer"`
	Category string  `json:"category,omitempty"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
	Rating   float64 `json:"rating,omitempty"`
}

// Provider is an external search/retailer source.
type Provider interface {
	Query(ctx context.Context, q Query, geo Geo, limit int) ([]Candidate, error)
	Name() string
}

// HTTPProvider talks to a search provider over HTTP. Transient failures are
// retried with exponential backoff; the caller absorbs a provider that
// stays down as long as another source answers.
type HTTPProvider struct {
	name    string
	baseURL string
	client  *http.Client
}

func NewHTTPProvider(name, baseURL string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		name:    name,
		baseURL: baseURL,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (p *HTTPProvider) Name() string { return p.name }

func (p *HTTPProvider) Query(ctx context.Context, q Query, geo Geo, limit int) ([]Candidate, error) {
	params := url.Values{}
	params.Set("q", q.Enriched)
	params.Set("country", geo.Country)
	params.Set("currency", geo.Currency)
	params.Set("limit", strconv.Itoa(limit))
	if q.MaxPrice != nil {
		params.Set("max_price", strconv.FormatFloat(*q.MaxPrice, 'f', 2, 64))
	}
	if q.MinPrice != nil {
		params.Set("min_price", strconv.FormatFloat(*q.MinPrice, 'f', 2, 64))
	}

	endpoint := p.baseURL + "/search?" + params.Encode()

	operation := func() ([]Candidate, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("provider %s returned %d", p.name, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, backoff.Permanent(fmt.Errorf("provider %s returned %d", p.name, resp.StatusCode))
		}

		var payload struct {
			Products []Candidate `json:"products"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("decode provider %s response: %w", p.name, err))
		}
		return payload.Products, nil
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(3),
	)
}
