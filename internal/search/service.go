package search

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/clawcart/clawcart/internal/telemetry"
)

const (
	SourceCache = "cache"
	SourceFresh = "fresh"
)

// Meta describes how a search was answered.
type Meta struct {
	Source    string `json:"source"`
	Intent    string `json:"intent"`
	Geo       Geo    `json:"geo"`
	SessionID string `json:"session_id"`
}

type Result struct {
	Products []Candidate `json:"products"`
	Meta     Meta        `json:"meta"`
}

type Params struct {
	UserID string
	Text   string
	Filter Filters
	Geo    Geo
	Limit  int
}

// ResultCache is the slice of Cache the pipeline depends on.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]Candidate, bool)
	Set(ctx context.Context, key string, products []Candidate)
}

// SessionWriter snapshots ranked results; satisfied by SessionStore.
type SessionWriter interface {
	Create(ctx context.Context, userID, query string, geo Geo, products []Candidate) (*Session, error)
}

// SeenRecorder feeds fresh results into the catalog; satisfied by Catalog.
type SeenRecorder interface {
	RecordSeen(ctx context.Context, products []Candidate)
}

// Service is the search pipeline: parse, consult the cache, fan out to
// providers on a miss, rank, snapshot a session, and feed the catalog.
type Service struct {
	cache     ResultCache
	sessions  SessionWriter
	catalog   SeenRecorder
	providers []Provider
}

func NewService(cache ResultCache, sessions SessionWriter, catalog SeenRecorder, providers ...Provider) *Service {
	return &Service{cache: cache, sessions: sessions, catalog: catalog, providers: providers}
}

func (s *Service) Search(ctx context.Context, p Params) (*Result, error) {
	ctx, span := otel.Tracer("search").Start(ctx, "search",
		trace.WithAttributes(
			attribute.String("search.user_id", p.UserID),
			attribute.String("search.geo", p.Geo.Country),
		),
	)
	defer span.End()

	if p.Limit <= 0 {
		p.Limit = 20
	}

	q := Parse(p.Text)
	mergeFilters(&q, p.Filter)
	key := CacheKey(q, p.Filter, p.Geo)

	span.SetAttributes(
		attribute.String("search.intent", q.Intent),
		attribute.String("search.cleaned", q.Cleaned),
	)

	source := SourceCache
	products, hit := s.cache.Get(ctx, key)
	if hit {
		telemetry.RecordSearchCacheHit(ctx)
	} else {
		telemetry.RecordSearchCacheMiss(ctx)
		source = SourceFresh

		products = s.fanOut(ctx, q, p.Geo, p.Limit)
		products = Rank(q, products)
		if len(products) > p.Limit {
			products = products[:p.Limit]
		}

		s.catalog.RecordSeen(ctx, products)
		s.cache.Set(ctx, key, products)
	}

	sess, err := s.sessions.Create(ctx, p.UserID, p.Text, p.Geo, products)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.String("search.source", source),
		attribute.Int("search.result_count", len(products)),
	)
	slog.InfoContext(ctx, "search completed",
		slog.String("user_id", p.UserID),
		slog.String("intent", q.Intent),
		slog.String("source", source),
		slog.Int("results", len(products)),
	)

	return &Result{
		Products: products,
		Meta: Meta{
			Source:    source,
			Intent:    q.Intent,
			Geo:       p.Geo,
			SessionID: sess.SessionID,
		},
	}, nil
}

// fanOut queries all providers concurrently. A single provider failure is
// absorbed and logged as long as any source answers; an empty merged result
// is a legitimate outcome, not an error.
func (s *Service) fanOut(ctx context.Context, q Query, geo Geo, limit int) []Candidate {
	var (
		mu     sync.Mutex
		merged []Candidate
		wg     sync.WaitGroup
	)
	for _, provider := range s.providers {
		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()
			results, err := p.Query(ctx, q, geo, limit)
			if err != nil {
				slog.WarnContext(ctx, "search provider failed",
					slog.String("provider", p.Name()),
					slog.String("error", err.Error()),
				)
				return
			}
			mu.Lock()
			merged = append(merged, results...)
			mu.Unlock()
		}(provider)
	}
	wg.Wait()
	return merged
}

// Rank orders candidates by the query's bias after dropping those outside
// the extracted price bounds.
func Rank(q Query, candidates []Candidate) []Candidate {
	filtered := candidates[:0:0]
	for _, c := range candidates {
		if q.MaxPrice != nil && c.Price > *q.MaxPrice {
			continue
		}
		if q.MinPrice != nil && c.Price < *q.MinPrice {
			continue
		}
		filtered = append(filtered, c)
	}

	switch q.Bias {
	case BiasPriceAsc:
		sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].Price < filtered[j].Price })
	case BiasRatingDesc:
		sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].Rating > filtered[j].Rating })
	default:
		sort.SliceStable(filtered, func(i, j int) bool {
			return filtered[i].Rating*2-filtered[i].Price/100 > filtered[j].Rating*2-filtered[j].Price/100
		})
	}
	return filtered
}

func mergeFilters(q *Query, f Filters) {
	if f.MaxPrice != nil && (q.MaxPrice == nil || *f.MaxPrice < *q.MaxPrice) {
		q.MaxPrice = f.MaxPrice
	}
	if f.MinPrice != nil && (q.MinPrice == nil || *f.MinPrice > *q.MinPrice) {
		q.MinPrice = f.MinPrice
	}
}
