package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Filters are the caller-supplied constraints that participate in the cache
// key alongside the parsed query.
type Filters struct {
	MinPrice *float64 `json:"min_price,omitempty"`
	MaxPrice *float64 `json:"max_price,omitempty"`
	Category string   `json:"category,omitempty"`
	Retailer string   `json:"retailer,omitempty"`
}

// Cache holds search-result blobs in redis under a derived key with a fixed
// TTL. A cache miss is not an error; provider fan-out covers it.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewCache(rdb *redis.Client, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, ttl: ttl}
}

// CacheKey derives the lookup key from the normalized query, the filters
// and the geo. Two searches that normalize identically share an entry.
func CacheKey(q Query, f Filters, geo Geo) string {
	var b strings.Builder
	b.WriteString(q.Cleaned)
	b.WriteByte('|')
	b.WriteString(string(q.Bias))
	b.WriteByte('|')
	if q.MinPrice != nil {
		fmt.Fprintf(&b, "min=%.2f", *q.MinPrice)
	}
	if q.MaxPrice != nil {
		fmt.Fprintf(&b, "max=%.2f", *q.MaxPrice)
	}
	if f.MinPrice != nil {
		fmt.Fprintf(&b, "fmin=%.2f", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		fmt.Fprintf(&b, "fmax=%.2f", *f.MaxPrice)
	}
	b.WriteByte('|')
	b.WriteString(strings.ToLower(f.Category))
	b.WriteByte('|')
	b.WriteString(strings.ToLower(f.Retailer))
	b.WriteByte('|')
	b.WriteString(geo.Country)

	sum := sha256.Sum256([]byte(b.String()))
	return "search:" + hex.EncodeToString(sum[:16])
}

func (c *Cache) Get(ctx context.Context, key string) ([]Candidate, bool) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.WarnContext(ctx, "search cache read failed", slog.String("error", err.Error()))
		}
		return nil, false
	}
	var out []Candidate
	if err := json.Unmarshal(raw, &out); err != nil {
		slog.WarnContext(ctx, "search cache entry corrupt", slog.String("key", key))
		return nil, false
	}
	return out, true
}

func (c *Cache) Set(ctx context.Context, key string, products []Candidate) {
	raw, err := json.Marshal(products)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		slog.WarnContext(ctx, "search cache write failed", slog.String("error", err.Error()))
	}
}
