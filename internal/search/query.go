package search

import (
	"regexp"
	"strconv"
	"strings"
)

// SortBias is the qualitative ranking signal extracted from the query text.
type SortBias string

const (
	BiasNone      SortBias = "none"
	BiasPriceAsc  SortBias = "price_asc"
	BiasRatingDesc SortBias = "rating_desc"
)

// Query is the structured form of a free-text request. Parse is pure: same
// text in, same query out, no lookups.
type Query struct {
	Raw      string   `json:"raw"`
	Cleaned  string   `json:"cleaned"`
	Intent   string   `json:"intent"`
	MinPrice *float64 `json:"min_price,omitempty"`
	MaxPrice *float64 `json:"max_price,omitempty"`
	Bias     SortBias `json:"bias"`
	Enriched string   `json:"enriched"`
	// ProviderHint routes category-heavy queries to the provider that
	// carries that vertical.
	ProviderHint string `json:"provider_hint,omitempty"`
}

var (
	maxPriceRe     = regexp.MustCompile(`(?i)\b(?:under|below|less than|at most|up to|max(?:imum)?)\s*\$?\s*(\d+(?:\.\d+)?)`)
	minPriceRe     = regexp.MustCompile(`(?i)\b(?:over|above|more than|at least|min(?:imum)?)\s*\$?\s*(\d+(?:\.\d+)?)`)
	rangePriceRe   = regexp.MustCompile(`(?i)\bbetween\s*\$?\s*(\d+(?:\.\d+)?)\s*and\s*\$?\s*(\d+(?:\.\d+)?)`)
	bareDollarRe   = regexp.MustCompile(`\$\s*\d+(?:\.\d+)?`)
	whitespaceRe   = regexp.MustCompile(`\s+`)
)

var cheapWords = []string{"cheap", "cheapest", "budget", "affordable", "inexpensive"}

var qualityWords = []string{"best", "top rated", "top-rated", "high quality", "premium", "quality"}

var intentKeywords = map[string][]string{
	"electronics": {"headphones", "earbuds", "laptop", "phone", "tablet", "monitor", "keyboard", "mouse", "camera", "speaker", "charger", "tv", "console", "wireless"},
	"clothing":    {"shirt", "t-shirt", "hoodie", "jacket", "jeans", "dress", "sneakers", "shoes", "boots", "socks", "hat", "leather"},
	"home":        {"sofa", "chair", "desk", "lamp", "mattress", "pillow", "blanket", "cookware", "vacuum", "kettle"},
	"beauty":      {"shampoo", "moisturizer", "lipstick", "perfume", "sunscreen", "serum"},
	"sports":      {"dumbbell", "yoga", "bicycle", "tent", "treadmill", "racket", "skateboard"},
	"toys":        {"lego", "puzzle", "doll", "board game", "action figure"},
	"books":       {"book", "novel", "paperback", "hardcover"},
}

// Parse turns free text into a structured query: numeric price bounds,
// qualitative signals, an intent category, and a cleaned query string with
// the extracted phrases removed.
func Parse(text string) Query {
	q := Query{Raw: text, Bias: BiasNone, Intent: "general"}
	working := strings.TrimSpace(text)

	if m := rangePriceRe.FindStringSubmatch(working); m != nil {
		lo, _ := strconv.ParseFloat(m[1], 64)
		hi, _ := strconv.ParseFloat(m[2], 64)
		if hi < lo {
			lo, hi = hi, lo
		}
		q.MinPrice, q.MaxPrice = &lo, &hi
		working = rangePriceRe.ReplaceAllString(working, " ")
	}
	if m := maxPriceRe.FindStringSubmatch(working); m != nil && q.MaxPrice == nil {
		v, _ := strconv.ParseFloat(m[1], 64)
		q.MaxPrice = &v
		working = maxPriceRe.ReplaceAllString(working, " ")
	}
	if m := minPriceRe.FindStringSubmatch(working); m != nil && q.MinPrice == nil {
		v, _ := strconv.ParseFloat(m[1], 64)
		q.MinPrice = &v
		working = minPriceRe.ReplaceAllString(working, " ")
	}
	working = bareDollarRe.ReplaceAllString(working, " ")

	lower := strings.ToLower(working)
	for _, w := range cheapWords {
		if strings.Contains(lower, w) {
			q.Bias = BiasPriceAsc
			lower = strings.ReplaceAll(lower, w, " ")
		}
	}
	for _, w := range qualityWords {
		if strings.Contains(lower, w) {
			if q.Bias == BiasNone {
				q.Bias = BiasRatingDesc
			}
			lower = strings.ReplaceAll(lower, w, " ")
		}
	}

	q.Cleaned = strings.TrimSpace(whitespaceRe.ReplaceAllString(lower, " "))

	for category, words := range intentKeywords {
		for _, w := range words {
			if strings.Contains(q.Cleaned, w) {
				q.Intent = category
				break
			}
		}
		if q.Intent != "general" {
			break
		}
	}

	q.Enriched = q.Cleaned
	if q.Intent != "general" {
		q.Enriched = q.Cleaned + " " + q.Intent
		q.ProviderHint = q.Intent
	}

	return q
}
