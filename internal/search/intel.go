package search

import (
	"context"
	"log/slog"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/clawcart/clawcart/internal/models"
)

// Catalog persists fresh search results for the preference/ranking signals.
// It sits off the execution-critical path: a write failure here is logged
// and absorbed, never surfaced to the searcher.
type Catalog struct {
	db *gorm.DB
}

func NewCatalog(db *gorm.DB) *Catalog {
	return &Catalog{db: db}
}

func (c *Catalog) RecordSeen(ctx context.Context, candidates []Candidate) {
	for _, cand := range candidates {
		if cand.URL == "" {
			continue
		}
		row := models.Product{
			URL:       cand.URL,
			Title:     cand.Title,
			Price:     cand.Price,
			Currency:  cand.Currency,
			Retailer:  cand.Retailer,
			ImageURL:  cand.ImageURL,
			Category:  cand.Category,
			Rating:    cand.Rating,
			SeenCount: 1,
		}
		err := c.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "url"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"price":      cand.Price,
				"rating":     cand.Rating,
				"seen_count": gorm.Expr("products.seen_count + 1"),
			}),
		}).Create(&row).Error
		if err != nil {
			slog.WarnContext(ctx, "catalog upsert failed",
				slog.String("url", cand.URL),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (c *Catalog) RecordPurchase(ctx context.Context, productURL string) {
	if productURL == "" {
		return
	}
	err := c.db.WithContext(ctx).Model(&models.Product{}).
		Where("url = ?", productURL).
		UpdateColumn("purchased_count", gorm.Expr("purchased_count + 1")).Error
	if err != nil {
		slog.WarnContext(ctx, "catalog purchase count update failed",
			slog.String("url", productURL),
			slog.String("error", err.Error()),
		)
	}
}
