package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Product is a catalog row persisted from fresh search results. It feeds the
// preference/ranking signals; it is not the source of truth for an order
// (orders carry their own immutable snapshot).
type Product struct {
	ID  uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	URL string    `gorm:"uniqueIndex;not null" json:"url"`

	Title    string  `gorm:"not null" json:"title"`
	Price    float64 `json:"price"`
	Currency string  `gorm:"type:varchar(8)" json:"currency"`
	Retailer string  `gorm:"index" json:"retailer"`
	ImageURL string  `json:"image_url,omitempty"`
	Category string  `gorm:"index" json:"category,omitempty"`
	Rating   float64 `json:"rating,omitempty"`

	SeenCount      int `gorm:"not null;default:0" json:"seen_count"`
	PurchasedCount int `gorm:"not null;default:0" json:"purchased_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Notification is the persisted form of an in-process notification once the
// ring buffer hands it off.
type Notification struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"-"`
	UserID  string    `gorm:"not null;index" json:"user_id"`
	OrderID string    `gorm:"index" json:"order_id,omitempty"`
	Type    string    `gorm:"type:varchar(32);not null" json:"type"`
	Message string    `json:"message"`

	CreatedAt time.Time `json:"created_at"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
