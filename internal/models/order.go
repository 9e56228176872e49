package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type OrderStatus string

const (
	OrderStatusPendingApproval OrderStatus = "pending_approval"
	OrderStatusApproved        OrderStatus = "approved"
	OrderStatusProcessing      OrderStatus = "processing"
	OrderStatusPurchasing      OrderStatus = "purchasing"
	OrderStatusConfirmed       OrderStatus = "confirmed"
	OrderStatusShipped         OrderStatus = "shipped"
	OrderStatusDelivered       OrderStatus = "delivered"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusFailed          OrderStatus = "failed"
	OrderStatusRefunded        OrderStatus = "refunded"
)

// IsTerminal reports whether no further transition may leave the status.
// Confirmed orders still advance through shipping, so they are not terminal.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return true
	}
	return false
}

// ProductSnapshot is captured at order creation and never re-fetched, so
// price or listing drift after purchase cannot corrupt order history.
type ProductSnapshot struct {
	Title    string  `json:"title"`
	Price    float64 `json:"price"`
	Currency string  `gorm:"type:varchar(8)" json:"currency"`
	Retailer string  `json:"retailer"`
	URL      string  `json:"url"`
	ImageURL string  `json:"image_url,omitempty"`
	Category string  `json:"category,omitempty"`
}

type PaymentSnapshot struct {
	Method           string  `json:"method"`
	Amount           float64 `json:"amount"`
	Currency         string  `gorm:"type:varchar(8)" json:"currency"`
	StablecoinAmount float64 `json:"stablecoin_amount,omitempty"`
	OffRampFee       float64 `json:"off_ramp_fee,omitempty"`
	ProviderTxID     string  `json:"provider_tx_id,omitempty"`
}

type ApprovalRecord struct {
	Required   bool       `json:"required"`
	Auto       bool       `json:"auto"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	RejectedAt *time.Time `json:"rejected_at,omitempty"`
	Actor      string     `json:"actor,omitempty"`
	Reason     string     `json:"reason,omitempty"`
}

type TrackingRecord struct {
	RetailerOrderID   string     `json:"retailer_order_id,omitempty"`
	Carrier           string     `json:"carrier,omitempty"`
	TrackingID        string     `json:"tracking_id,omitempty"`
	TrackingURL       string     `json:"tracking_url,omitempty"`
	EstimatedDelivery *time.Time `json:"estimated_delivery,omitempty"`
}

// Order is one purchase attempt. The external OrderID is opaque and stable;
// the primary key is internal and never leaves the API boundary. Orders are
// never deleted: terminal states are retained for audit.
type Order struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"-"`
	OrderID string    `gorm:"uniqueIndex;not null" json:"order_id"`
	UserID  string    `gorm:"not null;index" json:"user_id"`
	AgentID string    `gorm:"index" json:"agent_id,omitempty"`

	Status OrderStatus `gorm:"type:varchar(32);not null;index" json:"status"`
	// Version is the optimistic-lock counter; a transition observing a stale
	// version fails instead of overwriting a concurrent one.
	Version int `gorm:"not null;default:0" json:"-"`

	Product  ProductSnapshot `gorm:"embedded;embeddedPrefix:product_" json:"product"`
	Payment  PaymentSnapshot `gorm:"embedded;embeddedPrefix:payment_" json:"payment"`
	Approval ApprovalRecord  `gorm:"embedded;embeddedPrefix:approval_" json:"approval"`
	Tracking TrackingRecord  `gorm:"embedded;embeddedPrefix:tracking_" json:"tracking"`

	SearchQuery   string `json:"search_query,omitempty"`
	SessionID     string `json:"session_id,omitempty"`
	WorkflowID    string `gorm:"index" json:"workflow_id,omitempty"`
	ExecutionMs   int64  `json:"execution_ms,omitempty"`
	RetryCount    int    `json:"retry_count"`
	FailureReason string `json:"failure_reason,omitempty"`

	History []OrderStatusChange `gorm:"foreignKey:OrderRef" json:"history,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.OrderID == "" {
		o.OrderID = NewOrderID()
	}
	return nil
}

// NewOrderID mints the externally-visible order identifier.
func NewOrderID() string {
	return fmt.Sprintf("ord_%s", uuid.New().String()[:13])
}

// OrderStatusChange is one entry in an order's append-only status history.
// Seq mirrors the order version at the time of the change, giving a strict
// per-order ordering that does not depend on clock resolution.
type OrderStatusChange struct {
	ID        uuid.UUID   `gorm:"type:uuid;primaryKey" json:"-"`
	OrderRef  uuid.UUID   `gorm:"type:uuid;not null;index" json:"-"`
	Seq       int         `gorm:"not null" json:"seq"`
	Status    OrderStatus `gorm:"type:varchar(32);not null" json:"status"`
	Note      string      `json:"note,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

func (c *OrderStatusChange) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
