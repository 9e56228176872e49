// Package notifications delivers order lifecycle events to users. Recent
// events are held in a bounded per-user ring for cheap polling; every event
// is also persisted for history.
package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/clawcart/clawcart/internal/models"
)

// Event types.
const (
	TypeApprovalRequired = "approval_required"
	TypeOrderApproved    = "order_approved"
	TypeOrderRejected    = "order_rejected"
	TypePurchaseStarted  = "purchase_started"
	TypeOrderConfirmed   = "order_confirmed"
	TypeOrderFailed      = "order_failed"
	TypeOrderCancelled   = "order_cancelled"
	TypeOrderRefunded    = "order_refunded"
	TypeOrderShipped     = "order_shipped"
)

type Event struct {
	UserID    string    `json:"user_id"`
	OrderID   string    `json:"order_id,omitempty"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Store fans each event into a fixed-size per-user ring and the database.
// The ring holds the newest events; once full, the oldest entry is evicted.
// A database write failure never blocks delivery to the ring.
type Store struct {
	db   *gorm.DB
	size int

	mu    sync.RWMutex
	rings map[string][]Event
}

func NewStore(db *gorm.DB, ringSize int) *Store {
	if ringSize <= 0 {
		ringSize = 50
	}
	return &Store{db: db, size: ringSize, rings: make(map[string][]Event)}
}

func (s *Store) Notify(ctx context.Context, userID, orderID, eventType, message string) {
	ev := Event{
		UserID:    userID,
		OrderID:   orderID,
		Type:      eventType,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	ring := append(s.rings[userID], ev)
	if len(ring) > s.size {
		ring = ring[len(ring)-s.size:]
	}
	s.rings[userID] = ring
	s.mu.Unlock()

	if s.db != nil {
		row := models.Notification{
			UserID:  userID,
			OrderID: orderID,
			Type:    eventType,
			Message: message,
		}
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			slog.WarnContext(ctx, "notification not persisted",
				slog.String("user_id", userID),
				slog.String("type", eventType),
				slog.String("error", err.Error()),
			)
		}
	}

	slog.InfoContext(ctx, "notification",
		slog.String("user_id", userID),
		slog.String("order_id", orderID),
		slog.String("type", eventType),
	)
}

// Recent returns the newest events for a user, newest first, up to limit.
func (s *Store) Recent(userID string, limit int) []Event {
	s.mu.RLock()
	ring := s.rings[userID]
	s.mu.RUnlock()

	if limit <= 0 || limit > len(ring) {
		limit = len(ring)
	}
	out := make([]Event, 0, limit)
	for i := len(ring) - 1; i >= len(ring)-limit; i-- {
		out = append(out, ring[i])
	}
	return out
}
