package orders

import (
	"errors"
	"fmt"

	"github.com/clawcart/clawcart/internal/models"
)

var (
	ErrIllegalTransition = errors.New("illegal order status transition")
	ErrStaleOrder        = errors.New("order was modified concurrently")
	ErrNotPending        = errors.New("order is not awaiting approval")
	ErrNotOwner          = errors.New("order does not belong to this user")
)

// legalNext is the order lifecycle graph. Any non-terminal state may also
// move to cancelled by explicit user action, which is folded in here rather
// than special-cased at the call sites.
var legalNext = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPendingApproval: {models.OrderStatusApproved, models.OrderStatusCancelled},
	models.OrderStatusApproved:        {models.OrderStatusProcessing, models.OrderStatusCancelled},
	models.OrderStatusProcessing:      {models.OrderStatusPurchasing, models.OrderStatusFailed, models.OrderStatusCancelled},
	models.OrderStatusPurchasing:      {models.OrderStatusConfirmed, models.OrderStatusFailed, models.OrderStatusCancelled},
	models.OrderStatusConfirmed:       {models.OrderStatusShipped, models.OrderStatusCancelled},
	models.OrderStatusShipped:         {models.OrderStatusDelivered, models.OrderStatusCancelled},
	models.OrderStatusFailed:          {models.OrderStatusRefunded},
	models.OrderStatusDelivered:       {},
	models.OrderStatusCancelled:       {},
	models.OrderStatusRefunded:        {},
}

// CanTransition reports whether moving from one status to another follows
// the lifecycle graph.
func CanTransition(from, to models.OrderStatus) bool {
	for _, next := range legalNext[from] {
		if next == to {
			return true
		}
	}
	return false
}

func illegal(from, to models.OrderStatus) error {
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
}
