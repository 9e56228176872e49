package orders

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clawcart/clawcart/internal/models"
)

func TestCanTransition_HappyPath(t *testing.T) {
	path := []models.OrderStatus{
		models.OrderStatusPendingApproval,
		models.OrderStatusApproved,
		models.OrderStatusProcessing,
		models.OrderStatusPurchasing,
		models.OrderStatusConfirmed,
		models.OrderStatusShipped,
		models.OrderStatusDelivered,
	}
	for i := 0; i < len(path)-1; i++ {
		require.True(t, CanTransition(path[i], path[i+1]),
			"%s -> %s should be legal", path[i], path[i+1])
	}
}

func TestCanTransition_IllegalMoves(t *testing.T) {
	cases := []struct {
		from, to models.OrderStatus
	}{
		{models.OrderStatusPendingApproval, models.OrderStatusProcessing},
		{models.OrderStatusPendingApproval, models.OrderStatusConfirmed},
		{models.OrderStatusApproved, models.OrderStatusPurchasing},
		{models.OrderStatusProcessing, models.OrderStatusConfirmed},
		{models.OrderStatusConfirmed, models.OrderStatusFailed},
		{models.OrderStatusDelivered, models.OrderStatusShipped},
		{models.OrderStatusCancelled, models.OrderStatusApproved},
		{models.OrderStatusRefunded, models.OrderStatusFailed},
		{models.OrderStatusFailed, models.OrderStatusProcessing},
	}
	for _, tc := range cases {
		require.False(t, CanTransition(tc.from, tc.to),
			"%s -> %s should be illegal", tc.from, tc.to)
	}
}

func TestCanTransition_CancelFromNonTerminal(t *testing.T) {
	for _, from := range []models.OrderStatus{
		models.OrderStatusPendingApproval,
		models.OrderStatusApproved,
		models.OrderStatusProcessing,
		models.OrderStatusPurchasing,
		models.OrderStatusConfirmed,
		models.OrderStatusShipped,
	} {
		require.True(t, CanTransition(from, models.OrderStatusCancelled),
			"cancel from %s should be legal", from)
	}
}

func TestCanTransition_FailedToRefunded(t *testing.T) {
	require.True(t, CanTransition(models.OrderStatusFailed, models.OrderStatusRefunded))
	require.False(t, CanTransition(models.OrderStatusFailed, models.OrderStatusCancelled))
}

func TestCanTransition_ProcessingCanFail(t *testing.T) {
	// A payment declined before funds capture fails the order directly from
	// processing; it must never wedge there without a terminal move.
	require.True(t, CanTransition(models.OrderStatusProcessing, models.OrderStatusFailed))
}

func TestAutoApproved_StrictThreshold(t *testing.T) {
	require.True(t, AutoApproved(19.99, 25.00))
	require.False(t, AutoApproved(150.00, 25.00))
	// Boundary: equal to the threshold is not auto-approved.
	require.False(t, AutoApproved(25.00, 25.00))
	require.False(t, AutoApproved(0, 0))
}
