package notifications

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingEvictsOldest(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil, 3)

	for i := 1; i <= 5; i++ {
		store.Notify(ctx, "u1", fmt.Sprintf("ord_%d", i), TypeOrderConfirmed, "confirmed")
	}

	recent := store.Recent("u1", 10)
	require.Len(t, recent, 3)
	assert.Equal(t, "ord_5", recent[0].OrderID)
	assert.Equal(t, "ord_3", recent[2].OrderID)
}

func TestRecentIsNewestFirstAndLimited(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil, 10)

	store.Notify(ctx, "u1", "ord_1", TypePurchaseStarted, "started")
	store.Notify(ctx, "u1", "ord_1", TypeOrderConfirmed, "confirmed")
	store.Notify(ctx, "u2", "ord_9", TypeOrderFailed, "failed")

	recent := store.Recent("u1", 1)
	require.Len(t, recent, 1)
	assert.Equal(t, TypeOrderConfirmed, recent[0].Type)

	assert.Empty(t, store.Recent("unknown", 5))

	other := store.Recent("u2", 5)
	require.Len(t, other, 1)
	assert.Equal(t, TypeOrderFailed, other[0].Type)
}
