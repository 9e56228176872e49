package wallet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimProviderOffRampAndRefund(t *testing.T) {
	ctx := context.Background()
	p := NewSimProvider(0.01)
	p.Fund("0xabc", 100)

	res, err := p.OffRamp(ctx, OffRampRequest{
		WalletAddress: "0xabc",
		FiatAmount:    50,
		Currency:      "USD",
		Reference:     "ord_1",
	})
	require.NoError(t, err)
	assert.Equal(t, 0.5, res.Fee)
	assert.NotEmpty(t, res.Card.Number)

	bal, err := p.GetBalance(ctx, "0xabc")
	require.NoError(t, err)
	assert.InDelta(t, 49.5, bal.Amount, 0.001)

	// Refund returns the purchase amount; the fee is kept.
	require.NoError(t, p.Refund(ctx, res.ProviderTxID))
	require.NoError(t, p.Refund(ctx, res.ProviderTxID), "refund is idempotent")

	bal, err = p.GetBalance(ctx, "0xabc")
	require.NoError(t, err)
	assert.InDelta(t, 99.5, bal.Amount, 0.001)
}

func TestSimProviderInsufficientBalance(t *testing.T) {
	p := NewSimProvider(0.01)
	p.Fund("0xabc", 10)

	_, err := p.OffRamp(context.Background(), OffRampRequest{
		WalletAddress: "0xabc",
		FiatAmount:    50,
	})
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}
