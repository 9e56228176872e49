package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransactionStatusChain(t *testing.T) {
	happyPath := []TransactionStatus{
		TxStatusPending,
		TxStatusOffRamping,
		TxStatusOffRampComplete,
		TxStatusCompleted,
	}
	for i := 0; i < len(happyPath)-1; i++ {
		require.True(t, happyPath[i].CanAdvance(happyPath[i+1]),
			"%s -> %s should be legal", happyPath[i], happyPath[i+1])
	}

	require.True(t, TxStatusOffRamping.CanAdvance(TxStatusFailed))
	require.True(t, TxStatusOffRampComplete.CanAdvance(TxStatusRefundPending))
	require.True(t, TxStatusRefundPending.CanAdvance(TxStatusRefunded))
}

func TestTransactionStatusChain_IllegalMoves(t *testing.T) {
	cases := []struct {
		from, to TransactionStatus
	}{
		{TxStatusPending, TxStatusOffRampComplete},
		{TxStatusPending, TxStatusCompleted},
		{TxStatusOffRamping, TxStatusCompleted},
		{TxStatusCompleted, TxStatusOffRampComplete},
		{TxStatusFailed, TxStatusOffRamping},
		{TxStatusRefunded, TxStatusRefundPending},
	}
	for _, tc := range cases {
		require.False(t, tc.from.CanAdvance(tc.to),
			"%s -> %s should be illegal", tc.from, tc.to)
	}
}
