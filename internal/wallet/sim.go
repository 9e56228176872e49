package wallet

import (
	"context"
	"fmt"
	"sync"
)

// SimProvider is a deterministic in-memory wallet used in development and
// tests. Balances are per address; off-ramps debit them and mint a fake
// card, refunds credit the debit back minus the fee.
type SimProvider struct {
	mu       sync.Mutex
	balances map[string]float64
	ramps    map[string]simRamp
	feeRate  float64
	seq      int
}

type simRamp struct {
	walletAddress string
	amount        float64
	refunded      bool
}

func NewSimProvider(feeRate float64) *SimProvider {
	return &SimProvider{
		balances: make(map[string]float64),
		ramps:    make(map[string]simRamp),
		feeRate:  feeRate,
	}
}

// Fund credits an address, for seeding.
func (s *SimProvider) Fund(walletAddress string, amount float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[walletAddress] += amount
}

func (s *SimProvider) GetBalance(ctx context.Context, walletAddress string) (*Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Balance{
		WalletAddress: walletAddress,
		Stablecoin:    "USDC",
		Amount:        s.balances[walletAddress],
	}, nil
}

func (s *SimProvider) OffRamp(ctx context.Context, req OffRampRequest) (*OffRampResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fee := req.FiatAmount * s.feeRate
	needed := req.FiatAmount + fee
	if s.balances[req.WalletAddress] < needed {
		return nil, ErrInsufficientBalance
	}
	s.balances[req.WalletAddress] -= needed
	s.seq++

	txID := fmt.Sprintf("sim_offramp_%06d", s.seq)
	s.ramps[txID] = simRamp{walletAddress: req.WalletAddress, amount: req.FiatAmount}

	return &OffRampResult{
		ProviderTxID:     txID,
		StablecoinAmount: needed,
		Fee:              fee,
		ExchangeRate:     1.0,
		Card: VirtualCard{
			Number:   fmt.Sprintf("4000%012d", s.seq),
			ExpMonth: "12",
			ExpYear:  "2030",
			CVC:      "123",
			Holder:   "CLAWCART PURCHASES",
		},
	}, nil
}

// Refund is idempotent: repeating a refund for the same off-ramp is a no-op.
func (s *SimProvider) Refund(ctx context.Context, providerTxID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ramp, ok := s.ramps[providerTxID]
	if !ok {
		return fmt.Errorf("unknown off-ramp %q", providerTxID)
	}
	if ramp.refunded {
		return nil
	}
	ramp.refunded = true
	s.ramps[providerTxID] = ramp
	s.balances[ramp.walletAddress] += ramp.amount
	return nil
}
