package activities

import (
	"github.com/clawcart/clawcart/internal/checkout"
	"github.com/clawcart/clawcart/internal/search"
	"github.com/clawcart/clawcart/internal/wallet"
)

type TransitionInput struct {
	OrderID string `json:"order_id"`
	To      string `json:"to"`
	Note    string `json:"note,omitempty"`
}

type PaymentInput struct {
	OrderID       string  `json:"order_id"`
	UserID        string  `json:"user_id"`
	WalletAddress string  `json:"wallet_address"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
}

type PaymentResult struct {
	Success          bool               `json:"success"`
	TxID             string             `json:"tx_id,omitempty"`
	ProviderTxID     string             `json:"provider_tx_id,omitempty"`
	Card             wallet.VirtualCard `json:"card,omitempty"`
	Fee              float64            `json:"fee,omitempty"`
	StablecoinAmount float64            `json:"stablecoin_amount,omitempty"`
	Reason           string             `json:"reason,omitempty"`
}

type CheckoutInput struct {
	OrderID    string             `json:"order_id"`
	UserID     string             `json:"user_id"`
	ProductURL string             `json:"product_url"`
	Card       wallet.VirtualCard `json:"card"`
	DryRun     bool               `json:"dry_run,omitempty"`
}

type CheckoutResult = checkout.Result

type FinalizeInput struct {
	OrderID         string `json:"order_id"`
	UserID          string `json:"user_id"`
	Success         bool   `json:"success"`
	DryRun          bool   `json:"dry_run,omitempty"`
	RetailerOrderID string `json:"retailer_order_id,omitempty"`
	ProductURL      string `json:"product_url,omitempty"`
	ExecutionMs     int64  `json:"execution_ms,omitempty"`
	Attempts        int    `json:"attempts,omitempty"`
	FailureReason   string `json:"failure_reason,omitempty"`
}

type RefundInput struct {
	OrderID      string `json:"order_id"`
	TxID         string `json:"tx_id"`
	ProviderTxID string `json:"provider_tx_id"`
}

type NotifyInput struct {
	UserID  string `json:"user_id"`
	OrderID string `json:"order_id,omitempty"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type SearchInput struct {
	UserID   string         `json:"user_id"`
	Text     string         `json:"text"`
	Filters  search.Filters `json:"filters"`
	Country  string         `json:"country,omitempty"`
	Limit    int            `json:"limit,omitempty"`
}

type SearchOutput struct {
	SessionID string             `json:"session_id"`
	Source    string             `json:"source"`
	Intent    string             `json:"intent"`
	Products  []search.Candidate `json:"products"`
}

type RecordMetricsInput struct {
	OrderID       string  `json:"order_id"`
	Confirmed     bool    `json:"confirmed"`
	DurationSecs  float64 `json:"duration_secs"`
	FailureReason string  `json:"failure_reason,omitempty"`
}
