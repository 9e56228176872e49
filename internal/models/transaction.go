package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TransactionType string

const (
	TransactionPurchase   TransactionType = "purchase"
	TransactionRefund     TransactionType = "refund"
	TransactionDeposit    TransactionType = "deposit"
	TransactionWithdrawal TransactionType = "withdrawal"
)

type TransactionStatus string

const (
	TxStatusPending         TransactionStatus = "pending"
	TxStatusOffRamping      TransactionStatus = "off_ramping"
	TxStatusOffRampComplete TransactionStatus = "off_ramp_complete"
	TxStatusCompleted       TransactionStatus = "completed"
	TxStatusFailed          TransactionStatus = "failed"
	TxStatusRefundPending   TransactionStatus = "refund_pending"
	TxStatusRefunded        TransactionStatus = "refunded"
)

// ledgerNext is the status chain for ledger entries. A purchase walks
// pending -> off_ramping -> off_ramp_complete -> completed; failures and
// refunds branch off, and terminal states never move again.
var ledgerNext = map[TransactionStatus][]TransactionStatus{
	TxStatusPending:         {TxStatusOffRamping},
	TxStatusOffRamping:      {TxStatusOffRampComplete, TxStatusFailed},
	TxStatusOffRampComplete: {TxStatusCompleted, TxStatusRefundPending},
	TxStatusRefundPending:   {TxStatusRefunded},
	TxStatusCompleted:       {},
	TxStatusFailed:          {},
	TxStatusRefunded:        {},
}

// CanAdvance reports whether a ledger row may move from one status to the
// next along the chain.
func (s TransactionStatus) CanAdvance(to TransactionStatus) bool {
	for _, next := range ledgerNext[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Transaction is a financial ledger entry, optionally tied 1:1 to an order.
// Created when purchase execution begins; updated only by the payment step.
type Transaction struct {
	ID       uuid.UUID  `gorm:"type:uuid;primaryKey" json:"-"`
	TxID     string     `gorm:"uniqueIndex;not null" json:"tx_id"`
	OrderRef *uuid.UUID `gorm:"type:uuid;index" json:"-"`
	UserID   string     `gorm:"not null;index" json:"user_id"`

	Type   TransactionType   `gorm:"type:varchar(16);not null" json:"type"`
	Status TransactionStatus `gorm:"type:varchar(24);not null;default:'pending'" json:"status"`

	StablecoinAmount float64 `json:"stablecoin_amount"`
	FiatAmount       float64 `json:"fiat_amount"`
	Currency         string  `gorm:"type:varchar(8)" json:"currency"`
	OffRampFee       float64 `json:"off_ramp_fee"`
	ExchangeRate     float64 `json:"exchange_rate"`

	WalletAddress string `json:"wallet_address,omitempty"`
	ProviderTxID  string `json:"provider_tx_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.TxID == "" {
		t.TxID = "txn_" + uuid.New().String()[:13]
	}
	return nil
}
