package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ShippingAddress is the user's default delivery address. Its country is the
// source of truth for search geo and display currency; network origin is
// never used for that.
type ShippingAddress struct {
	FullName string `json:"full_name"`
	Street   string `json:"street"`
	City     string `json:"city"`
	State    string `json:"state"`
	ZipCode  string `json:"zip_code"`
	Country  string `gorm:"type:varchar(2);default:'US'" json:"country"`
	Phone    string `json:"phone,omitempty"`
}

type User struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"-"`
	UserID string    `gorm:"uniqueIndex;not null" json:"user_id"`
	Email  string    `gorm:"index" json:"email"`

	// Orders with amount strictly below the threshold are auto-approved;
	// an amount equal to the threshold still requires human sign-off.
	AutoApproveThreshold float64 `gorm:"not null;default:0" json:"auto_approve_threshold"`

	WalletAddress string          `json:"wallet_address,omitempty"`
	Address       ShippingAddress `gorm:"embedded;embeddedPrefix:address_" json:"address"`

	Sizes string `json:"sizes,omitempty"`
	Notes string `json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
