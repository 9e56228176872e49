package database

import (
	"errors"

	"gorm.io/gorm"

	"github.com/clawcart/clawcart/internal/models"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Product{},
		&models.Order{},
		&models.OrderStatusChange{},
		&models.CheckoutFlow{},
		&models.FlowStep{},
		&models.Transaction{},
		&models.Notification{},
	)
}

func Seed(db *gorm.DB) error {
	users := []models.User{
		{
			UserID:               "demo-user",
			Email:                "demo@clawcart.dev",
			AutoApproveThreshold: 25.00,
			WalletAddress:        "0x6f1e7a9c41d2b8e3",
			Address: models.ShippingAddress{
				FullName: "Demo User",
				Street:   "123 Test Street",
				City:     "Amsterdam",
				State:    "NH",
				ZipCode:  "1012AB",
				Country:  "NL",
				Phone:    "+31612345678",
			},
		},
	}

	for _, u := range users {
		var existing models.User
		if err := db.Where("user_id = ?", u.UserID).First(&existing).Error; errors.Is(err, gorm.ErrRecordNotFound) {
			if err := db.Create(&u).Error; err != nil {
				return err
			}
		}
	}

	return nil
}
