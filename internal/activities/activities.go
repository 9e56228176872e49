// Package activities holds the Temporal activity implementations for the
// purchase and search pipelines. Activities are the only code that touches
// the database, the wallet provider, or a browser; workflows stay
// deterministic.
package activities

import (
	"gorm.io/gorm"

	"github.com/clawcart/clawcart/internal/checkout"
	"github.com/clawcart/clawcart/internal/notifications"
	"github.com/clawcart/clawcart/internal/orders"
	"github.com/clawcart/clawcart/internal/search"
	"github.com/clawcart/clawcart/internal/wallet"
)

type Activities struct {
	db            *gorm.DB
	orders        *orders.Service
	wallet        wallet.Provider
	engine        *checkout.Engine
	searcher      *search.Service
	catalog       *search.Catalog
	notifications *notifications.Store
}

func New(
	db *gorm.DB,
	orderSvc *orders.Service,
	walletProvider wallet.Provider,
	engine *checkout.Engine,
	searcher *search.Service,
	catalog *search.Catalog,
	notificationStore *notifications.Store,
) *Activities {
	return &Activities{
		db:            db,
		orders:        orderSvc,
		wallet:        walletProvider,
		engine:        engine,
		searcher:      searcher,
		catalog:       catalog,
		notifications: notificationStore,
	}
}
