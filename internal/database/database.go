package database

import (
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ksred/escrow-api/internal/database/migrations"
	"github.com/ksred/escrow-api/internal/escrow"
	"github.com/ksred/escrow-api/internal/ledger"
)

// NewDatabase initializes and returns a new GORM DB connection
func NewDatabase(path string) (*gorm.DB, error) {
	if path == "" {
		path = "escrow.db"
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&escrow.PlatformConfig{},
		&escrow.Trade{},
		&escrow.Arbitrator{},
		&escrow.TradeEvent{},
		&ledger.Account{},
	)
	if err != nil {
		return nil, err
	}

	if err := migrations.AddTradeIndexes(db); err != nil {
		return nil, err
	}

	return db, nil
}
