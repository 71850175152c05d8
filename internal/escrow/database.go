package escrow

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// Transaction runs fn inside a single database transaction. Every
// state-mutating operation goes through here so staged writes, the
// ledger transfer and the event append commit or roll back as one unit.
func (d *Database) Transaction(fn func(tx *gorm.DB) error) error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

// GetConfig loads the singleton platform configuration.
func (d *Database) GetConfig() (*PlatformConfig, error) {
	return configTx(d.db)
}

// GetTrade retrieves a trade by its sequential id.
func (d *Database) GetTrade(tradeID uint64) (*Trade, error) {
	return tradeTx(d.db, tradeID)
}

// IsArbitratorRegistered reports registry membership for an address.
func (d *Database) IsArbitratorRegistered(address string) (bool, error) {
	return arbitratorRegisteredTx(d.db, address)
}

// GetTradeEvents returns the audit trail for a trade, oldest first.
func (d *Database) GetTradeEvents(tradeID uint64) ([]TradeEvent, error) {
	var events []TradeEvent
	if err := d.db.Where("trade_id = ?", tradeID).Order("id ASC").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch trade events: %w", err)
	}
	return events, nil
}

func configTx(tx *gorm.DB) (*PlatformConfig, error) {
	var config PlatformConfig
	if err := tx.First(&config).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotInitialized
		}
		return nil, err
	}
	return &config, nil
}

func tradeTx(tx *gorm.DB, tradeID uint64) (*Trade, error) {
	var trade Trade
	if err := tx.Where("trade_id = ?", tradeID).First(&trade).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTradeNotFound
		}
		return nil, err
	}
	return &trade, nil
}

func arbitratorRegisteredTx(tx *gorm.DB, address string) (bool, error) {
	var count int64
	if err := tx.Model(&Arbitrator{}).Where("address = ?", address).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func saveConfigTx(tx *gorm.DB, config *PlatformConfig) error {
	return tx.Save(config).Error
}

func saveTradeTx(tx *gorm.DB, trade *Trade) error {
	return tx.Save(trade).Error
}

func createTradeTx(tx *gorm.DB, trade *Trade) error {
	return tx.Create(trade).Error
}

func createArbitratorTx(tx *gorm.DB, address string) error {
	return tx.Create(&Arbitrator{Address: address}).Error
}

func deleteArbitratorTx(tx *gorm.DB, address string) error {
	return tx.Unscoped().Where("address = ?", address).Delete(&Arbitrator{}).Error
}
