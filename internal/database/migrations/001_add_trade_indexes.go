package migrations

import (
	"gorm.io/gorm"
)

// AddTradeIndexes creates the query indexes the escrow service leans on
// beyond what the model tags declare
func AddTradeIndexes(db *gorm.DB) error {
	// Using raw SQL for index creation to have more control over index types
	indexes := []string{
		// Index for status filtering
		`CREATE INDEX IF NOT EXISTS idx_trades_status
		 ON trades(status)`,

		// Party lookups, both sides of a trade
		`CREATE INDEX IF NOT EXISTS idx_trades_seller
		 ON trades(seller)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_buyer
		 ON trades(buyer)`,

		// Audit trail reads fetch a whole trade's events in insert order
		`CREATE INDEX IF NOT EXISTS idx_trade_events_trade_id
		 ON trade_events(trade_id)`,

		// Index for event kind filtering
		`CREATE INDEX IF NOT EXISTS idx_trade_events_kind
		 ON trade_events(kind)`,
	}

	// Execute each index creation
	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
