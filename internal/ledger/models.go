package ledger

import (
	"time"

	"gorm.io/gorm"
)

// Account holds one identity's balance in one token.
type Account struct {
	gorm.Model `json:"-"`
	Address    string    `gorm:"uniqueIndex:idx_ledger_token_address" json:"address"`
	Token      string    `gorm:"uniqueIndex:idx_ledger_token_address" json:"token"`
	Balance    uint64    `json:"balance"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// BalanceResponse is the external representation of an account balance.
type BalanceResponse struct {
	Address   string    `json:"address"`
	Token     string    `json:"token"`
	Balance   uint64    `json:"balance"`
	Timestamp time.Time `json:"timestamp"`
}
