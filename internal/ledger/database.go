package ledger

import (
	"errors"
	"math"

	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// GetBalance returns the current balance for an address in a token.
// Unknown accounts hold zero.
func (d *Database) GetBalance(token, address string) (uint64, error) {
	return getBalanceTx(d.db, token, address)
}

// Credit adds funds to an account, creating it on first use.
func (d *Database) Credit(token, address string, amount uint64) error {
	return CreditTx(d.db, token, address, amount)
}

func getBalanceTx(tx *gorm.DB, token, address string) (uint64, error) {
	var account Account
	if err := tx.Where("token = ? AND address = ?", token, address).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return account.Balance, nil
}

// CreditTx adds funds to an account inside the caller's transaction.
func CreditTx(tx *gorm.DB, token, address string, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	var account Account
	err := tx.Where("token = ? AND address = ?", token, address).First(&account).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		account = Account{Address: address, Token: token, Balance: amount}
		return tx.Create(&account).Error
	case err != nil:
		return err
	}
	if account.Balance > math.MaxUint64-amount {
		return ErrBalanceOverflow
	}
	account.Balance += amount
	return tx.Save(&account).Error
}

// DebitTx removes funds from an account inside the caller's
// transaction. Fails with ErrInsufficientBalance when the account does
// not cover the amount.
func DebitTx(tx *gorm.DB, token, address string, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	var account Account
	if err := tx.Where("token = ? AND address = ?", token, address).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInsufficientBalance
		}
		return err
	}
	if account.Balance < amount {
		return ErrInsufficientBalance
	}
	account.Balance -= amount
	return tx.Save(&account).Error
}

// TransferTx moves funds between two accounts inside the caller's
// transaction. Both legs commit or neither does; the caller owns the
// transaction boundary.
func TransferTx(tx *gorm.DB, token, from, to string, amount uint64) error {
	if from == to {
		return ErrInvalidTransfer
	}
	if err := DebitTx(tx, token, from, amount); err != nil {
		return err
	}
	return CreditTx(tx, token, to, amount)
}
