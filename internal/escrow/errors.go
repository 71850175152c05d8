package escrow

import "errors"

// Every operation fails with exactly one of these; there is no partial
// success and no retry inside the service. Retry semantics belong to
// the caller.
var (
	ErrAlreadyInitialized      = errors.New("platform already initialized")
	ErrNotInitialized          = errors.New("platform not initialized")
	ErrInvalidAmount           = errors.New("trade amount must be greater than zero")
	ErrInvalidFeeBps           = errors.New("fee basis points outside [0, 10000]")
	ErrArbitratorNotRegistered = errors.New("arbitrator not registered")
	ErrTradeNotFound           = errors.New("trade not found")
	ErrInvalidStatus           = errors.New("invalid trade status for this operation")
	ErrOverflow                = errors.New("arithmetic overflow")
	ErrNoFeesToWithdraw        = errors.New("no accumulated fees to withdraw")
	ErrUnauthorized            = errors.New("caller not authorized for this operation")
)
