package escrow

import (
	"time"

	"gorm.io/gorm"
)

// TradeStatus represents the lifecycle state of a trade.
type TradeStatus string

const (
	StatusCreated           TradeStatus = "CREATED"
	StatusFunded            TradeStatus = "FUNDED"
	StatusCompleted         TradeStatus = "COMPLETED"
	StatusDisputed          TradeStatus = "DISPUTED"
	StatusCancelled         TradeStatus = "CANCELLED"
	StatusConfirmedReleased TradeStatus = "CONFIRMED_RELEASED"
	StatusResolved          TradeStatus = "RESOLVED"
)

// IsTerminal reports whether no further transition is permitted.
func (s TradeStatus) IsTerminal() bool {
	switch s {
	case StatusCancelled, StatusConfirmedReleased, StatusResolved:
		return true
	}
	return false
}

// DisputeResolution is the arbitrator's verdict on a disputed trade.
type DisputeResolution string

const (
	ReleaseToBuyer  DisputeResolution = "RELEASE_TO_BUYER"
	ReleaseToSeller DisputeResolution = "RELEASE_TO_SELLER"
)

// Valid reports whether the resolution is one of the known variants.
func (r DisputeResolution) Valid() bool {
	return r == ReleaseToBuyer || r == ReleaseToSeller
}

// Trade is the durable record of a single escrowed trade. The fee is
// locked in at creation from the then-current platform rate; later fee
// updates never touch existing trades.
type Trade struct {
	gorm.Model `json:"-"`
	TradeID    uint64      `gorm:"uniqueIndex" json:"trade_id"`
	Seller     string      `json:"seller"`
	Buyer      string      `json:"buyer"`
	Arbitrator string      `json:"arbitrator,omitempty"` // empty = no arbitration path
	Amount     uint64      `json:"amount"`
	Fee        uint64      `json:"fee"`
	Status     TradeStatus `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// PlatformConfig is the singleton platform configuration row, created
// exactly once by Initialize and mutated only by admin operations.
type PlatformConfig struct {
	gorm.Model      `json:"-"`
	Admin           string    `json:"admin"`
	PaymentToken    string    `json:"payment_token"`
	FeeBps          uint32    `json:"fee_bps"`
	TradeCounter    uint64    `json:"trade_counter"`
	AccumulatedFees uint64    `json:"accumulated_fees"`
	Initialized     bool      `json:"initialized"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Arbitrator is a registry entry for an identity approved to resolve
// disputes.
type Arbitrator struct {
	gorm.Model `json:"-"`
	Address    string    `gorm:"uniqueIndex" json:"address"`
	CreatedAt  time.Time `json:"created_at"`
}

// TradeEvent is an append-only audit record written in the same
// transaction as the mutation it describes.
type TradeEvent struct {
	gorm.Model `json:"-"`
	EventID    string            `gorm:"uniqueIndex" json:"event_id"`
	Kind       string            `json:"kind"`
	TradeID    uint64            `json:"trade_id,omitempty"`
	Actor      string            `json:"actor,omitempty"`
	Recipient  string            `json:"recipient,omitempty"`
	Amount     uint64            `json:"amount,omitempty"`
	Fee        uint64            `json:"fee,omitempty"`
	FeeBps     uint32            `json:"fee_bps,omitempty"`
	Resolution DisputeResolution `json:"resolution,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// TradeResponse is the external representation of a trade.
type TradeResponse struct {
	TradeID    uint64      `json:"trade_id"`
	Seller     string      `json:"seller"`
	Buyer      string      `json:"buyer"`
	Arbitrator string      `json:"arbitrator,omitempty"`
	Amount     uint64      `json:"amount"`
	Fee        uint64      `json:"fee"`
	Status     TradeStatus `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// SettlementResponse reports the split applied when escrowed funds are
// released to a party.
type SettlementResponse struct {
	TradeID   uint64      `json:"trade_id"`
	Recipient string      `json:"recipient"`
	Payout    uint64      `json:"payout"`
	Fee       uint64      `json:"fee"`
	Status    TradeStatus `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
}

// WithdrawalResponse reports an admin fee withdrawal.
type WithdrawalResponse struct {
	Recipient string    `json:"recipient"`
	Amount    uint64    `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

func (t *Trade) toResponse() *TradeResponse {
	return &TradeResponse{
		TradeID:    t.TradeID,
		Seller:     t.Seller,
		Buyer:      t.Buyer,
		Arbitrator: t.Arbitrator,
		Amount:     t.Amount,
		Fee:        t.Fee,
		Status:     t.Status,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
}
