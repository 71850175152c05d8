package escrow

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Event kinds, one per successful mutation.
const (
	EventTradeCreated         = "created"
	EventTradeFunded          = "funded"
	EventTradeCompleted       = "complete"
	EventTradeConfirmed       = "confirm"
	EventTradeCancelled       = "cancel"
	EventDisputeRaised        = "dispute"
	EventDisputeResolved      = "resolved"
	EventArbitratorRegistered = "arb_reg"
	EventArbitratorRemoved    = "arb_rem"
	EventFeeUpdated           = "fee_upd"
	EventFeesWithdrawn        = "fees_out"
)

// appendEventTx stages an audit event inside the operation's
// transaction, after the mutation and any settlement transfer. A failed
// operation rolls the event back with everything else, so the trail
// only ever records committed mutations.
func appendEventTx(tx *gorm.DB, event *TradeEvent) error {
	event.EventID = "EVT_" + uuid.New().String()
	return tx.Create(event).Error
}

func newTradeCreatedEvent(trade *Trade) *TradeEvent {
	return &TradeEvent{
		Kind:    EventTradeCreated,
		TradeID: trade.TradeID,
		Actor:   trade.Seller,
		Amount:  trade.Amount,
		Fee:     trade.Fee,
	}
}

func newTradeFundedEvent(trade *Trade) *TradeEvent {
	return &TradeEvent{
		Kind:    EventTradeFunded,
		TradeID: trade.TradeID,
		Actor:   trade.Buyer,
		Amount:  trade.Amount,
	}
}

func newTradeCompletedEvent(trade *Trade) *TradeEvent {
	return &TradeEvent{
		Kind:    EventTradeCompleted,
		TradeID: trade.TradeID,
		Actor:   trade.Seller,
	}
}

func newTradeConfirmedEvent(trade *Trade, payout uint64) *TradeEvent {
	return &TradeEvent{
		Kind:      EventTradeConfirmed,
		TradeID:   trade.TradeID,
		Actor:     trade.Buyer,
		Recipient: trade.Seller,
		Amount:    payout,
		Fee:       trade.Fee,
	}
}

func newTradeCancelledEvent(trade *Trade) *TradeEvent {
	return &TradeEvent{
		Kind:    EventTradeCancelled,
		TradeID: trade.TradeID,
		Actor:   trade.Seller,
	}
}

func newDisputeRaisedEvent(trade *Trade, raisedBy string) *TradeEvent {
	return &TradeEvent{
		Kind:    EventDisputeRaised,
		TradeID: trade.TradeID,
		Actor:   raisedBy,
	}
}

func newDisputeResolvedEvent(trade *Trade, resolution DisputeResolution, recipient string, payout uint64) *TradeEvent {
	return &TradeEvent{
		Kind:       EventDisputeResolved,
		TradeID:    trade.TradeID,
		Actor:      trade.Arbitrator,
		Recipient:  recipient,
		Amount:     payout,
		Fee:        trade.Fee,
		Resolution: resolution,
	}
}

func newArbitratorRegisteredEvent(admin, arbitrator string) *TradeEvent {
	return &TradeEvent{
		Kind:      EventArbitratorRegistered,
		Actor:     admin,
		Recipient: arbitrator,
	}
}

func newArbitratorRemovedEvent(admin, arbitrator string) *TradeEvent {
	return &TradeEvent{
		Kind:      EventArbitratorRemoved,
		Actor:     admin,
		Recipient: arbitrator,
	}
}

func newFeeUpdatedEvent(admin string, feeBps uint32) *TradeEvent {
	return &TradeEvent{
		Kind:   EventFeeUpdated,
		Actor:  admin,
		FeeBps: feeBps,
	}
}

func newFeesWithdrawnEvent(admin, recipient string, amount uint64) *TradeEvent {
	return &TradeEvent{
		Kind:      EventFeesWithdrawn,
		Actor:     admin,
		Recipient: recipient,
		Amount:    amount,
	}
}
