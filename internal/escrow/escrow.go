package escrow

import (
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ksred/escrow-api/internal/ledger"
	"github.com/ksred/escrow-api/pkg/response"
)

// VaultAddress is the ledger account holding escrowed funds and
// captured fees, playing the contract's own address in the original
// settlement flow.
const VaultAddress = "escrow:vault"

// Service handles the trade lifecycle: state transitions, settlement
// through the ledger, fee capture and the audit trail. Every mutating
// operation runs as one database transaction; a failed ledger transfer
// rolls back the status change with everything else.
type Service struct {
	db *Database
}

// NewService creates a new escrow service with the given database connection
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// Initialize creates the singleton platform configuration. It succeeds
// exactly once; the caller must be the admin identity being installed.
func (s *Service) Initialize(caller, admin, paymentToken string, feeBps uint32) error {
	logger := log.With().
		Str("admin", admin).
		Str("payment_token", paymentToken).
		Uint32("fee_bps", feeBps).
		Str("service", "escrow").
		Logger()

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := configTx(tx); err == nil {
			return ErrAlreadyInitialized
		} else if !errors.Is(err, ErrNotInitialized) {
			return err
		}
		if feeBps > maxFeeBps {
			return ErrInvalidFeeBps
		}
		if caller != admin {
			return ErrUnauthorized
		}

		config := &PlatformConfig{
			Admin:           admin,
			PaymentToken:    paymentToken,
			FeeBps:          feeBps,
			TradeCounter:    0,
			AccumulatedFees: 0,
			Initialized:     true,
		}
		return tx.Create(config).Error
	})
	if err != nil {
		logger.Error().Err(err).Msg("platform initialization failed")
		return err
	}

	logger.Info().Msg("platform initialized")
	return nil
}

// RegisterArbitrator adds an identity to the arbitrator registry.
// Admin only.
func (s *Service) RegisterArbitrator(caller, arbitrator string) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		config, err := configTx(tx)
		if err != nil {
			return err
		}
		if caller != config.Admin {
			return ErrUnauthorized
		}

		registered, err := arbitratorRegisteredTx(tx, arbitrator)
		if err != nil {
			return err
		}
		if !registered {
			if err := createArbitratorTx(tx, arbitrator); err != nil {
				return err
			}
		}
		return appendEventTx(tx, newArbitratorRegisteredEvent(config.Admin, arbitrator))
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("arbitrator", arbitrator).
		Str("service", "escrow").
		Msg("arbitrator registered")
	return nil
}

// RemoveArbitrator removes an identity from the arbitrator registry.
// Admin only. Trades already bound to the arbitrator keep the binding
// but can no longer be resolved until the identity is re-registered.
func (s *Service) RemoveArbitrator(caller, arbitrator string) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		config, err := configTx(tx)
		if err != nil {
			return err
		}
		if caller != config.Admin {
			return ErrUnauthorized
		}
		if err := deleteArbitratorTx(tx, arbitrator); err != nil {
			return err
		}
		return appendEventTx(tx, newArbitratorRemovedEvent(config.Admin, arbitrator))
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("arbitrator", arbitrator).
		Str("service", "escrow").
		Msg("arbitrator removed")
	return nil
}

// UpdateFee changes the platform fee rate. Admin only. Existing trades
// keep the fee captured at their creation.
func (s *Service) UpdateFee(caller string, feeBps uint32) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		config, err := configTx(tx)
		if err != nil {
			return err
		}
		if feeBps > maxFeeBps {
			return ErrInvalidFeeBps
		}
		if caller != config.Admin {
			return ErrUnauthorized
		}

		config.FeeBps = feeBps
		if err := saveConfigTx(tx, config); err != nil {
			return err
		}
		return appendEventTx(tx, newFeeUpdatedEvent(config.Admin, feeBps))
	})
	if err != nil {
		return err
	}

	log.Info().
		Uint32("fee_bps", feeBps).
		Str("service", "escrow").
		Msg("platform fee updated")
	return nil
}

// WithdrawFees transfers the entire accumulated fee balance from the
// vault to the recipient and resets the counter, atomically. Admin only.
func (s *Service) WithdrawFees(caller, recipient string) (*WithdrawalResponse, error) {
	logger := log.With().
		Str("recipient", recipient).
		Str("service", "escrow").
		Logger()

	var amount uint64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		config, err := configTx(tx)
		if err != nil {
			return err
		}
		if caller != config.Admin {
			return ErrUnauthorized
		}
		if config.AccumulatedFees == 0 {
			return ErrNoFeesToWithdraw
		}

		amount = config.AccumulatedFees
		if err := ledger.TransferTx(tx, config.PaymentToken, VaultAddress, recipient, amount); err != nil {
			return err
		}
		config.AccumulatedFees = 0
		if err := saveConfigTx(tx, config); err != nil {
			return err
		}
		return appendEventTx(tx, newFeesWithdrawnEvent(config.Admin, recipient, amount))
	})
	if err != nil {
		logger.Error().Err(err).Msg("fee withdrawal failed")
		return nil, err
	}

	logger.Info().Uint64("amount", amount).Msg("accumulated fees withdrawn")
	return &WithdrawalResponse{
		Recipient: recipient,
		Amount:    amount,
		Timestamp: time.Now(),
	}, nil
}

// CreateTrade opens a new trade between seller and buyer, locking in
// the fee at the current platform rate. The caller must be the seller.
// A named arbitrator must already be registered. Trade ids come from
// the config counter so a failed creation never consumes an id.
func (s *Service) CreateTrade(caller, seller, buyer string, amount uint64, arbitrator string) (*TradeResponse, error) {
	logger := log.With().
		Str("seller", seller).
		Str("buyer", buyer).
		Uint64("amount", amount).
		Str("service", "escrow").
		Logger()

	var trade *Trade
	err := s.db.Transaction(func(tx *gorm.DB) error {
		config, err := configTx(tx)
		if err != nil {
			return err
		}
		if amount == 0 {
			return ErrInvalidAmount
		}
		if caller != seller {
			return ErrUnauthorized
		}
		if arbitrator != "" {
			registered, err := arbitratorRegisteredTx(tx, arbitrator)
			if err != nil {
				return err
			}
			if !registered {
				return ErrArbitratorNotRegistered
			}
		}

		if config.TradeCounter == math.MaxUint64 {
			return ErrOverflow
		}
		config.TradeCounter++

		fee, _, err := ComputeFee(amount, config.FeeBps)
		if err != nil {
			return err
		}

		trade = &Trade{
			TradeID:    config.TradeCounter,
			Seller:     seller,
			Buyer:      buyer,
			Arbitrator: arbitrator,
			Amount:     amount,
			Fee:        fee,
			Status:     StatusCreated,
		}
		if err := createTradeTx(tx, trade); err != nil {
			return err
		}
		if err := saveConfigTx(tx, config); err != nil {
			return err
		}
		return appendEventTx(tx, newTradeCreatedEvent(trade))
	})
	if err != nil {
		logger.Error().Err(err).Msg("trade creation failed")
		return nil, err
	}

	logger.Info().
		Uint64("trade_id", trade.TradeID).
		Uint64("fee", trade.Fee).
		Msg("trade created")
	return trade.toResponse(), nil
}

// FundTrade moves the trade amount from the buyer into the vault and
// advances the trade to FUNDED. The caller must be the buyer.
func (s *Service) FundTrade(caller string, tradeID uint64) (*TradeResponse, error) {
	logger := log.With().
		Uint64("trade_id", tradeID).
		Str("service", "escrow").
		Logger()

	var trade *Trade
	err := s.db.Transaction(func(tx *gorm.DB) error {
		config, err := configTx(tx)
		if err != nil {
			return err
		}
		trade, err = tradeTx(tx, tradeID)
		if err != nil {
			return err
		}
		if trade.Status != StatusCreated {
			return ErrInvalidStatus
		}
		if caller != trade.Buyer {
			return ErrUnauthorized
		}

		if err := ledger.TransferTx(tx, config.PaymentToken, trade.Buyer, VaultAddress, trade.Amount); err != nil {
			return err
		}
		trade.Status = StatusFunded
		if err := saveTradeTx(tx, trade); err != nil {
			return err
		}
		return appendEventTx(tx, newTradeFundedEvent(trade))
	})
	if err != nil {
		logger.Error().Err(err).Msg("trade funding failed")
		return nil, err
	}

	logger.Info().Uint64("amount", trade.Amount).Msg("trade funded")
	return trade.toResponse(), nil
}

// CompleteTrade records the seller's claim that the off-chain good or
// service was delivered. The caller must be the seller.
func (s *Service) CompleteTrade(caller string, tradeID uint64) (*TradeResponse, error) {
	var trade *Trade
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := configTx(tx); err != nil {
			return err
		}
		var err error
		trade, err = tradeTx(tx, tradeID)
		if err != nil {
			return err
		}
		if trade.Status != StatusFunded {
			return ErrInvalidStatus
		}
		if caller != trade.Seller {
			return ErrUnauthorized
		}

		trade.Status = StatusCompleted
		if err := saveTradeTx(tx, trade); err != nil {
			return err
		}
		return appendEventTx(tx, newTradeCompletedEvent(trade))
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Uint64("trade_id", tradeID).
		Str("service", "escrow").
		Msg("trade marked completed")
	return trade.toResponse(), nil
}

// ConfirmReceipt is the normal settlement path: the buyer confirms
// receipt, the vault pays the seller the net payout, the fee joins the
// accumulated balance and the trade terminates as CONFIRMED_RELEASED.
func (s *Service) ConfirmReceipt(caller string, tradeID uint64) (*SettlementResponse, error) {
	logger := log.With().
		Uint64("trade_id", tradeID).
		Str("service", "escrow").
		Logger()

	var trade *Trade
	var payout uint64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		config, err := configTx(tx)
		if err != nil {
			return err
		}
		trade, err = tradeTx(tx, tradeID)
		if err != nil {
			return err
		}
		if trade.Status != StatusCompleted {
			return ErrInvalidStatus
		}
		if caller != trade.Buyer {
			return ErrUnauthorized
		}

		payout, err = settleTx(tx, config, trade, trade.Seller)
		if err != nil {
			return err
		}
		trade.Status = StatusConfirmedReleased
		if err := saveTradeTx(tx, trade); err != nil {
			return err
		}
		return appendEventTx(tx, newTradeConfirmedEvent(trade, payout))
	})
	if err != nil {
		logger.Error().Err(err).Msg("receipt confirmation failed")
		return nil, err
	}

	logger.Info().
		Uint64("payout", payout).
		Uint64("fee", trade.Fee).
		Msg("trade settled to seller")
	return &SettlementResponse{
		TradeID:   trade.TradeID,
		Recipient: trade.Seller,
		Payout:    payout,
		Fee:       trade.Fee,
		Status:    trade.Status,
		Timestamp: time.Now(),
	}, nil
}

// RaiseDispute freezes a funded or completed trade pending arbitration.
// Only trades with a bound arbitrator have an arbitration path; either
// party may raise.
func (s *Service) RaiseDispute(caller string, tradeID uint64) (*TradeResponse, error) {
	var trade *Trade
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := configTx(tx); err != nil {
			return err
		}
		var err error
		trade, err = tradeTx(tx, tradeID)
		if err != nil {
			return err
		}
		if trade.Status != StatusFunded && trade.Status != StatusCompleted {
			return ErrInvalidStatus
		}
		if trade.Arbitrator == "" {
			return ErrArbitratorNotRegistered
		}
		if caller != trade.Buyer && caller != trade.Seller {
			return ErrUnauthorized
		}

		trade.Status = StatusDisputed
		if err := saveTradeTx(tx, trade); err != nil {
			return err
		}
		return appendEventTx(tx, newDisputeRaisedEvent(trade, caller))
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Uint64("trade_id", tradeID).
		Str("raised_by", caller).
		Str("service", "escrow").
		Msg("dispute raised")
	return trade.toResponse(), nil
}

// ResolveDispute settles a disputed trade per the arbitrator's verdict.
// The caller must be the trade's bound arbitrator and must still be a
// member of the registry at resolution time.
func (s *Service) ResolveDispute(caller string, tradeID uint64, resolution DisputeResolution) (*SettlementResponse, error) {
	logger := log.With().
		Uint64("trade_id", tradeID).
		Str("resolution", string(resolution)).
		Str("service", "escrow").
		Logger()

	var trade *Trade
	var recipient string
	var payout uint64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		config, err := configTx(tx)
		if err != nil {
			return err
		}
		trade, err = tradeTx(tx, tradeID)
		if err != nil {
			return err
		}
		if trade.Status != StatusDisputed {
			return ErrInvalidStatus
		}
		if trade.Arbitrator == "" {
			return ErrArbitratorNotRegistered
		}
		if caller != trade.Arbitrator {
			return ErrUnauthorized
		}
		registered, err := arbitratorRegisteredTx(tx, trade.Arbitrator)
		if err != nil {
			return err
		}
		if !registered {
			return ErrArbitratorNotRegistered
		}

		switch resolution {
		case ReleaseToBuyer:
			recipient = trade.Buyer
		case ReleaseToSeller:
			recipient = trade.Seller
		default:
			return ErrInvalidStatus
		}

		payout, err = settleTx(tx, config, trade, recipient)
		if err != nil {
			return err
		}
		trade.Status = StatusResolved
		if err := saveTradeTx(tx, trade); err != nil {
			return err
		}
		return appendEventTx(tx, newDisputeResolvedEvent(trade, resolution, recipient, payout))
	})
	if err != nil {
		logger.Error().Err(err).Msg("dispute resolution failed")
		return nil, err
	}

	logger.Info().
		Str("recipient", recipient).
		Uint64("payout", payout).
		Msg("dispute resolved")
	return &SettlementResponse{
		TradeID:   trade.TradeID,
		Recipient: recipient,
		Payout:    payout,
		Fee:       trade.Fee,
		Status:    trade.Status,
		Timestamp: time.Now(),
	}, nil
}

// CancelTrade withdraws an unfunded trade. Only permitted from CREATED,
// so cancellation never has to reverse a transfer. The caller must be
// the seller.
func (s *Service) CancelTrade(caller string, tradeID uint64) (*TradeResponse, error) {
	var trade *Trade
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := configTx(tx); err != nil {
			return err
		}
		var err error
		trade, err = tradeTx(tx, tradeID)
		if err != nil {
			return err
		}
		if trade.Status != StatusCreated {
			return ErrInvalidStatus
		}
		if caller != trade.Seller {
			return ErrUnauthorized
		}

		trade.Status = StatusCancelled
		if err := saveTradeTx(tx, trade); err != nil {
			return err
		}
		return appendEventTx(tx, newTradeCancelledEvent(trade))
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Uint64("trade_id", tradeID).
		Str("service", "escrow").
		Msg("trade cancelled")
	return trade.toResponse(), nil
}

// settleTx releases the locked-in payout from the vault to the
// recipient and adds the trade's fee to the accumulated balance. The
// fee remains in the vault until withdrawn.
func settleTx(tx *gorm.DB, config *PlatformConfig, trade *Trade, recipient string) (uint64, error) {
	if trade.Fee > trade.Amount {
		return 0, ErrOverflow
	}
	payout := trade.Amount - trade.Fee
	if payout > 0 {
		if err := ledger.TransferTx(tx, config.PaymentToken, VaultAddress, recipient, payout); err != nil {
			return 0, err
		}
	}
	if config.AccumulatedFees > math.MaxUint64-trade.Fee {
		return 0, ErrOverflow
	}
	config.AccumulatedFees += trade.Fee
	if err := saveConfigTx(tx, config); err != nil {
		return 0, err
	}
	return payout, nil
}

// GetTrade retrieves trade details by id.
func (s *Service) GetTrade(tradeID uint64) (*TradeResponse, error) {
	trade, err := s.db.GetTrade(tradeID)
	if err != nil {
		return nil, err
	}
	return trade.toResponse(), nil
}

// GetTradeEvents returns the audit trail for a trade.
func (s *Service) GetTradeEvents(tradeID uint64) ([]TradeEvent, error) {
	if _, err := s.db.GetTrade(tradeID); err != nil {
		return nil, err
	}
	return s.db.GetTradeEvents(tradeID)
}

// AccumulatedFees returns the fee balance collected and not yet
// withdrawn.
func (s *Service) AccumulatedFees() (uint64, error) {
	config, err := s.db.GetConfig()
	if err != nil {
		return 0, err
	}
	return config.AccumulatedFees, nil
}

// PlatformFeeBps returns the current fee rate in basis points.
func (s *Service) PlatformFeeBps() (uint32, error) {
	config, err := s.db.GetConfig()
	if err != nil {
		return 0, err
	}
	return config.FeeBps, nil
}

// IsArbitratorRegistered reports registry membership for an address.
func (s *Service) IsArbitratorRegistered(address string) (bool, error) {
	return s.db.IsArbitratorRegistered(address)
}

// GinHandlers contains HTTP handlers for escrow endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for escrow endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// respond maps the escrow error taxonomy onto HTTP responses. Anything
// outside the taxonomy falls through to the shared handler.
func respond(c *gin.Context, data interface{}, err error) {
	switch {
	case err == nil:
		response.Success(c, data)
	case errors.Is(err, ErrUnauthorized):
		response.Unauthorized(c, err.Error())
	case errors.Is(err, ErrTradeNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, ErrAlreadyInitialized), errors.Is(err, ErrInvalidStatus):
		response.Conflict(c, err.Error())
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidFeeBps), errors.Is(err, ErrArbitratorNotRegistered):
		response.BadRequest(c, err.Error())
	case errors.Is(err, ErrNoFeesToWithdraw), errors.Is(err, ErrOverflow), errors.Is(err, ledger.ErrInsufficientBalance):
		response.UnprocessableEntity(c, err.Error())
	case errors.Is(err, ErrNotInitialized):
		response.ServiceUnavailable(c, err.Error())
	default:
		response.Handle(c, data, err)
	}
}

// caller returns the authenticated address injected by the auth
// middleware.
func caller(c *gin.Context) string {
	return c.GetString("address")
}

func tradeIDParam(c *gin.Context) (uint64, bool) {
	tradeID, err := strconv.ParseUint(c.Param("trade_id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid trade id")
		return 0, false
	}
	return tradeID, true
}

// InitializeHandler handles POST requests to initialize the platform
// Requires admin authentication; the caller must be the admin being set
func (h *GinHandlers) InitializeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			Admin        string `json:"admin" binding:"required"`
			PaymentToken string `json:"payment_token" binding:"required"`
			FeeBps       uint32 `json:"fee_bps"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		err := h.service.Initialize(caller(c), request.Admin, request.PaymentToken, request.FeeBps)
		respond(c, gin.H{"message": "platform initialized"}, err)
	}
}

// RegisterArbitratorHandler handles POST requests to register an arbitrator
func (h *GinHandlers) RegisterArbitratorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			Address string `json:"address" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		err := h.service.RegisterArbitrator(caller(c), request.Address)
		respond(c, gin.H{"address": request.Address}, err)
	}
}

// RemoveArbitratorHandler handles DELETE requests to remove an arbitrator
// URL parameter: address
func (h *GinHandlers) RemoveArbitratorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		address := c.Param("address")

		err := h.service.RemoveArbitrator(caller(c), address)
		respond(c, gin.H{"address": address}, err)
	}
}

// UpdateFeeHandler handles PUT requests to change the platform fee rate
func (h *GinHandlers) UpdateFeeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			FeeBps uint32 `json:"fee_bps"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		err := h.service.UpdateFee(caller(c), request.FeeBps)
		respond(c, gin.H{"fee_bps": request.FeeBps}, err)
	}
}

// WithdrawFeesHandler handles POST requests to withdraw accumulated fees
func (h *GinHandlers) WithdrawFeesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			Recipient string `json:"recipient" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		withdrawal, err := h.service.WithdrawFees(caller(c), request.Recipient)
		respond(c, withdrawal, err)
	}
}

// CreateTradeHandler handles POST requests to open a new trade
// The authenticated caller must be the seller
func (h *GinHandlers) CreateTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			Seller     string `json:"seller" binding:"required"`
			Buyer      string `json:"buyer" binding:"required"`
			Amount     uint64 `json:"amount"`
			Arbitrator string `json:"arbitrator"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		if request.Seller == request.Buyer {
			response.BadRequest(c, "seller and buyer must be distinct")
			return
		}

		trade, err := h.service.CreateTrade(caller(c), request.Seller, request.Buyer, request.Amount, request.Arbitrator)
		respond(c, trade, err)
	}
}

// FundTradeHandler handles POST requests to fund a trade
// The authenticated caller must be the buyer
func (h *GinHandlers) FundTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tradeID, ok := tradeIDParam(c)
		if !ok {
			return
		}

		trade, err := h.service.FundTrade(caller(c), tradeID)
		respond(c, trade, err)
	}
}

// CompleteTradeHandler handles POST requests to mark delivery
// The authenticated caller must be the seller
func (h *GinHandlers) CompleteTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tradeID, ok := tradeIDParam(c)
		if !ok {
			return
		}

		trade, err := h.service.CompleteTrade(caller(c), tradeID)
		respond(c, trade, err)
	}
}

// ConfirmReceiptHandler handles POST requests for the normal settlement path
// The authenticated caller must be the buyer
func (h *GinHandlers) ConfirmReceiptHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tradeID, ok := tradeIDParam(c)
		if !ok {
			return
		}

		settlement, err := h.service.ConfirmReceipt(caller(c), tradeID)
		respond(c, settlement, err)
	}
}

// RaiseDisputeHandler handles POST requests to dispute a trade
// The authenticated caller must be the buyer or the seller
func (h *GinHandlers) RaiseDisputeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tradeID, ok := tradeIDParam(c)
		if !ok {
			return
		}

		trade, err := h.service.RaiseDispute(caller(c), tradeID)
		respond(c, trade, err)
	}
}

// ResolveDisputeHandler handles POST requests to settle a disputed trade
// The authenticated caller must be the trade's bound arbitrator
func (h *GinHandlers) ResolveDisputeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tradeID, ok := tradeIDParam(c)
		if !ok {
			return
		}

		var request struct {
			Resolution DisputeResolution `json:"resolution" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		if !request.Resolution.Valid() {
			response.BadRequest(c, "resolution must be RELEASE_TO_BUYER or RELEASE_TO_SELLER")
			return
		}

		settlement, err := h.service.ResolveDispute(caller(c), tradeID, request.Resolution)
		respond(c, settlement, err)
	}
}

// CancelTradeHandler handles POST requests to cancel an unfunded trade
// The authenticated caller must be the seller
func (h *GinHandlers) CancelTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tradeID, ok := tradeIDParam(c)
		if !ok {
			return
		}

		trade, err := h.service.CancelTrade(caller(c), tradeID)
		respond(c, trade, err)
	}
}

// GetTradeHandler handles GET requests for trade details
// URL parameter: trade_id
func (h *GinHandlers) GetTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tradeID, ok := tradeIDParam(c)
		if !ok {
			return
		}

		trade, err := h.service.GetTrade(tradeID)
		respond(c, trade, err)
	}
}

// GetTradeEventsHandler handles GET requests for a trade's audit trail
func (h *GinHandlers) GetTradeEventsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tradeID, ok := tradeIDParam(c)
		if !ok {
			return
		}

		events, err := h.service.GetTradeEvents(tradeID)
		respond(c, events, err)
	}
}

// GetAccumulatedFeesHandler handles GET requests for the fee balance
func (h *GinHandlers) GetAccumulatedFeesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		fees, err := h.service.AccumulatedFees()
		respond(c, gin.H{"accumulated_fees": fees}, err)
	}
}

// GetFeeBpsHandler handles GET requests for the platform fee rate
func (h *GinHandlers) GetFeeBpsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		feeBps, err := h.service.PlatformFeeBps()
		respond(c, gin.H{"fee_bps": feeBps}, err)
	}
}

// IsArbitratorRegisteredHandler handles GET requests for registry membership
// URL parameter: address
func (h *GinHandlers) IsArbitratorRegisteredHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		address := c.Param("address")

		registered, err := h.service.IsArbitratorRegistered(address)
		respond(c, gin.H{"address": address, "registered": registered}, err)
	}
}
