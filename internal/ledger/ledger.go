// Package ledger provides the fungible-token balance store backing
// escrow settlement. It exposes the transfer(from, to, amount) and
// balance(identity) contract the escrow engine settles through.
package ledger

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ksred/escrow-api/pkg/response"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrInvalidTransfer     = errors.New("transfer endpoints must be distinct")
	ErrBalanceOverflow     = errors.New("balance overflow")
)

// Service handles ledger operations
type Service struct {
	db *Database
}

// NewService creates a new ledger service with the given database connection
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// Deposit credits an account. This is the platform's mint: balances
// enter the ledger only through here, so it sits behind admin auth.
func (s *Service) Deposit(token, address string, amount uint64) (*BalanceResponse, error) {
	logger := log.With().
		Str("token", token).
		Str("address", address).
		Uint64("amount", amount).
		Str("service", "ledger").
		Logger()

	if err := s.db.Credit(token, address, amount); err != nil {
		logger.Error().Err(err).Msg("failed to credit account")
		return nil, err
	}

	balance, err := s.db.GetBalance(token, address)
	if err != nil {
		return nil, err
	}

	logger.Info().Uint64("balance", balance).Msg("account credited")

	return &BalanceResponse{
		Address:   address,
		Token:     token,
		Balance:   balance,
		Timestamp: time.Now(),
	}, nil
}

// Balance returns the current balance for an address in a token.
func (s *Service) Balance(token, address string) (*BalanceResponse, error) {
	balance, err := s.db.GetBalance(token, address)
	if err != nil {
		return nil, err
	}
	return &BalanceResponse{
		Address:   address,
		Token:     token,
		Balance:   balance,
		Timestamp: time.Now(),
	}, nil
}

// GinHandlers contains HTTP handlers for ledger endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// DepositHandler handles POST requests to credit an account
// Requires admin authentication
func (h *GinHandlers) DepositHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			Token   string `json:"token" binding:"required"`
			Address string `json:"address" binding:"required"`
			Amount  uint64 `json:"amount" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		balance, err := h.service.Deposit(request.Token, request.Address, request.Amount)
		if errors.Is(err, ErrInvalidAmount) || errors.Is(err, ErrBalanceOverflow) {
			response.BadRequest(c, err.Error())
			return
		}
		response.Handle(c, balance, err)
	}
}

// GetBalanceHandler handles GET requests for an account balance
// URL parameter: address; query parameter: token
func (h *GinHandlers) GetBalanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		address := c.Param("address")
		token := c.Query("token")
		if token == "" {
			response.BadRequest(c, "token query parameter is required")
			return
		}

		balance, err := h.service.Balance(token, address)
		response.Handle(c, balance, err)
	}
}
