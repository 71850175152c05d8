package escrow

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ksred/escrow-api/internal/ledger"
)

const (
	testAdmin      = "platform-admin"
	testSeller     = "acct-seller"
	testBuyer      = "acct-buyer"
	testArbitrator = "acct-arbitrator"
	testToken      = "USD"
	testFeeBps     = 100
)

// newTestService opens a throwaway database and returns a service
// bound to it. The raw connection is returned for ledger seeding and
// state assertions.
func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "escrow_test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&PlatformConfig{},
		&Trade{},
		&Arbitrator{},
		&TradeEvent{},
		&ledger.Account{},
	))

	return NewService(db), db
}

// setupPlatform initializes the platform with the standard test config
func setupPlatform(t *testing.T, s *Service) {
	t.Helper()
	require.NoError(t, s.Initialize(testAdmin, testAdmin, testToken, testFeeBps))
}

// depositBuyer seeds the buyer's ledger balance
func depositBuyer(t *testing.T, db *gorm.DB, amount uint64) {
	t.Helper()
	require.NoError(t, ledger.CreditTx(db, testToken, testBuyer, amount))
}

// balanceOf reads a ledger balance directly
func balanceOf(t *testing.T, db *gorm.DB, address string) uint64 {
	t.Helper()
	balance, err := ledger.NewDatabase(db).GetBalance(testToken, address)
	require.NoError(t, err)
	return balance
}

func TestInitialize(t *testing.T) {
	s, _ := newTestService(t)

	require.NoError(t, s.Initialize(testAdmin, testAdmin, testToken, 250))

	feeBps, err := s.PlatformFeeBps()
	require.NoError(t, err)
	assert.Equal(t, uint32(250), feeBps)

	fees, err := s.AccumulatedFees()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), fees)
}

func TestInitializeTwice(t *testing.T) {
	s, _ := newTestService(t)

	require.NoError(t, s.Initialize(testAdmin, testAdmin, testToken, testFeeBps))
	err := s.Initialize(testAdmin, testAdmin, testToken, testFeeBps)
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
}

func TestInitializeInvalidFee(t *testing.T) {
	s, _ := newTestService(t)

	err := s.Initialize(testAdmin, testAdmin, testToken, 10001)
	assert.ErrorIs(t, err, ErrInvalidFeeBps)
}

func TestInitializeCallerMismatch(t *testing.T) {
	s, _ := newTestService(t)

	err := s.Initialize("someone-else", testAdmin, testToken, testFeeBps)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestOperationsBeforeInitialize(t *testing.T) {
	s, _ := newTestService(t)

	_, err := s.CreateTrade(testSeller, testSeller, testBuyer, 10000, "")
	assert.ErrorIs(t, err, ErrNotInitialized)

	err = s.RegisterArbitrator(testAdmin, testArbitrator)
	assert.ErrorIs(t, err, ErrNotInitialized)

	err = s.UpdateFee(testAdmin, 50)
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = s.WithdrawFees(testAdmin, testAdmin)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestArbitratorRegistry(t *testing.T) {
	s, _ := newTestService(t)
	setupPlatform(t, s)

	registered, err := s.IsArbitratorRegistered(testArbitrator)
	require.NoError(t, err)
	assert.False(t, registered)

	require.NoError(t, s.RegisterArbitrator(testAdmin, testArbitrator))
	// Registration is idempotent
	require.NoError(t, s.RegisterArbitrator(testAdmin, testArbitrator))

	registered, err = s.IsArbitratorRegistered(testArbitrator)
	require.NoError(t, err)
	assert.True(t, registered)

	require.NoError(t, s.RemoveArbitrator(testAdmin, testArbitrator))

	registered, err = s.IsArbitratorRegistered(testArbitrator)
	require.NoError(t, err)
	assert.False(t, registered)
}

func TestArbitratorRegistryAdminOnly(t *testing.T) {
	s, _ := newTestService(t)
	setupPlatform(t, s)

	err := s.RegisterArbitrator(testSeller, testArbitrator)
	assert.ErrorIs(t, err, ErrUnauthorized)

	err = s.RemoveArbitrator(testSeller, testArbitrator)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestCreateTrade(t *testing.T) {
	s, _ := newTestService(t)
	setupPlatform(t, s)

	trade, err := s.CreateTrade(testSeller, testSeller, testBuyer, 10000, "")
	require.NoError(t, err)

	assert.Equal(t, uint64(1), trade.TradeID)
	assert.Equal(t, testSeller, trade.Seller)
	assert.Equal(t, testBuyer, trade.Buyer)
	assert.Equal(t, uint64(10000), trade.Amount)
	assert.Equal(t, uint64(100), trade.Fee)
	assert.Equal(t, StatusCreated, trade.Status)

	// Ids are sequential
	second, err := s.CreateTrade(testSeller, testSeller, testBuyer, 5000, "")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.TradeID)
}

func TestCreateTradeZeroAmount(t *testing.T) {
	s, _ := newTestService(t)
	setupPlatform(t, s)

	_, err := s.CreateTrade(testSeller, testSeller, testBuyer, 0, "")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	// A failed creation never consumes an id
	trade, err := s.CreateTrade(testSeller, testSeller, testBuyer, 10000, "")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), trade.TradeID)
}

func TestCreateTradeCallerMustBeSeller(t *testing.T) {
	s, _ := newTestService(t)
	setupPlatform(t, s)

	_, err := s.CreateTrade(testBuyer, testSeller, testBuyer, 10000, "")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestCreateTradeUnknownArbitrator(t *testing.T) {
	s, _ := newTestService(t)
	setupPlatform(t, s)

	_, err := s.CreateTrade(testSeller, testSeller, testBuyer, 10000, "nobody")
	assert.ErrorIs(t, err, ErrArbitratorNotRegistered)
}

func TestReleaseLifecycle(t *testing.T) {
	s, db := newTestService(t)
	setupPlatform(t, s)
	depositBuyer(t, db, 10000)

	trade, err := s.CreateTrade(testSeller, testSeller, testBuyer, 10000, "")
	require.NoError(t, err)

	funded, err := s.FundTrade(testBuyer, trade.TradeID)
	require.NoError(t, err)
	assert.Equal(t, StatusFunded, funded.Status)
	assert.Equal(t, uint64(0), balanceOf(t, db, testBuyer))
	assert.Equal(t, uint64(10000), balanceOf(t, db, VaultAddress))

	completed, err := s.CompleteTrade(testSeller, trade.TradeID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)

	settlement, err := s.ConfirmReceipt(testBuyer, trade.TradeID)
	require.NoError(t, err)
	assert.Equal(t, testSeller, settlement.Recipient)
	assert.Equal(t, uint64(9900), settlement.Payout)
	assert.Equal(t, uint64(100), settlement.Fee)
	assert.Equal(t, StatusConfirmedReleased, settlement.Status)

	// Seller got the net payout, the fee stays in the vault
	assert.Equal(t, uint64(9900), balanceOf(t, db, testSeller))
	assert.Equal(t, uint64(100), balanceOf(t, db, VaultAddress))

	fees, err := s.AccumulatedFees()
	require.NoError(t, err)
	assert.Equal(t, uint64(100), fees)

	// The trade is terminal
	_, err = s.ConfirmReceipt(testBuyer, trade.TradeID)
	assert.ErrorIs(t, err, ErrInvalidStatus)
	_, err = s.CancelTrade(testSeller, trade.TradeID)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestLifecycleAuthorization(t *testing.T) {
	s, db := newTestService(t)
	setupPlatform(t, s)
	depositBuyer(t, db, 10000)

	trade, err := s.CreateTrade(testSeller, testSeller, testBuyer, 10000, "")
	require.NoError(t, err)

	_, err = s.FundTrade(testSeller, trade.TradeID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = s.FundTrade(testBuyer, trade.TradeID)
	require.NoError(t, err)

	_, err = s.CompleteTrade(testBuyer, trade.TradeID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = s.CompleteTrade(testSeller, trade.TradeID)
	require.NoError(t, err)

	_, err = s.ConfirmReceipt(testSeller, trade.TradeID)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestLifecycleOrderEnforced(t *testing.T) {
	s, db := newTestService(t)
	setupPlatform(t, s)
	depositBuyer(t, db, 10000)

	trade, err := s.CreateTrade(testSeller, testSeller, testBuyer, 10000, "")
	require.NoError(t, err)

	// Nothing but funding is valid from CREATED
	_, err = s.CompleteTrade(testSeller, trade.TradeID)
	assert.ErrorIs(t, err, ErrInvalidStatus)
	_, err = s.ConfirmReceipt(testBuyer, trade.TradeID)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = s.FundTrade(testBuyer, trade.TradeID)
	require.NoError(t, err)

	// Funding twice takes the same amount twice, so it must be rejected
	_, err = s.FundTrade(testBuyer, trade.TradeID)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	// Receipt cannot be confirmed before the seller completes
	_, err = s.ConfirmReceipt(testBuyer, trade.TradeID)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestFundTradeInsufficientBalance(t *testing.T) {
	s, db := newTestService(t)
	setupPlatform(t, s)
	depositBuyer(t, db, 500)

	trade, err := s.CreateTrade(testSeller, testSeller, testBuyer, 10000, "")
	require.NoError(t, err)

	_, err = s.FundTrade(testBuyer, trade.TradeID)
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	// The failed transfer rolled back the status change
	current, err := s.GetTrade(trade.TradeID)
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, current.Status)
	assert.Equal(t, uint64(500), balanceOf(t, db, testBuyer))

	events, err := s.GetTradeEvents(trade.TradeID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventTradeCreated, events[0].Kind)
}

func TestCancelTrade(t *testing.T) {
	s, _ := newTestService(t)
	setupPlatform(t, s)

	trade, err := s.CreateTrade(testSeller, testSeller, testBuyer, 10000, "")
	require.NoError(t, err)

	_, err = s.CancelTrade(testBuyer, trade.TradeID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	cancelled, err := s.CancelTrade(testSeller, trade.TradeID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	// Terminal: no further transitions
	_, err = s.FundTrade(testBuyer, trade.TradeID)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestCancelAfterFunding(t *testing.T) {
	s, db := newTestService(t)
	setupPlatform(t, s)
	depositBuyer(t, db, 10000)

	trade, err := s.CreateTrade(testSeller, testSeller, testBuyer, 10000, "")
	require.NoError(t, err)
	_, err = s.FundTrade(testBuyer, trade.TradeID)
	require.NoError(t, err)

	// Once funds are locked the seller cannot walk away unilaterally
	_, err = s.CancelTrade(testSeller, trade.TradeID)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestDisputeResolveToBuyer(t *testing.T) {
	s, db := newTestService(t)
	setupPlatform(t, s)
	depositBuyer(t, db, 10000)
	require.NoError(t, s.RegisterArbitrator(testAdmin, testArbitrator))

	trade, err := s.CreateTrade(testSeller, testSeller, testBuyer, 10000, testArbitrator)
	require.NoError(t, err)
	_, err = s.FundTrade(testBuyer, trade.TradeID)
	require.NoError(t, err)

	disputed, err := s.RaiseDispute(testBuyer, trade.TradeID)
	require.NoError(t, err)
	assert.Equal(t, StatusDisputed, disputed.Status)

	settlement, err := s.ResolveDispute(testArbitrator, trade.TradeID, ReleaseToBuyer)
	require.NoError(t, err)
	assert.Equal(t, testBuyer, settlement.Recipient)
	assert.Equal(t, uint64(9900), settlement.Payout)
	assert.Equal(t, StatusResolved, settlement.Status)

	// The fee is captured even on a buyer refund
	assert.Equal(t, uint64(9900), balanceOf(t, db, testBuyer))
	assert.Equal(t, uint64(100), balanceOf(t, db, VaultAddress))

	// Resolution is final
	_, err = s.ResolveDispute(testArbitrator, trade.TradeID, ReleaseToSeller)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestDisputeResolveToSeller(t *testing.T) {
	s, db := newTestService(t)
	setupPlatform(t, s)
	depositBuyer(t, db, 10000)
	require.NoError(t, s.RegisterArbitrator(testAdmin, testArbitrator))

	trade, err := s.CreateTrade(testSeller, testSeller, testBuyer, 10000, testArbitrator)
	require.NoError(t, err)
	_, err = s.FundTrade(testBuyer, trade.TradeID)
	require.NoError(t, err)

	// The seller may also raise, including after completion
	_, err = s.CompleteTrade(testSeller, trade.TradeID)
	require.NoError(t, err)
	_, err = s.RaiseDispute(testSeller, trade.TradeID)
	require.NoError(t, err)

	settlement, err := s.ResolveDispute(testArbitrator, trade.TradeID, ReleaseToSeller)
	require.NoError(t, err)
	assert.Equal(t, testSeller, settlement.Recipient)
	assert.Equal(t, uint64(9900), balanceOf(t, db, testSeller))
}

func TestDisputeRequiresArbitrator(t *testing.T) {
	s, db := newTestService(t)
	setupPlatform(t, s)
	depositBuyer(t, db, 10000)

	trade, err := s.CreateTrade(testSeller, testSeller, testBuyer, 10000, "")
	require.NoError(t, err)
	_, err = s.FundTrade(testBuyer, trade.TradeID)
	require.NoError(t, err)

	_, err = s.RaiseDispute(testBuyer, trade.TradeID)
	assert.ErrorIs(t, err, ErrArbitratorNotRegistered)
}

func TestDisputeAuthorization(t *testing.T) {
	s, db := newTestService(t)
	setupPlatform(t, s)
	depositBuyer(t, db, 10000)
	require.NoError(t, s.RegisterArbitrator(testAdmin, testArbitrator))

	trade, err := s.CreateTrade(testSeller, testSeller, testBuyer, 10000, testArbitrator)
	require.NoError(t, err)
	_, err = s.FundTrade(testBuyer, trade.TradeID)
	require.NoError(t, err)

	// Only the trade parties may raise
	_, err = s.RaiseDispute(testArbitrator, trade.TradeID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = s.RaiseDispute(testBuyer, trade.TradeID)
	require.NoError(t, err)

	// Only the bound arbitrator may resolve
	_, err = s.ResolveDispute(testSeller, trade.TradeID, ReleaseToSeller)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestResolveAfterArbitratorRemoved(t *testing.T) {
	s, db := newTestService(t)
	setupPlatform(t, s)
	depositBuyer(t, db, 10000)
	require.NoError(t, s.RegisterArbitrator(testAdmin, testArbitrator))

	trade, err := s.CreateTrade(testSeller, testSeller, testBuyer, 10000, testArbitrator)
	require.NoError(t, err)
	_, err = s.FundTrade(testBuyer, trade.TradeID)
	require.NoError(t, err)
	_, err = s.RaiseDispute(testBuyer, trade.TradeID)
	require.NoError(t, err)

	require.NoError(t, s.RemoveArbitrator(testAdmin, testArbitrator))

	// The binding survives removal but resolution is blocked until
	// the identity is registered again
	_, err = s.ResolveDispute(testArbitrator, trade.TradeID, ReleaseToBuyer)
	assert.ErrorIs(t, err, ErrArbitratorNotRegistered)

	require.NoError(t, s.RegisterArbitrator(testAdmin, testArbitrator))
	_, err = s.ResolveDispute(testArbitrator, trade.TradeID, ReleaseToBuyer)
	require.NoError(t, err)
}

func TestUpdateFeeAppliesToNewTradesOnly(t *testing.T) {
	s, db := newTestService(t)
	setupPlatform(t, s)
	depositBuyer(t, db, 10000)

	trade, err := s.CreateTrade(testSeller, testSeller, testBuyer, 10000, "")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), trade.Fee)

	require.NoError(t, s.UpdateFee(testAdmin, 500))

	// The fee was locked at creation
	_, err = s.FundTrade(testBuyer, trade.TradeID)
	require.NoError(t, err)
	_, err = s.CompleteTrade(testSeller, trade.TradeID)
	require.NoError(t, err)
	settlement, err := s.ConfirmReceipt(testBuyer, trade.TradeID)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), settlement.Fee)
	assert.Equal(t, uint64(9900), settlement.Payout)

	// New trades pick up the current rate
	next, err := s.CreateTrade(testSeller, testSeller, testBuyer, 10000, "")
	require.NoError(t, err)
	assert.Equal(t, uint64(500), next.Fee)
}

func TestWithdrawFees(t *testing.T) {
	s, db := newTestService(t)
	setupPlatform(t, s)
	depositBuyer(t, db, 10000)

	trade, err := s.CreateTrade(testSeller, testSeller, testBuyer, 10000, "")
	require.NoError(t, err)
	_, err = s.FundTrade(testBuyer, trade.TradeID)
	require.NoError(t, err)
	_, err = s.CompleteTrade(testSeller, trade.TradeID)
	require.NoError(t, err)
	_, err = s.ConfirmReceipt(testBuyer, trade.TradeID)
	require.NoError(t, err)

	_, err = s.WithdrawFees(testSeller, testSeller)
	assert.ErrorIs(t, err, ErrUnauthorized)

	withdrawal, err := s.WithdrawFees(testAdmin, "treasury")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), withdrawal.Amount)
	assert.Equal(t, "treasury", withdrawal.Recipient)
	assert.Equal(t, uint64(100), balanceOf(t, db, "treasury"))
	assert.Equal(t, uint64(0), balanceOf(t, db, VaultAddress))

	fees, err := s.AccumulatedFees()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), fees)

	// Nothing left to sweep
	_, err = s.WithdrawFees(testAdmin, "treasury")
	assert.ErrorIs(t, err, ErrNoFeesToWithdraw)
}

func TestFeesAccumulateAcrossTrades(t *testing.T) {
	s, db := newTestService(t)
	setupPlatform(t, s)
	depositBuyer(t, db, 35000)

	for _, amount := range []uint64{10000, 10000, 15000} {
		trade, err := s.CreateTrade(testSeller, testSeller, testBuyer, amount, "")
		require.NoError(t, err)
		_, err = s.FundTrade(testBuyer, trade.TradeID)
		require.NoError(t, err)
		_, err = s.CompleteTrade(testSeller, trade.TradeID)
		require.NoError(t, err)
		_, err = s.ConfirmReceipt(testBuyer, trade.TradeID)
		require.NoError(t, err)
	}

	fees, err := s.AccumulatedFees()
	require.NoError(t, err)
	assert.Equal(t, uint64(350), fees)

	withdrawal, err := s.WithdrawFees(testAdmin, "treasury")
	require.NoError(t, err)
	assert.Equal(t, uint64(350), withdrawal.Amount)
	assert.Equal(t, uint64(350), balanceOf(t, db, "treasury"))

	_, err = s.WithdrawFees(testAdmin, "treasury")
	assert.ErrorIs(t, err, ErrNoFeesToWithdraw)
}

func TestFullFeeRate(t *testing.T) {
	s, db := newTestService(t)
	require.NoError(t, s.Initialize(testAdmin, testAdmin, testToken, 10000))
	depositBuyer(t, db, 10000)

	trade, err := s.CreateTrade(testSeller, testSeller, testBuyer, 10000, "")
	require.NoError(t, err)
	assert.Equal(t, uint64(10000), trade.Fee)

	_, err = s.FundTrade(testBuyer, trade.TradeID)
	require.NoError(t, err)
	_, err = s.CompleteTrade(testSeller, trade.TradeID)
	require.NoError(t, err)

	// The entire amount becomes fee and the seller payout is zero
	settlement, err := s.ConfirmReceipt(testBuyer, trade.TradeID)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), settlement.Payout)
	assert.Equal(t, uint64(0), balanceOf(t, db, testSeller))
	assert.Equal(t, uint64(10000), balanceOf(t, db, VaultAddress))
}

func TestTradeEventsTrail(t *testing.T) {
	s, db := newTestService(t)
	setupPlatform(t, s)
	depositBuyer(t, db, 10000)

	trade, err := s.CreateTrade(testSeller, testSeller, testBuyer, 10000, "")
	require.NoError(t, err)
	_, err = s.FundTrade(testBuyer, trade.TradeID)
	require.NoError(t, err)
	_, err = s.CompleteTrade(testSeller, trade.TradeID)
	require.NoError(t, err)
	_, err = s.ConfirmReceipt(testBuyer, trade.TradeID)
	require.NoError(t, err)

	events, err := s.GetTradeEvents(trade.TradeID)
	require.NoError(t, err)
	require.Len(t, events, 4)

	kinds := make([]string, len(events))
	for i, event := range events {
		kinds[i] = event.Kind
	}
	assert.Equal(t, []string{
		EventTradeCreated,
		EventTradeFunded,
		EventTradeCompleted,
		EventTradeConfirmed,
	}, kinds)

	// Settlement details land on the confirm event
	confirm := events[3]
	assert.Equal(t, testBuyer, confirm.Actor)
	assert.Equal(t, testSeller, confirm.Recipient)
	assert.Equal(t, uint64(9900), confirm.Amount)
	assert.Equal(t, uint64(100), confirm.Fee)
}

func TestGetTradeNotFound(t *testing.T) {
	s, _ := newTestService(t)
	setupPlatform(t, s)

	_, err := s.GetTrade(42)
	assert.ErrorIs(t, err, ErrTradeNotFound)

	_, err = s.GetTradeEvents(42)
	assert.ErrorIs(t, err, ErrTradeNotFound)
}
