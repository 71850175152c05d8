package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/escrow-api/internal/auth"
	"github.com/ksred/escrow-api/internal/database"
	"github.com/ksred/escrow-api/internal/escrow"
	"github.com/ksred/escrow-api/internal/ledger"
	"github.com/ksred/escrow-api/pkg/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	minTrades      = 5
	maxTrades      = 25
	serverAddress  = "http://localhost:8080"
	paymentToken   = "USD"
	platformFeeBps = 100

	adminAddress      = "platform-admin"
	sellerAddress     = "acct-seller"
	buyerAddress      = "acct-buyer"
	arbitratorAddress = "acct-arbitrator"
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	// Configure pretty logging
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	// Sort durations for percentile calculations
	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	// Calculate mean
	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))

	// Calculate median
	median = rs.durations[len(rs.durations)/2]

	// Calculate percentiles
	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient handles HTTP communication with the escrow API
// It holds one JWT per simulated party so calls carry the right identity
type simulationClient struct {
	baseURL string
	client  *http.Client
	tokens  map[string]string
	stats   map[string]*routeStats
}

// newSimulationClient creates and initializes a new simulation client
// It authenticates every simulated party and prepares performance tracking
func newSimulationClient() (*simulationClient, error) {
	// Create HTTP client with timeout
	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	sc := &simulationClient{
		baseURL: serverAddress,
		client:  client,
		tokens:  make(map[string]string),
		stats: map[string]*routeStats{
			"auth":      {name: "Authentication"},
			"admin":     {name: "Admin Operations"},
			"create":    {name: "Create Trade"},
			"lifecycle": {name: "Trade Lifecycle"},
			"query":     {name: "State Queries"},
		},
	}

	credentials := map[string][2]string{
		adminAddress:      {"admin-api-key", "admin-api-secret"},
		sellerAddress:     {"seller-api-key", "seller-api-secret"},
		buyerAddress:      {"buyer-api-key", "buyer-api-secret"},
		arbitratorAddress: {"arbitrator-api-key", "arbitrator-api-secret"},
	}

	for address, creds := range credentials {
		token, err := sc.authenticate(creds[0], creds[1])
		if err != nil {
			return nil, fmt.Errorf("failed to authenticate %s: %w", address, err)
		}
		sc.tokens[address] = token
	}

	return sc, nil
}

// authenticate performs API authentication and returns a JWT token
func (sc *simulationClient) authenticate(apiKey, apiSecret string) (string, error) {
	start := time.Now()
	defer func() {
		sc.stats["auth"].addDuration(time.Since(start))
	}()

	credentials := map[string]string{
		"api_key":    apiKey,
		"api_secret": apiSecret,
	}

	body, err := json.Marshal(credentials)
	if err != nil {
		return "", err
	}

	resp, err := sc.client.Post(
		fmt.Sprintf("%s/api/v1/auth/token", sc.baseURL),
		"application/json",
		bytes.NewBuffer(body),
	)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("authentication failed with status: %d", resp.StatusCode)
	}

	var result struct {
		Success bool `json:"success"`
		Data    struct {
			Token string `json:"jwt_token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	return result.Data.Token, nil
}

// call performs an authenticated JSON request as the given party and decodes
// the response envelope's data field into out when out is non-nil
func (sc *simulationClient) call(statKey, method, path, asAddress string, payload, out interface{}) error {
	start := time.Now()
	defer func() {
		sc.stats[statKey].addDuration(time.Since(start))
	}()

	var bodyReader io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewBuffer(body)
	}

	req, err := http.NewRequest(method, sc.baseURL+path, bodyReader)
	if err != nil {
		return err
	}
	if asAddress != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.tokens[asAddress]))
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := sc.client.Do(req)
	if err != nil {
		sc.stats[statKey].failures++
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("path", path).Str("response", string(respBody)).Msg("API response")

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		sc.stats[statKey].failures++
		return fmt.Errorf("%s %s failed with status %d: %s", method, path, resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}
	return json.Unmarshal(envelope.Data, out)
}

// initializePlatform performs one-time platform setup: config, arbitrator
// registry, and buyer funds on the ledger
func (sc *simulationClient) initializePlatform(buyerFunds uint64) error {
	initReq := map[string]interface{}{
		"admin":         adminAddress,
		"payment_token": paymentToken,
		"fee_bps":       platformFeeBps,
	}
	if err := sc.call("admin", "POST", "/api/v1/admin/initialize", adminAddress, initReq, nil); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	log.Info().Uint32("fee_bps", platformFeeBps).Str("payment_token", paymentToken).Msg("Platform initialized")

	arbReq := map[string]string{"address": arbitratorAddress}
	if err := sc.call("admin", "POST", "/api/v1/admin/arbitrators", adminAddress, arbReq, nil); err != nil {
		return fmt.Errorf("register arbitrator: %w", err)
	}
	log.Info().Str("arbitrator", arbitratorAddress).Msg("Arbitrator registered")

	depositReq := map[string]interface{}{
		"token":   paymentToken,
		"address": buyerAddress,
		"amount":  buyerFunds,
	}
	if err := sc.call("admin", "POST", "/api/v1/admin/ledger/deposit", adminAddress, depositReq, nil); err != nil {
		return fmt.Errorf("deposit: %w", err)
	}
	log.Info().Uint64("amount", buyerFunds).Str("address", buyerAddress).Msg("Buyer funded")

	return nil
}

// createTrade opens a new trade as the seller and returns its identifier
func (sc *simulationClient) createTrade(amount uint64, withArbitrator bool) (uint64, error) {
	payload := map[string]interface{}{
		"seller": sellerAddress,
		"buyer":  buyerAddress,
		"amount": amount,
	}
	if withArbitrator {
		payload["arbitrator"] = arbitratorAddress
	}

	var trade escrow.TradeResponse
	if err := sc.call("create", "POST", "/api/v1/trades", sellerAddress, payload, &trade); err != nil {
		return 0, err
	}
	if trade.TradeID == 0 {
		return 0, fmt.Errorf("no trade ID in response")
	}
	return trade.TradeID, nil
}

// transition drives a single lifecycle action on a trade as the given party
func (sc *simulationClient) transition(tradeID uint64, action, asAddress string, payload, out interface{}) error {
	path := fmt.Sprintf("/api/v1/trades/%d/%s", tradeID, action)
	return sc.call("lifecycle", "POST", path, asAddress, payload, out)
}

// getBalance reads a ledger balance through the public query route
func (sc *simulationClient) getBalance(address string) (uint64, error) {
	var balance ledger.BalanceResponse
	path := fmt.Sprintf("/api/v1/ledger/balance/%s?token=%s", address, paymentToken)
	if err := sc.call("query", "GET", path, "", nil, &balance); err != nil {
		return 0, err
	}
	return balance.Balance, nil
}

// getAccumulatedFees reads the platform's undistributed fee total
func (sc *simulationClient) getAccumulatedFees() (uint64, error) {
	var result struct {
		AccumulatedFees uint64 `json:"accumulated_fees"`
	}
	if err := sc.call("query", "GET", "/api/v1/fees", "", nil, &result); err != nil {
		return 0, err
	}
	return result.AccumulatedFees, nil
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\n📊 API Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, stats := range sc.stats {
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// main runs the escrow simulation
// It starts a local API server and drives trades through their full lifecycle
func main() {
	// Start the server in a goroutine
	go func() {
		if err := startServer(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for server to start
	time.Sleep(2 * time.Second)

	// Initialize simulation client
	simClient, err := newSimulationClient()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize simulation client")
	}

	targetTrades := rand.Intn(maxTrades-minTrades) + minTrades
	log.Info().Int("target_trades", targetTrades).Msg("Starting simulation")

	// Give the buyer enough to fund every trade at the maximum amount
	if err := simClient.initializePlatform(uint64(targetTrades) * 100_000); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize platform")
	}

	// Collect statistics during processing
	stats := struct {
		TotalTrades  int
		Released     int
		Disputed     int
		Cancelled    int
		FailedTrades int
		TotalVolume  uint64
		TotalFees    uint64
		StartTime    time.Time
	}{
		StartTime: time.Now(),
	}

	for i := 0; i < targetTrades; i++ {
		amount := uint64(rand.Intn(90_000) + 10_000)

		// Roughly one in five trades goes to dispute, one in ten is cancelled
		scenario := rand.Intn(10)
		switch {
		case scenario < 1:
			if err := simClient.runCancelledTrade(amount); err != nil {
				log.Error().Err(err).Uint64("amount", amount).Msg("Cancelled trade scenario failed")
				stats.FailedTrades++
				continue
			}
			stats.Cancelled++
		case scenario < 3:
			settlement, err := simClient.runDisputedTrade(amount)
			if err != nil {
				log.Error().Err(err).Uint64("amount", amount).Msg("Disputed trade scenario failed")
				stats.FailedTrades++
				continue
			}
			stats.Disputed++
			stats.TotalVolume += amount
			stats.TotalFees += settlement.Fee
		default:
			settlement, err := simClient.runReleasedTrade(amount)
			if err != nil {
				log.Error().Err(err).Uint64("amount", amount).Msg("Released trade scenario failed")
				stats.FailedTrades++
				continue
			}
			stats.Released++
			stats.TotalVolume += amount
			stats.TotalFees += settlement.Fee
		}
		stats.TotalTrades++
	}

	// Verify ledger and fee state after the run
	sellerBalance, err := simClient.getBalance(sellerAddress)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read seller balance")
	}
	buyerBalance, err := simClient.getBalance(buyerAddress)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read buyer balance")
	}
	accumulatedFees, err := simClient.getAccumulatedFees()
	if err != nil {
		log.Error().Err(err).Msg("Failed to read accumulated fees")
	}

	// Sweep collected fees to the admin
	var withdrawal escrow.WithdrawalResponse
	if accumulatedFees > 0 {
		withdrawReq := map[string]string{"recipient": adminAddress}
		if err := simClient.call("admin", "POST", "/api/v1/admin/fees/withdraw", adminAddress, withdrawReq, &withdrawal); err != nil {
			log.Error().Err(err).Msg("Failed to withdraw fees")
		} else {
			log.Info().
				Uint64("amount", withdrawal.Amount).
				Str("recipient", withdrawal.Recipient).
				Msg("Fees withdrawn")
		}
	}

	// Print summary
	duration := time.Since(stats.StartTime)
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("🚀 ESCROW SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Printf(`
📊 Trade Statistics
------------------
Total Trades:     %d
Released:         %d
Disputed:         %d
Cancelled:        %d
Failed:           %d
Settled Volume:   %d
Fees Collected:   %d
Fees Withdrawn:   %d
Seller Balance:   %d
Buyer Balance:    %d
Duration:         %v
`, stats.TotalTrades, stats.Released, stats.Disputed, stats.Cancelled,
		stats.FailedTrades, stats.TotalVolume, stats.TotalFees, withdrawal.Amount,
		sellerBalance, buyerBalance, duration.Round(time.Millisecond))

	fmt.Println("\n" + strings.Repeat("=", 80))

	log.Info().
		Int("total_trades", stats.TotalTrades).
		Uint64("settled_volume", stats.TotalVolume).
		Uint64("fees_collected", stats.TotalFees).
		Dur("duration", duration).
		Msg("Simulation completed")

	simClient.printPerformanceStats()
}

// runReleasedTrade drives a trade through the cooperative path:
// create, fund, complete, confirm
func (sc *simulationClient) runReleasedTrade(amount uint64) (*escrow.SettlementResponse, error) {
	tradeID, err := sc.createTrade(amount, false)
	if err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}

	if err := sc.transition(tradeID, "fund", buyerAddress, nil, nil); err != nil {
		return nil, fmt.Errorf("fund: %w", err)
	}
	if err := sc.transition(tradeID, "complete", sellerAddress, nil, nil); err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}

	var settlement escrow.SettlementResponse
	if err := sc.transition(tradeID, "confirm", buyerAddress, nil, &settlement); err != nil {
		return nil, fmt.Errorf("confirm: %w", err)
	}

	log.Info().
		Uint64("trade_id", tradeID).
		Uint64("amount", amount).
		Uint64("payout", settlement.Payout).
		Uint64("fee", settlement.Fee).
		Str("recipient", settlement.Recipient).
		Msg("Trade released to seller")

	return &settlement, nil
}

// runDisputedTrade drives a trade into dispute and has the arbitrator
// resolve it, alternating randomly between the two parties
func (sc *simulationClient) runDisputedTrade(amount uint64) (*escrow.SettlementResponse, error) {
	tradeID, err := sc.createTrade(amount, true)
	if err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}

	if err := sc.transition(tradeID, "fund", buyerAddress, nil, nil); err != nil {
		return nil, fmt.Errorf("fund: %w", err)
	}
	if err := sc.transition(tradeID, "dispute", buyerAddress, nil, nil); err != nil {
		return nil, fmt.Errorf("dispute: %w", err)
	}

	resolution := escrow.ReleaseToBuyer
	if rand.Intn(2) == 0 {
		resolution = escrow.ReleaseToSeller
	}

	var settlement escrow.SettlementResponse
	payload := map[string]interface{}{"resolution": resolution}
	if err := sc.transition(tradeID, "resolve", arbitratorAddress, payload, &settlement); err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}

	log.Info().
		Uint64("trade_id", tradeID).
		Uint64("amount", amount).
		Uint64("payout", settlement.Payout).
		Uint64("fee", settlement.Fee).
		Str("resolution", string(resolution)).
		Str("recipient", settlement.Recipient).
		Msg("Dispute resolved")

	return &settlement, nil
}

// runCancelledTrade opens a trade and cancels it before funding
func (sc *simulationClient) runCancelledTrade(amount uint64) error {
	tradeID, err := sc.createTrade(amount, false)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	if err := sc.transition(tradeID, "cancel", sellerAddress, nil, nil); err != nil {
		return fmt.Errorf("cancel: %w", err)
	}

	log.Info().
		Uint64("trade_id", tradeID).
		Uint64("amount", amount).
		Msg("Trade cancelled before funding")

	return nil
}

// startServer initializes and starts the escrow API server
// Sets up all required services, handlers and routes
func startServer() error {
	// Initialize database
	db, err := database.NewDatabase(os.Getenv("DATABASE_PATH"))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	const jwtSecret = "escrow-secret-key"

	// Initialize services
	authService := auth.NewService(jwtSecret)
	escrowService := escrow.NewService(db)
	ledgerService := ledger.NewService(db)

	// Register test credentials
	authService.RegisterAccount("admin-api-key", "admin-api-secret", adminAddress)
	authService.RegisterAccount("seller-api-key", "seller-api-secret", sellerAddress)
	authService.RegisterAccount("buyer-api-key", "buyer-api-secret", buyerAddress)
	authService.RegisterAccount("arbitrator-api-key", "arbitrator-api-secret", arbitratorAddress)

	// Initialize router
	router := gin.Default()
	authHandlers := auth.NewGinHandlers(authService)
	escrowHandlers := escrow.NewGinHandlers(escrowService)
	ledgerHandlers := ledger.NewGinHandlers(ledgerService)

	// Setup routes
	setupRoutes(router, jwtSecret, authHandlers, escrowHandlers, ledgerHandlers)

	// Start the server
	return router.Run(":8080")
}

// setupRoutes configures all API endpoints and their handlers
// Groups routes by functionality and applies appropriate middleware
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	escrowHandlers *escrow.GinHandlers,
	ledgerHandlers *ledger.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Trade lifecycle routes
		trades := v1.Group("/trades")
		trades.Use(middleware.JWTAuth(jwtSecret))
		{
			trades.POST("", escrowHandlers.CreateTradeHandler())
			trades.POST("/:trade_id/fund", escrowHandlers.FundTradeHandler())
			trades.POST("/:trade_id/complete", escrowHandlers.CompleteTradeHandler())
			trades.POST("/:trade_id/confirm", escrowHandlers.ConfirmReceiptHandler())
			trades.POST("/:trade_id/dispute", escrowHandlers.RaiseDisputeHandler())
			trades.POST("/:trade_id/resolve", escrowHandlers.ResolveDisputeHandler())
			trades.POST("/:trade_id/cancel", escrowHandlers.CancelTradeHandler())
		}

		// Admin routes
		admin := v1.Group("/admin")
		admin.Use(middleware.AdminAuth(jwtSecret))
		{
			admin.POST("/initialize", escrowHandlers.InitializeHandler())
			admin.POST("/arbitrators", escrowHandlers.RegisterArbitratorHandler())
			admin.DELETE("/arbitrators/:address", escrowHandlers.RemoveArbitratorHandler())
			admin.PUT("/fees", escrowHandlers.UpdateFeeHandler())
			admin.POST("/fees/withdraw", escrowHandlers.WithdrawFeesHandler())
			admin.POST("/ledger/deposit", ledgerHandlers.DepositHandler())
		}

		// Public query routes
		v1.GET("/trades/:trade_id", escrowHandlers.GetTradeHandler())
		v1.GET("/trades/:trade_id/events", escrowHandlers.GetTradeEventsHandler())
		v1.GET("/fees", escrowHandlers.GetAccumulatedFeesHandler())
		v1.GET("/fees/bps", escrowHandlers.GetFeeBpsHandler())
		v1.GET("/arbitrators/:address", escrowHandlers.IsArbitratorRegisteredHandler())
		v1.GET("/ledger/balance/:address", ledgerHandlers.GetBalanceHandler())
	}
}
