package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/ksred/escrow-api/internal/auth"
	"github.com/ksred/escrow-api/internal/database"
	"github.com/ksred/escrow-api/internal/escrow"
	"github.com/ksred/escrow-api/internal/ledger"
	"github.com/ksred/escrow-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the escrow API server with graceful shutdown support
// It sets up all required services, database connections, and API routes
func main() {
	// Initialize database
	db, err := database.NewDatabase(os.Getenv("DATABASE_PATH"))
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "escrow-secret-key"
	}

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	authService := auth.NewService(jwtSecret)
	authHandlers := auth.NewGinHandlers(authService)
	registerTestAccounts(authService)

	escrowService := escrow.NewService(db)
	escrowHandlers := escrow.NewGinHandlers(escrowService)

	ledgerService := ledger.NewService(db)
	ledgerHandlers := ledger.NewGinHandlers(ledgerService)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, jwtSecret, authHandlers, escrowHandlers, ledgerHandlers)

	// Get port from env otherwise it's 8080
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Create server
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give in-flight requests 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// registerTestAccounts seeds API credentials for the simulation parties
// outside production
func registerTestAccounts(authService *auth.Service) {
	if os.Getenv("ENV") == "production" {
		return
	}
	authService.RegisterAccount("admin-api-key", "admin-api-secret", "platform-admin")
	authService.RegisterAccount("seller-api-key", "seller-api-secret", "acct-seller")
	authService.RegisterAccount("buyer-api-key", "buyer-api-secret", "acct-buyer")
	authService.RegisterAccount("arbitrator-api-key", "arbitrator-api-secret", "acct-arbitrator")
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for authentication
// - Trade routes: Protected by JWT, party identity comes from the token
// - Admin routes: Platform management, admin identity checked against stored config
// - Query routes: Public read-only state access
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
