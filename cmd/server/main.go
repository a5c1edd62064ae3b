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

	"github.com/finbooks/recon-api/internal/auth"
	"github.com/finbooks/recon-api/internal/database"
	"github.com/finbooks/recon-api/internal/ledger"
	"github.com/finbooks/recon-api/internal/rates"
	"github.com/finbooks/recon-api/internal/reconciliation"
	"github.com/finbooks/recon-api/pkg/middleware"

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

// main initializes and runs the ledger API server with graceful shutdown
// support. It sets up all required services, database connections, and
// API routes.
func main() {
	// Initialize database
	db, err := database.NewDatabase(os.Getenv("DATABASE_PATH"))
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "recon-secret-key"
	}
	authService := auth.NewService(jwtSecret)
	authHandlers := auth.NewGinHandlers(authService)
	// Register test credentials
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret)

	ratesService := rates.NewService(db)
	ratesHandlers := rates.NewGinHandlers(ratesService)

	ledgerService := ledger.NewService(db, ratesService)
	ledgerHandlers := ledger.NewGinHandlers(ledgerService)

	reconciliationService := reconciliation.NewService(db)
	reconciliationHandlers := reconciliation.NewGinHandlers(reconciliationService)

	// Create and start the auto matcher
	autoMatcher := reconciliation.NewProcessor(reconciliationService)
	matcherCtx, matcherCancel := context.WithCancel(context.Background())
	defer matcherCancel()

	go autoMatcher.Start(matcherCtx)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, authHandlers, ledgerHandlers, ratesHandlers, reconciliationHandlers)

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

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for authentication
// - Ledger routes: Protected by JWT authentication
// - Internal routes: Protected by internal network authentication
func setupRoutes(
	router *gin.Engine,
	authHandlers *auth.GinHandlers,
	ledgerHandlers *ledger.GinHandlers,
	ratesHandlers *rates.GinHandlers,
	reconciliationHandlers *reconciliation.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		auth := v1.Group("/auth")
		{
			auth.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Ledger routes
		ledgerRoutes := v1.Group("/ledger")
		ledgerRoutes.Use(middleware.JWTAuth())
		{
			ledgerRoutes.POST("/companies", ledgerHandlers.CreateCompanyHandler())
			ledgerRoutes.PUT("/companies/:company_id/exchange", ledgerHandlers.ConfigureExchangeHandler())
			ledgerRoutes.POST("/currencies", ledgerHandlers.CreateCurrencyHandler())
			ledgerRoutes.PUT("/currencies/:code", ledgerHandlers.UpdateCurrencyHandler())
			ledgerRoutes.POST("/accounts", ledgerHandlers.CreateAccountHandler())
			ledgerRoutes.POST("/journals", ledgerHandlers.CreateJournalHandler())
			ledgerRoutes.POST("/rates", ratesHandlers.SetRateHandler())
			ledgerRoutes.GET("/rates/:currency_code", ratesHandlers.GetRatesHandler())
			ledgerRoutes.POST("/moves", ledgerHandlers.PostMoveHandler())
			ledgerRoutes.GET("/moves/:move_id", ledgerHandlers.GetMoveHandler())
			ledgerRoutes.GET("/lines/:line_id/residual", reconciliationHandlers.GetResidualHandler())
		}

		// Internal routes (should be protected by internal network)
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth())
		{
			internal.POST("/reconciliation/reconcile", reconciliationHandlers.ReconcileHandler())
			internal.POST("/reconciliation/unreconcile", reconciliationHandlers.UnreconcileHandler())
			internal.GET("/reconciliation/full/:full_reconcile_id", reconciliationHandlers.GetFullReconcileHandler())
		}
	}
}
