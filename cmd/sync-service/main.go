package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/bulk-sync/internal/adapter"
	"github.com/cuongbtq/bulk-sync/internal/api/handler"
	"github.com/cuongbtq/bulk-sync/internal/api/router"
	"github.com/cuongbtq/bulk-sync/internal/config"
	"github.com/cuongbtq/bulk-sync/internal/docstore"
	"github.com/cuongbtq/bulk-sync/internal/ledger"
	"github.com/cuongbtq/bulk-sync/internal/remote"
	"github.com/cuongbtq/bulk-sync/internal/syncer"
	"github.com/cuongbtq/bulk-sync/shared/logger"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("SYNC_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/sync-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting sync service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Initialize the remote API client with retry on throttling
	var api remote.API = remote.NewClient(
		cfg.Remote.Endpoint,
		cfg.Remote.AccessToken,
		cfg.Remote.Timeout,
		appLogger.Logger,
	)
	api = remote.WithRetry(api, remote.RetryPolicy{
		MaxAttempts: cfg.Sync.MaxRetries,
		BaseDelay:   cfg.Sync.RetryBaseDelay,
		MaxDelay:    cfg.Sync.RetryMaxDelay,
	}, appLogger.Logger)

	// Verify credentials before accepting work
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Remote.Timeout)
	if err := remote.CheckAccess(ctx, api); err != nil {
		cancel()
		return fmt.Errorf("remote access check failed: %w", err)
	}
	cancel()

	appLogger.Info("Remote API access verified", slog.String("endpoint", cfg.Remote.Endpoint))

	// Initialize the document store and job ledger
	store := docstore.NewStore(api, appLogger.Logger)
	led := ledger.NewLedger(appLogger.Logger)

	// Register entity adapters
	orch := syncer.New(api, led, appLogger.Logger, syncer.Options{
		Concurrency:     cfg.Sync.Concurrency,
		MaxResultDetail: cfg.Sync.MaxResultDetail,
	})
	orch.Register(adapter.NewCompanyAdapter(api, store, appLogger.Logger))
	orch.Register(adapter.NewCollectionAdapter(api, store, appLogger.Logger))
	orch.Register(adapter.NewDiscountAdapter(api, store, appLogger.Logger))

	// Register document schemas for every adapter up front so mirror
	// writes never race schema creation
	if err := ensureSchemas(orch, store, cfg.Remote.Timeout); err != nil {
		return fmt.Errorf("failed to register document schemas: %w", err)
	}

	appLogger.Info("Document schemas registered")

	// Initialize router
	r := initRouter(cfg.App.Environment, appLogger.Logger, orch, led, store)

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed to start",
				slog.Any("error", err),
			)
			os.Exit(1)
		}
	}()

	appLogger.Info("Sync service is running",
		slog.String("address", addr),
	)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// ensureSchemas registers each adapter's document definition with the
// remote store
func ensureSchemas(orch *syncer.Orchestrator, store *docstore.Store, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for _, s := range orch.Adapters() {
		if err := store.EnsureSchema(ctx, s.Definition()); err != nil {
			return fmt.Errorf("schema for %s: %w", s.EntityType(), err)
		}
	}
	return nil
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(environment string, logger *slog.Logger, orch *syncer.Orchestrator, led *ledger.Ledger, store *docstore.Store) *gin.Engine {
	// Set Gin mode based on environment
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	handlerDeps := &handler.Dependencies{
		Logger:       logger,
		Orchestrator: orch,
		Ledger:       led,
		Store:        store,
	}

	return router.SetupRouter(handlerDeps)
}
