/*
main.go - Server entry point

PURPOSE:
  Initializes and starts the shop ledger API server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (env / .env)
  2. Open the store (SQLite or PostgreSQL per DB_DRIVER)
  3. Connect the Redis summary cache when configured
  4. Create API handler with dependencies
  5. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close cache and database connections
  4. Exit

ENVIRONMENT:
  PORT, DB_DRIVER, SQLITE_PATH, DATABASE_URL, REDIS_ADDR,
  REDIS_PASSWORD, REDIS_DB, SUMMARY_TTL_SECONDS, ALLOWED_ORIGINS

SEE ALSO:
  - config/config.go: Configuration loading
  - api/server.go: Router configuration
  - store/sqlite, store/postgres: Database implementations
*/
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tally/shopledger/alerts"
	"github.com/tally/shopledger/api"
	"github.com/tally/shopledger/config"
	"github.com/tally/shopledger/ledger"
	"github.com/tally/shopledger/store/postgres"
	"github.com/tally/shopledger/store/sqlite"
)

func main() {
	cfg := config.Load()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Store
	var (
		store  ledger.TxStore
		closer interface{ Close() error }
	)
	switch cfg.DBDriver {
	case "postgres":
		pg, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			log.Fatal("failed to open postgres store", zap.Error(err))
		}
		store, closer = pg, pg
	default:
		sq, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			log.Fatal("failed to open sqlite store", zap.Error(err))
		}
		store, closer = sq, sq
	}
	defer closer.Close()

	// Handler
	handler := api.NewHandler(store, log)

	// Optional shared summary cache
	if cfg.RedisAddr != "" {
		cache := alerts.NewRedisSummaryCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := cache.Ping(context.Background()); err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer cache.Close()
		handler.Alerts.Cache = cache
		handler.Alerts.SummaryTTL = cfg.SummaryTTL
	}

	router := api.NewRouter(handler, cfg.AllowedOrigins)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server starting",
			zap.String("port", cfg.Port),
			zap.String("db_driver", cfg.DBDriver),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
