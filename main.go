package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketlens/api"
	"marketlens/cache"
	"marketlens/config"
	"marketlens/db"
	"marketlens/logger"
)

func main() {
	log := logger.GetLogger()

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load config
	cfg := config.GetConfig()

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File); err != nil {
		log.Fatal("Failed to configure logger", map[string]interface{}{
			"error": err.Error(),
		})
	}
	defer log.Close()

	// Initialize Postgres
	database, err := db.InitDB(ctx, &cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to initialize database", map[string]interface{}{
			"error": err.Error(),
		})
	}
	defer database.Close()

	store := db.NewMarketStore(database)

	// The response cache is optional, the API answers the same without it
	responseCache, err := cache.NewResponseCache(ctx, &cfg.Redis)
	if err != nil {
		log.Error("Continuing without response cache", map[string]interface{}{
			"error": err.Error(),
		})
		responseCache = cache.Disabled()
	}
	defer responseCache.Close()

	server := api.NewServer(cfg, store, responseCache)
	if err := server.Start(ctx); err != nil {
		log.Fatal("Failed to start API server", map[string]interface{}{
			"error": err.Error(),
		})
	}

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Wait for interrupt signal
	sig := <-sigChan
	log.Info("Received shutdown signal", map[string]interface{}{
		"signal": sig.String(),
	})

	// Cancel context to initiate shutdown
	cancel()

	// Give the server time to drain
	time.Sleep(time.Second)
	log.Info("Shutdown complete", nil)
}
