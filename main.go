package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nexfeed/content-sync-service/internal/config"
	"github.com/nexfeed/content-sync-service/internal/logging"
	"github.com/nexfeed/content-sync-service/internal/server"
	"github.com/nexfeed/content-sync-service/internal/source"
	"github.com/nexfeed/content-sync-service/internal/storage"
	"github.com/nexfeed/content-sync-service/internal/syncer"
)

func main() {
	logger := logging.Default()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Initialize store
	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}
	defer store.Close()

	// Initialize source client and sync engine
	client := source.NewClient(cfg.Source)
	engine := syncer.New(cfg.Sync, client, store)

	// Initialize HTTP server for the trigger surface
	httpServer := server.NewServer(cfg.Server, store, engine, client)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start HTTP server
	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("starting HTTP server")
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("HTTP server stopped")
		}
	}()

	// Start sync engine
	go func() {
		logger.Info().Str("storage", cfg.Storage.Type).Msg("starting sync engine")
		if err := engine.Start(ctx); err != nil {
			logger.Error().Err(err).Msg("sync engine stopped")
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	logger.Info().Msg("shutdown signal received, gracefully shutting down")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Shutdown services
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	cancel() // Cancel sync context
	logger.Info().Msg("shutdown complete")
}
