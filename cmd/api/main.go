package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockwatch/internal/config"
	"stockwatch/internal/logger"
	"stockwatch/internal/server/api"
	"stockwatch/internal/storage"
	"stockwatch/internal/tickers"
	"stockwatch/internal/version"

	"go.uber.org/zap"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	// Show version if requested
	if *showVersion {
		info := version.GetInfo()
		fmt.Println(info.String())
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(&cfg.Log)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = log.Sync()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	storeCtx, storeCancel := context.WithTimeout(ctx, 30*time.Second)
	store, err := storage.NewStore(storeCtx, &cfg.Store, log)
	storeCancel()
	if err != nil {
		log.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer closeCancel()
		_ = store.Close(closeCtx)
	}()

	// Initialize router
	router := api.NewRouter(cfg, store, tickers.NewRegistry(), log)

	// Create HTTP server
	server := &http.Server{
		Addr:    cfg.API.Address,
		Handler: router.Handler(),
	}

	// Start server in background
	go func() {
		log.Info("Starting server",
			zap.String("address", cfg.API.Address))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server error", zap.Error(err))
		}
	}()

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for signal
	sig := <-sigChan
	log.Info("Received signal", zap.String("signal", sig.String()))

	// Graceful shutdown
	log.Info("Starting graceful shutdown")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", zap.Error(err))
	}

	log.Info("Shutdown complete")
}
