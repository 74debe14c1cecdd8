package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockwatch/internal/config"
	"stockwatch/internal/dispatch"
	"stockwatch/internal/logger"
	"stockwatch/internal/notify"
	"stockwatch/internal/storage"
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

	// Initialize notifier
	notifier, err := notify.NewTelegramNotifier(&cfg.Telegram, log)
	if err != nil {
		log.Fatal("Failed to initialize notifier", zap.Error(err))
	}

	d := dispatch.NewDispatcher(&cfg.Dispatcher, store.Diffs(), store.Subscriptions(), notifier, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- d.Run(ctx)
	}()

	log.Info("Dispatcher started",
		zap.Duration("poll_interval", cfg.Dispatcher.PollInterval),
		zap.Duration("delay", cfg.Dispatcher.Delay))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Received signal", zap.String("signal", sig.String()))
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			log.Fatal("Dispatcher stopped", zap.Error(err))
		}
	}

	log.Info("Shutdown complete")
}
