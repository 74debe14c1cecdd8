package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockwatch/internal/collect"
	"stockwatch/internal/config"
	"stockwatch/internal/logger"
	"stockwatch/internal/source"
	"stockwatch/internal/storage"
	"stockwatch/internal/tickers"
	"stockwatch/internal/version"

	"github.com/redis/go-redis/v9"
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

	// Optional fetch cache
	cache := initCache(ctx, cfg, log)
	if cache != nil {
		defer func() {
			_ = cache.Close()
		}()
	}

	// Assemble the collection pipeline
	src := source.New(&cfg.Source, cache, log)
	runner := collect.NewRunner(src, store.Snapshots(), store.Diffs(), log)
	registry := tickers.NewRegistry()

	var worklist collect.WorkList
	if cfg.Collector.Kafka.Enabled {
		kl := collect.NewKafkaWorkList(&cfg.Collector.Kafka, log)
		defer func() {
			_ = kl.Close()
		}()
		worklist = kl
	} else {
		worklist = collect.NewCSVWorkList(cfg.Collector.CSVPath)
	}

	var publisher collect.Publisher
	if cfg.Collector.Kafka.Enabled && cfg.Collector.Kafka.DiffsTopic != "" {
		kp := collect.NewKafkaPublisher(&cfg.Collector.Kafka, log)
		defer func() {
			_ = kp.Close()
		}()
		publisher = kp
	}

	orch := collect.NewOrchestrator(&cfg.Collector, runner, registry, worklist, publisher, log)

	// Run the orchestrator until a signal or a store failure
	errCh := make(chan error, 1)
	go func() {
		errCh <- orch.Run(ctx)
	}()

	log.Info("Collector started",
		zap.Duration("interval", cfg.Collector.Interval),
		zap.Int("workers", cfg.Collector.Workers))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Received signal", zap.String("signal", sig.String()))
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			log.Fatal("Collector stopped", zap.Error(err))
		}
	}

	log.Info("Shutdown complete")
}

// initCache connects the optional redis fetch cache. A missing address
// disables caching; an unreachable server only logs a warning so the
// collector still runs uncached.
func initCache(ctx context.Context, cfg *config.Config, log *zap.Logger) *redis.Client {
	if cfg.Redis.Addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn("Fetch cache unavailable, continuing without it",
			zap.String("addr", cfg.Redis.Addr),
			zap.Error(err))
		_ = client.Close()
		return nil
	}

	return client
}
