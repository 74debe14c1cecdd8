package collect

import (
	"context"
	"errors"
	"sync"
	"time"

	"stockwatch/internal/tickers"
	"stockwatch/internal/types"

	"go.uber.org/zap"
)

// Config represents collection orchestration configuration
type Config struct {
	Interval time.Duration `mapstructure:"interval"`
	Workers  int           `mapstructure:"workers"`
	CSVPath  string        `mapstructure:"csv_path"`
	Kafka    KafkaConfig   `mapstructure:"kafka"`
}

// Orchestrator drives collection cycles: it pulls the work list, fans
// tickers out to a fixed-size worker pool, and runs every registered
// record type per ticker. The pool drains fully before the next cycle.
type Orchestrator struct {
	config    *Config
	runner    *Runner
	registry  *tickers.Registry
	worklist  WorkList
	publisher Publisher
	logger    *zap.Logger
}

// NewOrchestrator creates a new orchestrator. publisher may be nil to
// disable diff fan-out.
func NewOrchestrator(cfg *Config, runner *Runner, registry *tickers.Registry,
	worklist WorkList, publisher Publisher, logger *zap.Logger) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}
	if cfg.Interval == 0 {
		cfg.Interval = time.Minute
	}

	return &Orchestrator{
		config:    cfg,
		runner:    runner,
		registry:  registry,
		worklist:  worklist,
		publisher: publisher,
		logger:    logger,
	}
}

// Run executes collection cycles until the context is cancelled. Only a
// store connectivity failure aborts the loop; any other cycle failure,
// work-list reads included, is logged and retried on the next tick.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.config.Interval)
	defer ticker.Stop()

	for {
		if err := o.RunCycle(ctx); err != nil {
			if errors.Is(err, types.ErrStoreUnavailable) {
				return err
			}
			o.logger.Warn("Collection cycle failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunCycle collects every ticker on the work list once. Per-ticker
// failures are logged and do not abort the cycle; only store connectivity
// failures propagate.
func (o *Orchestrator) RunCycle(ctx context.Context) error {
	symbols, err := o.worklist.Tickers(ctx)
	if err != nil {
		return err
	}
	if len(symbols) == 0 {
		return nil
	}

	date := time.Now().UTC()

	jobs := make(chan string)
	var wg sync.WaitGroup

	var storeErrOnce sync.Once
	var storeErr error

	for i := 0; i < o.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range jobs {
				if err := o.collectTicker(ctx, symbol, date); err != nil {
					storeErrOnce.Do(func() { storeErr = err })
				}
			}
		}()
	}

	for _, symbol := range symbols {
		jobs <- symbol
	}
	close(jobs)
	wg.Wait()

	return storeErr
}

// collectTicker runs every registered record type for one ticker, skipping
// types subsumed by a composed parent. The returned error is non-nil only
// for store connectivity failures.
func (o *Orchestrator) collectTicker(ctx context.Context, symbol string, date time.Time) error {
	sons := o.registry.Sons()

	var accepted []*types.Diff

loop:
	for _, t := range o.registry.All() {
		if _, skip := sons[t.Name()]; skip {
			continue
		}

		diffs, err := o.runner.Collect(ctx, t, symbol, date)
		switch {
		case err == nil:
			accepted = append(accepted, diffs...)
		case errors.Is(err, types.ErrTickerNotFound):
			// Stop collecting the ticker, but diffs already accepted
			// from earlier record types still get published below.
			o.logger.Warn("Suspecting invalid ticker",
				zap.String("ticker", symbol),
				zap.String("source", t.Name()))
			break loop
		case errors.Is(err, types.ErrStoreUnavailable):
			o.logger.Error("Record store unavailable, aborting cycle",
				zap.String("ticker", symbol),
				zap.String("source", t.Name()),
				zap.Error(err))
			return err
		default:
			o.logger.Warn("Collection failed",
				zap.String("ticker", symbol),
				zap.String("source", t.Name()),
				zap.Error(err))
		}
	}

	if len(accepted) > 0 {
		o.logger.Info("Detected changes",
			zap.String("ticker", symbol),
			zap.Int("diffs", len(accepted)))

		if o.publisher != nil {
			if err := o.publisher.Publish(ctx, accepted); err != nil {
				o.logger.Warn("Diff fan-out failed",
					zap.String("ticker", symbol),
					zap.Error(err))
			}
		}
	}

	return nil
}
