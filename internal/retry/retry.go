package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Func defines the function signature for a retryable operation
type Func func(ctx context.Context) error

// Config defines the configuration for the retry mechanism
type Config struct {
	Enable      bool          `mapstructure:"enable"`
	Attempts    int           `mapstructure:"attempts"`
	Interval    time.Duration `mapstructure:"interval"`
	MaxInterval time.Duration `mapstructure:"max_interval"`
}

// DefaultConfig returns the default retry configuration
func DefaultConfig() *Config {
	return &Config{
		Enable:      true,
		Attempts:    3,
		Interval:    time.Second,
		MaxInterval: 30 * time.Second,
	}
}

// Validate validates the retry configuration
func (cfg *Config) Validate() error {
	if cfg == nil || !cfg.Enable {
		return nil
	}
	if cfg.Attempts <= 0 {
		return errors.New("attempts must be greater than zero")
	}
	if cfg.Interval <= 0 {
		return errors.New("interval must be positive")
	}
	if cfg.MaxInterval < cfg.Interval {
		return errors.New("max_interval cannot be below interval")
	}
	return nil
}

// Execute performs an operation, retrying with doubling backoff up to the
// configured attempt count.
func Execute(ctx context.Context, cfg *Config, op Func) error {
	if cfg == nil || !cfg.Enable {
		return op(ctx)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid retry configuration: %w", err)
	}

	interval := cfg.Interval
	var lastErr error

	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		if lastErr = op(ctx); lastErr == nil {
			return nil
		}

		if attempt == cfg.Attempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}

		interval *= 2
		if interval > cfg.MaxInterval {
			interval = cfg.MaxInterval
		}
	}

	return fmt.Errorf("exhausted %d attempts: %w", cfg.Attempts, lastErr)
}
