package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stockwatch/internal/notify"
	"stockwatch/internal/storage"
	"stockwatch/internal/types"

	"go.uber.org/zap"
)

// Config represents alert dispatch configuration
type Config struct {
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	Delay             time.Duration `mapstructure:"delay"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
	DigestOnlySources []string      `mapstructure:"digest_only_sources"`
}

// Dispatcher is the single consumer of the diff log. Each cycle it drains
// undelivered diffs, renders them into one digest, sends the digest to the
// immediate lane, schedules it for the delayed lane, and marks the drained
// diffs delivered. Two dispatcher instances must never share one diff log:
// the drain-mark sequence is not transactional.
type Dispatcher struct {
	config   *Config
	diffs    storage.DiffRepository
	subs     storage.SubscriptionRepository
	notifier notify.Notifier
	logger   *zap.Logger

	// schedule is swappable so tests can run delayed sends inline
	schedule func(d time.Duration, f func())
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(cfg *Config, diffs storage.DiffRepository,
	subs storage.SubscriptionRepository, notifier notify.Notifier, logger *zap.Logger) *Dispatcher {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.Delay == 0 {
		cfg.Delay = 10 * time.Minute
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = time.Minute
	}

	return &Dispatcher{
		config:   cfg,
		diffs:    diffs,
		subs:     subs,
		notifier: notifier,
		logger:   logger,
		schedule: func(d time.Duration, f func()) { time.AfterFunc(d, f) },
	}
}

// Run polls the diff log until the context is cancelled. Cycle failures
// back off with bounded doubling and never stop the loop; a crash between
// dispatch and marking only causes redelivery, never a lost digest.
func (d *Dispatcher) Run(ctx context.Context) error {
	wait := d.config.PollInterval

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		if err := d.RunCycle(ctx); err != nil {
			d.logger.Error("Dispatch cycle failed", zap.Error(err))
			wait *= 2
			if wait > d.config.MaxBackoff {
				wait = d.config.MaxBackoff
			}
			continue
		}
		wait = d.config.PollInterval
	}
}

// RunCycle performs one drain, batch, dispatch, mark sequence
func (d *Dispatcher) RunCycle(ctx context.Context) error {
	drained, err := d.diffs.Undelivered(ctx, d.config.DigestOnlySources)
	if err != nil {
		return err
	}
	if len(drained) == 0 {
		return nil
	}

	digest := RenderDigest(drained)
	if err := d.dispatch(ctx, digest); err != nil {
		return err
	}

	// Marking happens after dispatch is scheduled for every subscription;
	// each diff is marked by its own identity so a partial failure leaves
	// the rest redeliverable.
	var markErr error
	for _, diff := range drained {
		if err := d.diffs.MarkDelivered(ctx, diff.ID); err != nil {
			d.logger.Error("Failed to mark diff delivered",
				zap.String("id", diff.ID),
				zap.Error(err))
			markErr = err
		}
	}

	d.logger.Info("Dispatched digest",
		zap.Int("diffs", len(drained)))

	return markErr
}

// dispatch sends the digest to the immediate lane and schedules it for the
// delayed lane. Both lanes are resolved before anything is sent: a failed
// subscription lookup fails the whole cycle so the drained diffs stay
// unmarked and the next drain redelivers them. Per-subscription send
// failures stay non-fatal and do not block other subscriptions.
func (d *Dispatcher) dispatch(ctx context.Context, digest string) error {
	immediate, err := d.subs.List(ctx, false)
	if err != nil {
		return fmt.Errorf("list immediate subscriptions: %w", err)
	}

	delayed, err := d.subs.List(ctx, true)
	if err != nil {
		return fmt.Errorf("list delayed subscriptions: %w", err)
	}

	for _, sub := range immediate {
		d.send(ctx, sub, digest)
	}

	for _, sub := range delayed {
		sub := sub
		d.schedule(d.config.Delay, func() {
			sendCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			d.send(sendCtx, sub, digest)
		})
	}

	return nil
}

func (d *Dispatcher) send(ctx context.Context, sub *types.Subscription, digest string) {
	if err := d.notifier.Send(ctx, sub.ChatID, digest); err != nil {
		if errors.Is(err, notify.ErrInvalidChat) {
			d.logger.Warn("Cannot alert user, invalid chat id",
				zap.String("user", sub.UserName),
				zap.String("chat_id", sub.ChatID))
			return
		}
		d.logger.Error("Failed to send digest",
			zap.String("user", sub.UserName),
			zap.Error(err))
	}
}
