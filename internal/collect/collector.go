package collect

import (
	"context"
	"fmt"
	"time"

	"stockwatch/internal/differ"
	"stockwatch/internal/source"
	"stockwatch/internal/storage"
	"stockwatch/internal/tickers"
	"stockwatch/internal/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Runner executes the fetch, diff, filter, append pipeline for a single
// ticker and record type.
type Runner struct {
	source    source.DataSource
	snapshots storage.SnapshotRepository
	diffs     storage.DiffRepository
	differ    *differ.Differ
	filter    *tickers.Filter
	logger    *zap.Logger
}

// NewRunner creates a new pipeline runner
func NewRunner(src source.DataSource, snapshots storage.SnapshotRepository,
	diffs storage.DiffRepository, logger *zap.Logger) *Runner {
	return &Runner{
		source:    src,
		snapshots: snapshots,
		diffs:     diffs,
		differ:    differ.New(logger),
		filter:    tickers.NewFilter(logger),
		logger:    logger,
	}
}

// Collect runs one record type for one ticker. The fetched snapshot is
// always appended to the record store, whether or not any diff survived
// filtering; accepted diffs are appended to the diff log first.
func (r *Runner) Collect(ctx context.Context, t tickers.Type, ticker string, date time.Time) ([]*types.Diff, error) {
	record, err := r.source.Fetch(ctx, t.Endpoint(), ticker)
	if err != nil {
		return nil, fmt.Errorf("fetch %s/%s: %w", t.Name(), ticker, err)
	}

	latest, err := r.snapshots.Latest(ctx, t.Name(), ticker)
	if err != nil {
		return nil, fmt.Errorf("load latest %s/%s: %w", t.Name(), ticker, err)
	}

	changes := r.differ.Compute(latest, record, t.NestedKeys())

	accepted := make([]*types.Diff, 0, len(changes))
	for _, change := range changes {
		diff := &types.Diff{
			ID:         uuid.NewString(),
			Ticker:     ticker,
			Date:       date,
			ChangedKey: change.Path,
			Old:        change.Old,
			New:        change.New,
			DiffType:   change.Type,
			Source:     t.Name(),
		}
		if edited := r.filter.Edit(t, diff); edited != nil {
			accepted = append(accepted, edited)
		}
	}

	if len(accepted) > 0 {
		if err := r.diffs.Append(ctx, accepted); err != nil {
			return nil, fmt.Errorf("append diffs %s/%s: %w", t.Name(), ticker, err)
		}
	}

	snap := &types.Snapshot{Ticker: ticker, Date: date, Data: record}
	if err := r.snapshots.Append(ctx, t.Name(), snap); err != nil {
		return nil, fmt.Errorf("append snapshot %s/%s: %w", t.Name(), ticker, err)
	}

	return accepted, nil
}
