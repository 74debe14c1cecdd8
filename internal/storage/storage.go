package storage

import (
	"context"

	"stockwatch/internal/types"
)

// SnapshotRepository defines snapshot storage operations. Collections are
// append-only; one collection per record type.
type SnapshotRepository interface {
	// Append inserts a snapshot into the record type's collection
	Append(ctx context.Context, source string, snap *types.Snapshot) error

	// History returns the ticker's stored rows ordered by capture date
	History(ctx context.Context, source, ticker string) ([]map[string]any, error)

	// Latest returns the most recent snapshot fields after consecutive
	// duplicate collapsing, or nil when the ticker has no history. This
	// is the differ's previous input.
	Latest(ctx context.Context, source, ticker string) (map[string]any, error)
}

// DiffRepository defines diff log operations. The log is append-only; the
// only mutation ever applied to an entry is the delivered flag transition.
type DiffRepository interface {
	// Append inserts accepted diffs with delivered=false
	Append(ctx context.Context, diffs []*types.Diff) error

	// Undelivered returns undelivered diffs ordered by capture date,
	// excluding the given digest-only sources
	Undelivered(ctx context.Context, excludeSources []string) ([]*types.Diff, error)

	// MarkDelivered flips one diff's delivered flag. Marking an already
	// delivered diff is a no-op, not an error.
	MarkDelivered(ctx context.Context, id string) error

	// Query returns the ticker's diffs ordered by capture date; an empty
	// ticker returns the whole log.
	Query(ctx context.Context, ticker string) ([]*types.Diff, error)
}

// SubscriptionRepository defines delivery subscription operations
type SubscriptionRepository interface {
	// List returns subscriptions for one delivery lane
	List(ctx context.Context, delay bool) ([]*types.Subscription, error)

	// Upsert registers a subscription keyed by user name
	Upsert(ctx context.Context, sub *types.Subscription) error

	// Delete removes a user's subscription
	Delete(ctx context.Context, userName string) error
}
