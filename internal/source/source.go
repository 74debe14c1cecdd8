package source

import (
	"context"
)

// DataSource fetches one record for a ticker from an upstream endpoint.
// A fetch fails with types.ErrTickerNotFound when the upstream reports the
// ticker as unknown; any other failure is transient and retried on the
// next collection cycle.
type DataSource interface {
	Fetch(ctx context.Context, endpoint, ticker string) (map[string]any, error)
}
