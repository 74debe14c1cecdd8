package collect

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"stockwatch/internal/types"
)

type fakeSource struct {
	fetch func(endpoint, ticker string) (map[string]any, error)
}

func (f *fakeSource) Fetch(_ context.Context, endpoint, ticker string) (map[string]any, error) {
	return f.fetch(endpoint, ticker)
}

type fakeSnapshotRepo struct {
	mu      sync.Mutex
	latest  map[string]map[string]any
	appends map[string]int
	err     error
}

func newFakeSnapshotRepo() *fakeSnapshotRepo {
	return &fakeSnapshotRepo{
		latest:  make(map[string]map[string]any),
		appends: make(map[string]int),
	}
}

func snapKey(source, ticker string) string { return source + "/" + ticker }

func (f *fakeSnapshotRepo) Append(_ context.Context, source string, snap *types.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.appends[snapKey(source, snap.Ticker)]++
	f.latest[snapKey(source, snap.Ticker)] = snap.Data
	return nil
}

func (f *fakeSnapshotRepo) History(context.Context, string, string) ([]map[string]any, error) {
	return nil, nil
}

func (f *fakeSnapshotRepo) Latest(_ context.Context, source, ticker string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.latest[snapKey(source, ticker)], nil
}

type fakeDiffRepo struct {
	mu    sync.Mutex
	diffs []*types.Diff
}

func (f *fakeDiffRepo) Append(_ context.Context, diffs []*types.Diff) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.diffs = append(f.diffs, diffs...)
	return nil
}

func (f *fakeDiffRepo) Undelivered(context.Context, []string) ([]*types.Diff, error) {
	return nil, nil
}

func (f *fakeDiffRepo) MarkDelivered(context.Context, string) error { return nil }

func (f *fakeDiffRepo) Query(context.Context, string) ([]*types.Diff, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.diffs, nil
}

func (f *fakeDiffRepo) appended() []*types.Diff {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*types.Diff, len(f.diffs))
	copy(out, f.diffs)
	return out
}

type stubType struct {
	name string
	sons []string
}

func (s *stubType) Name() string                       { return s.name }
func (s *stubType) Endpoint() string                   { return "https://example.com/%s" }
func (s *stubType) Hierarchy() map[string][]string     { return nil }
func (s *stubType) NestedKeys() map[string]int         { return nil }
func (s *stubType) FilterKeys() []string               { return nil }
func (s *stubType) Sons() []string                     { return s.sons }
func (s *stubType) EditDiff(d *types.Diff) *types.Diff { return d }

func TestRunnerCollectChange(t *testing.T) {
	snapshots := newFakeSnapshotRepo()
	snapshots.latest[snapKey("quotes", "ABC")] = map[string]any{"tier": "PN"}

	diffs := &fakeDiffRepo{}
	src := &fakeSource{fetch: func(endpoint, ticker string) (map[string]any, error) {
		return map[string]any{"tier": "QB"}, nil
	}}

	runner := NewRunner(src, snapshots, diffs, zaptest.NewLogger(t))

	date := time.Now().UTC()
	accepted, err := runner.Collect(context.Background(), &stubType{name: "quotes"}, "ABC", date)
	require.NoError(t, err)

	require.Len(t, accepted, 1)
	assert.Equal(t, "tier", accepted[0].ChangedKey)
	assert.Equal(t, "PN", accepted[0].Old)
	assert.Equal(t, "QB", accepted[0].New)
	assert.Equal(t, types.DiffTypeChange, accepted[0].DiffType)
	assert.Equal(t, "quotes", accepted[0].Source)
	assert.Equal(t, "ABC", accepted[0].Ticker)
	assert.False(t, accepted[0].Delivered)
	assert.NotEmpty(t, accepted[0].ID)

	// Diff log got the change and the snapshot was appended regardless
	assert.Len(t, diffs.appended(), 1)
	assert.Equal(t, 1, snapshots.appends[snapKey("quotes", "ABC")])
}

func TestRunnerCollectBaseline(t *testing.T) {
	snapshots := newFakeSnapshotRepo()
	diffs := &fakeDiffRepo{}
	src := &fakeSource{fetch: func(endpoint, ticker string) (map[string]any, error) {
		return map[string]any{"tier": "QB"}, nil
	}}

	runner := NewRunner(src, snapshots, diffs, zaptest.NewLogger(t))

	accepted, err := runner.Collect(context.Background(), &stubType{name: "quotes"}, "ABC", time.Now().UTC())
	require.NoError(t, err)

	// First observation is a baseline, not an alert
	assert.Empty(t, accepted)
	assert.Empty(t, diffs.appended())
	assert.Equal(t, 1, snapshots.appends[snapKey("quotes", "ABC")])
}

func TestRunnerCollectUnchangedRecord(t *testing.T) {
	snapshots := newFakeSnapshotRepo()
	snapshots.latest[snapKey("quotes", "ABC")] = map[string]any{"tier": "QB"}

	diffs := &fakeDiffRepo{}
	src := &fakeSource{fetch: func(endpoint, ticker string) (map[string]any, error) {
		return map[string]any{"tier": "QB"}, nil
	}}

	runner := NewRunner(src, snapshots, diffs, zaptest.NewLogger(t))

	accepted, err := runner.Collect(context.Background(), &stubType{name: "quotes"}, "ABC", time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, accepted)
	assert.Empty(t, diffs.appended())
}

func TestRunnerFetchError(t *testing.T) {
	snapshots := newFakeSnapshotRepo()
	diffs := &fakeDiffRepo{}
	src := &fakeSource{fetch: func(endpoint, ticker string) (map[string]any, error) {
		return nil, fmt.Errorf("%w: %s", types.ErrTickerNotFound, ticker)
	}}

	runner := NewRunner(src, snapshots, diffs, zaptest.NewLogger(t))

	_, err := runner.Collect(context.Background(), &stubType{name: "quotes"}, "ABC", time.Now().UTC())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrTickerNotFound)
	assert.Empty(t, snapshots.appends)
}
