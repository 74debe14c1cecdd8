package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"stockwatch/internal/notify"
	"stockwatch/internal/types"
)

type fakeDiffLog struct {
	mu            sync.Mutex
	diffs         []*types.Diff
	marked        map[string]int
	drainExcluded []string
	markErr       error
}

func newFakeDiffLog(diffs ...*types.Diff) *fakeDiffLog {
	return &fakeDiffLog{diffs: diffs, marked: make(map[string]int)}
}

func (f *fakeDiffLog) Append(_ context.Context, diffs []*types.Diff) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.diffs = append(f.diffs, diffs...)
	return nil
}

func (f *fakeDiffLog) Undelivered(_ context.Context, excludeSources []string) ([]*types.Diff, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drainExcluded = excludeSources

	excluded := make(map[string]struct{}, len(excludeSources))
	for _, s := range excludeSources {
		excluded[s] = struct{}{}
	}

	var out []*types.Diff
	for _, d := range f.diffs {
		if d.Delivered {
			continue
		}
		if _, skip := excluded[d.Source]; skip {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeDiffLog) MarkDelivered(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	f.marked[id]++
	for _, d := range f.diffs {
		if d.ID == id {
			d.Delivered = true
		}
	}
	return nil
}

func (f *fakeDiffLog) Query(context.Context, string) ([]*types.Diff, error) {
	return f.diffs, nil
}

type fakeSubs struct {
	immediate []*types.Subscription
	delayed   []*types.Subscription
	listErr   error
}

func (f *fakeSubs) List(_ context.Context, delay bool) ([]*types.Subscription, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if delay {
		return f.delayed, nil
	}
	return f.immediate, nil
}

func (f *fakeSubs) Upsert(context.Context, *types.Subscription) error { return nil }
func (f *fakeSubs) Delete(context.Context, string) error              { return nil }

type fakeNotifier struct {
	mu    sync.Mutex
	sent  map[string][]string
	fails map[string]error
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{sent: make(map[string][]string), fails: make(map[string]error)}
}

func (f *fakeNotifier) Send(_ context.Context, chatID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.fails[chatID]; ok {
		return err
	}
	f.sent[chatID] = append(f.sent[chatID], text)
	return nil
}

func changeDiff(id, ticker, key string, old, new any) *types.Diff {
	return &types.Diff{
		ID:         id,
		Ticker:     ticker,
		Date:       time.Now().UTC(),
		ChangedKey: key,
		Old:        old,
		New:        new,
		DiffType:   types.DiffTypeChange,
		Source:     "securities",
	}
}

func newTestDispatcher(t *testing.T, log *fakeDiffLog, subs *fakeSubs, notifier *fakeNotifier, cfg *Config) *Dispatcher {
	t.Helper()
	if cfg == nil {
		cfg = &Config{}
	}
	d := NewDispatcher(cfg, log, subs, notifier, zaptest.NewLogger(t))
	// Run delayed sends inline so tests stay deterministic
	d.schedule = func(_ time.Duration, f func()) { f() }
	return d
}

func TestDispatcherEndToEnd(t *testing.T) {
	log := newFakeDiffLog(changeDiff("d1", "ABC", "tierCode", "PN", "QB"))
	subs := &fakeSubs{immediate: []*types.Subscription{{UserName: "alice", ChatID: "100"}}}
	notifier := newFakeNotifier()

	d := newTestDispatcher(t, log, subs, notifier, nil)
	require.NoError(t, d.RunCycle(context.Background()))

	require.Len(t, notifier.sent["100"], 1)
	digest := notifier.sent["100"][0]
	assert.Contains(t, digest, "Detected changes on ABC")
	assert.Contains(t, digest, "*tierCode* has changed")
	assert.Contains(t, digest, "PN")
	assert.Contains(t, digest, "QB")

	// Marked exactly once
	assert.Equal(t, 1, log.marked["d1"])

	// A second cycle finds nothing and sends nothing
	require.NoError(t, d.RunCycle(context.Background()))
	assert.Len(t, notifier.sent["100"], 1)
	assert.Equal(t, 1, log.marked["d1"])
}

func TestDispatcherBothLanesGetSameDigest(t *testing.T) {
	log := newFakeDiffLog(changeDiff("d1", "ABC", "tierCode", "PN", "QB"))
	subs := &fakeSubs{
		immediate: []*types.Subscription{{UserName: "alice", ChatID: "100"}},
		delayed:   []*types.Subscription{{UserName: "bob", ChatID: "200", Delay: true}},
	}
	notifier := newFakeNotifier()

	var scheduledDelay time.Duration
	d := NewDispatcher(&Config{Delay: 10 * time.Minute}, log, subs, notifier, zaptest.NewLogger(t))
	d.schedule = func(delay time.Duration, f func()) {
		scheduledDelay = delay
		f()
	}

	require.NoError(t, d.RunCycle(context.Background()))

	assert.Equal(t, 10*time.Minute, scheduledDelay)
	require.Len(t, notifier.sent["100"], 1)
	require.Len(t, notifier.sent["200"], 1)
	assert.Equal(t, notifier.sent["100"][0], notifier.sent["200"][0])
}

func TestDispatcherSendFailureDoesNotBlockOthers(t *testing.T) {
	log := newFakeDiffLog(changeDiff("d1", "ABC", "tierCode", "PN", "QB"))
	subs := &fakeSubs{immediate: []*types.Subscription{
		{UserName: "alice", ChatID: "bad"},
		{UserName: "bob", ChatID: "200"},
	}}
	notifier := newFakeNotifier()
	notifier.fails["bad"] = fmt.Errorf("%w: bad", notify.ErrInvalidChat)

	d := newTestDispatcher(t, log, subs, notifier, nil)
	require.NoError(t, d.RunCycle(context.Background()))

	assert.Len(t, notifier.sent["200"], 1)
	assert.Equal(t, 1, log.marked["d1"])
}

func TestDispatcherExcludesDigestOnlySources(t *testing.T) {
	filing := changeDiff("d1", "ABC", "cloudPath", "a", "b")
	filing.Source = "filings"
	log := newFakeDiffLog(filing, changeDiff("d2", "ABC", "tierCode", "PN", "QB"))

	subs := &fakeSubs{immediate: []*types.Subscription{{UserName: "alice", ChatID: "100"}}}
	notifier := newFakeNotifier()

	d := newTestDispatcher(t, log, subs, notifier, &Config{DigestOnlySources: []string{"filings"}})
	require.NoError(t, d.RunCycle(context.Background()))

	assert.Equal(t, []string{"filings"}, log.drainExcluded)
	require.Len(t, notifier.sent["100"], 1)
	assert.NotContains(t, notifier.sent["100"][0], "cloudPath")
	assert.Zero(t, log.marked["d1"])
	assert.Equal(t, 1, log.marked["d2"])
}

func TestDispatcherSubscriptionLookupFailureSkipsMarking(t *testing.T) {
	log := newFakeDiffLog(changeDiff("d1", "ABC", "tierCode", "PN", "QB"))
	subs := &fakeSubs{listErr: errors.New("store unavailable")}
	notifier := newFakeNotifier()

	d := newTestDispatcher(t, log, subs, notifier, nil)
	require.Error(t, d.RunCycle(context.Background()))

	// Nothing was sent, so nothing may be marked; the next drain must
	// pick the diff up again.
	assert.Empty(t, notifier.sent)
	assert.Zero(t, log.marked["d1"])

	subs.listErr = nil
	require.NoError(t, d.RunCycle(context.Background()))
	assert.Equal(t, 1, log.marked["d1"])
}

func TestDispatcherMarkFailurePropagates(t *testing.T) {
	log := newFakeDiffLog(changeDiff("d1", "ABC", "tierCode", "PN", "QB"))
	log.markErr = errors.New("write failed")

	subs := &fakeSubs{immediate: []*types.Subscription{{UserName: "alice", ChatID: "100"}}}
	notifier := newFakeNotifier()

	d := newTestDispatcher(t, log, subs, notifier, nil)
	err := d.RunCycle(context.Background())
	require.Error(t, err)

	// The digest went out before marking failed; redelivery is the
	// recovery path, not message loss.
	assert.Len(t, notifier.sent["100"], 1)
}

func TestDispatcherEmptyDrainIsQuiet(t *testing.T) {
	log := newFakeDiffLog()
	subs := &fakeSubs{immediate: []*types.Subscription{{UserName: "alice", ChatID: "100"}}}
	notifier := newFakeNotifier()

	d := newTestDispatcher(t, log, subs, notifier, nil)
	require.NoError(t, d.RunCycle(context.Background()))
	assert.Empty(t, notifier.sent)
}

func TestRenderDigest(t *testing.T) {
	diffs := []*types.Diff{
		changeDiff("d1", "ABC", "tierCode", "PN", "QB"),
		{ID: "d2", Ticker: "ABC", ChangedKey: "website", New: "example.com", DiffType: types.DiffTypeAdd},
		{ID: "d3", Ticker: "XYZ", ChangedKey: "phone", Old: "555-1234", DiffType: types.DiffTypeRemove},
	}

	digest := RenderDigest(diffs)

	assert.Contains(t, digest, "Detected changes on ABC:")
	assert.Contains(t, digest, "Detected changes on XYZ:")
	assert.Contains(t, digest, "*website* has been added:\nexample.com")
	assert.Contains(t, digest, "*phone* has been removed:\n555-1234")

	// Ticker blocks preserve drain order
	assert.Less(t, strings.Index(digest, "ABC"), strings.Index(digest, "XYZ"))
}
