package tickers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"stockwatch/internal/types"
)

func TestFilterHierarchySuppression(t *testing.T) {
	f := NewFilter(zaptest.NewLogger(t))
	securities := NewSecurities()

	testCases := []struct {
		name    string
		old     string
		new     string
		dropped bool
	}{
		{name: "upgrade passes", old: "PN", new: "QB", dropped: false},
		{name: "downgrade suppressed", old: "QB", new: "PN", dropped: true},
		{name: "adjacent downgrade suppressed", old: "PC", new: "PL", dropped: true},
		{name: "unknown value fails open", old: "PC", new: "XX", dropped: false},
		{name: "both unknown fails open", old: "YY", new: "XX", dropped: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			diff := &types.Diff{
				Ticker:     "ABC",
				ChangedKey: "tierCode",
				Old:        tc.old,
				New:        tc.new,
				DiffType:   types.DiffTypeChange,
			}

			edited := f.Edit(securities, diff)
			if tc.dropped {
				assert.Nil(t, edited)
			} else {
				assert.NotNil(t, edited)
			}
		})
	}
}

func TestFilterEmptyKeyDropped(t *testing.T) {
	f := NewFilter(zaptest.NewLogger(t))

	diff := &types.Diff{Ticker: "ABC", ChangedKey: "", DiffType: types.DiffTypeChange}
	assert.Nil(t, f.Edit(NewSymbols(), diff))
}

func TestFilterKeyDenylist(t *testing.T) {
	f := NewFilter(zaptest.NewLogger(t))

	diff := &types.Diff{Ticker: "ABC", ChangedKey: "verifiedDate", Old: "a", New: "b"}
	assert.Nil(t, f.Edit(NewSymbols(), diff))

	diff = &types.Diff{Ticker: "ABC", ChangedKey: "symbol", Old: "ABC", New: "ABCD"}
	assert.NotNil(t, f.Edit(NewSymbols(), diff))
}

func TestSecuritiesEditTierTranslation(t *testing.T) {
	f := NewFilter(zaptest.NewLogger(t))

	diff := &types.Diff{
		Ticker:     "ABC",
		ChangedKey: "tierCode",
		Old:        "PN",
		New:        "QB",
		DiffType:   types.DiffTypeChange,
	}

	edited := f.Edit(NewSecurities(), diff)
	require.NotNil(t, edited)
	assert.Equal(t, "Pink No Information", edited.Old)
	assert.Equal(t, "OTCQB", edited.New)
}

func TestSecuritiesEditShareCounts(t *testing.T) {
	securities := NewSecurities()

	t.Run("thousands separators and ratio", func(t *testing.T) {
		diff := &types.Diff{
			ChangedKey: "outstandingShares",
			Old:        float64(1000000),
			New:        float64(1500000),
			DiffType:   types.DiffTypeChange,
		}

		edited := securities.EditDiff(diff)
		require.NotNil(t, edited)
		assert.Equal(t, "1,000,000", edited.Old)
		assert.Equal(t, "1,500,000 (50%)", edited.New)
	})

	t.Run("non numeric old treated as zero", func(t *testing.T) {
		diff := &types.Diff{
			ChangedKey: "authorizedShares",
			Old:        "n/a",
			New:        float64(5000),
			DiffType:   types.DiffTypeChange,
		}

		edited := securities.EditDiff(diff)
		require.NotNil(t, edited)
		assert.Equal(t, "0", edited.Old)
		assert.Equal(t, "5,000", edited.New)
	})

	t.Run("non extended key has no ratio", func(t *testing.T) {
		diff := &types.Diff{
			ChangedKey: "numberOfEmployees",
			Old:        float64(10),
			New:        float64(20),
			DiffType:   types.DiffTypeChange,
		}

		edited := securities.EditDiff(diff)
		require.NotNil(t, edited)
		assert.Equal(t, "20", edited.New)
	})
}

func TestRegistryDefaults(t *testing.T) {
	r := NewRegistry()

	all := r.All()
	require.Len(t, all, 3)
	assert.Equal(t, "profile", all[0].Name())
	assert.Equal(t, "securities", all[1].Name())
	assert.Equal(t, "symbols", all[2].Name())

	_, ok := r.Get("securities")
	assert.True(t, ok)
	_, ok = r.Get("filings")
	assert.False(t, ok)
}

func TestRegistrySons(t *testing.T) {
	r := NewRegistry()

	sons := r.Sons()
	_, skipped := sons["symbols"]
	assert.True(t, skipped)
	_, skipped = sons["securities"]
	assert.False(t, skipped)
}
