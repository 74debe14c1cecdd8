package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollapseHistory(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	t3 := t2.Add(time.Hour)

	rows := []map[string]any{
		{"x": 1, "date": t1},
		{"x": 1, "date": t2},
		{"x": 2, "date": t3},
	}

	collapsed := CollapseHistory(rows)
	require.Len(t, collapsed, 2)
	assert.Equal(t, 1, collapsed[0]["x"])
	assert.Equal(t, t1, collapsed[0]["date"])
	assert.Equal(t, 2, collapsed[1]["x"])
	assert.Equal(t, t3, collapsed[1]["date"])
}

func TestCollapseHistoryIgnoresVerifiedDate(t *testing.T) {
	rows := []map[string]any{
		{"tierCode": "PC", "verifiedDate": "2024-01-01"},
		{"tierCode": "PC", "verifiedDate": "2024-01-02"},
	}

	assert.Len(t, CollapseHistory(rows), 1)
}

func TestCollapseHistoryMissingColumnIsDifference(t *testing.T) {
	rows := []map[string]any{
		{"tierCode": "PC", "website": "example.com"},
		{"tierCode": "PC"},
	}

	assert.Len(t, CollapseHistory(rows), 2)
}

func TestLatestRow(t *testing.T) {
	t.Run("empty history", func(t *testing.T) {
		assert.Nil(t, LatestRow(nil))
	})

	t.Run("bookkeeping columns stripped", func(t *testing.T) {
		rows := []map[string]any{
			{"ticker": "ABC", "date": time.Now(), "tierCode": "PN"},
			{"ticker": "ABC", "date": time.Now(), "tierCode": "PC"},
		}

		latest := LatestRow(rows)
		require.NotNil(t, latest)
		assert.Equal(t, map[string]any{"tierCode": "PC"}, latest)
	})

	t.Run("duplicates collapse before selection", func(t *testing.T) {
		rows := []map[string]any{
			{"tierCode": "PC", "date": "1"},
			{"tierCode": "PC", "date": "2"},
		}

		latest := LatestRow(rows)
		assert.Equal(t, map[string]any{"tierCode": "PC"}, latest)
	})
}

func TestPruneView(t *testing.T) {
	rows := []map[string]any{
		{"tierCode": "PN", "country": "USA", "officers": []any{"alice"}},
		{"tierCode": "PC", "country": "USA", "officers": []any{"alice", "bob"}},
	}

	t.Run("constant and complex columns dropped", func(t *testing.T) {
		pruned := PruneView(rows, nil)
		require.Len(t, pruned, 2)
		assert.Equal(t, map[string]any{"tierCode": "PN"}, pruned[0])
		assert.Equal(t, map[string]any{"tierCode": "PC"}, pruned[1])
	})

	t.Run("kept complex columns survive", func(t *testing.T) {
		pruned := PruneView(rows, map[string]struct{}{"officers": {}})
		require.Len(t, pruned, 2)
		assert.Contains(t, pruned[1], "officers")
		assert.NotContains(t, pruned[1], "country")
	})

	t.Run("single row keeps scalar columns", func(t *testing.T) {
		pruned := PruneView(rows[:1], nil)
		require.Len(t, pruned, 1)
		assert.Contains(t, pruned[0], "country")
	})
}
