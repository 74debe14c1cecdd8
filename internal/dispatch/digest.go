package dispatch

import (
	"fmt"
	"strings"

	"stockwatch/internal/types"
)

const (
	alertEmoji       = "\U0001F6A8"
	fastForwardEmoji = "⏩"
)

// RenderDigest renders drained diffs into one digest text: one block per
// ticker, blocks and lines in drain order, newline-joined.
func RenderDigest(diffs []*types.Diff) string {
	var order []string
	grouped := make(map[string][]*types.Diff)

	for _, diff := range diffs {
		if _, seen := grouped[diff.Ticker]; !seen {
			order = append(order, diff.Ticker)
		}
		grouped[diff.Ticker] = append(grouped[diff.Ticker], diff)
	}

	blocks := make([]string, 0, len(order))
	for _, ticker := range order {
		blocks = append(blocks, renderTicker(ticker, grouped[ticker]))
	}

	return strings.Join(blocks, "\n")
}

// renderTicker renders one ticker's changes under an alert header
func renderTicker(ticker string, diffs []*types.Diff) string {
	lines := make([]string, 0, len(diffs)+1)
	lines = append(lines, fmt.Sprintf("%s Detected changes on %s:", alertEmoji, ticker))

	for _, diff := range diffs {
		lines = append(lines, renderDiff(diff))
	}

	return strings.Join(lines, "\n")
}

// renderDiff phrases one change; add, remove and change read differently
func renderDiff(diff *types.Diff) string {
	switch diff.DiffType {
	case types.DiffTypeAdd:
		return fmt.Sprintf("*%s* has been added:\n%v", diff.ChangedKey, diff.New)
	case types.DiffTypeRemove:
		return fmt.Sprintf("*%s* has been removed:\n%v", diff.ChangedKey, diff.Old)
	default:
		return fmt.Sprintf("*%s* has changed:\n%v %s%s%s %v",
			diff.ChangedKey, diff.Old,
			fastForwardEmoji, fastForwardEmoji, fastForwardEmoji,
			diff.New)
	}
}
