package storage

import (
	"reflect"
)

// bookkeepingColumns are excluded when comparing rows for duplicate
// collapsing; verifiedDate is touched by the upstream on every fetch.
var bookkeepingColumns = map[string]struct{}{
	"ticker":       {},
	"date":         {},
	"verifiedDate": {},
}

// CollapseHistory removes consecutive whole-row duplicates from a
// date-ordered history. A row is a duplicate of its predecessor when every
// compared column is equal, ignoring bookkeeping columns.
func CollapseHistory(rows []map[string]any) []map[string]any {
	collapsed := make([]map[string]any, 0, len(rows))

	for i, row := range rows {
		if i > 0 && rowsEqual(rows[i-1], row) {
			continue
		}
		collapsed = append(collapsed, row)
	}

	return collapsed
}

// LatestRow returns the comparable fields of the last collapsed row:
// everything except the bookkeeping columns. Complex columns stay; record
// types tame them through nested-key groups at diff time.
func LatestRow(rows []map[string]any) map[string]any {
	collapsed := CollapseHistory(rows)
	if len(collapsed) == 0 {
		return nil
	}

	last := collapsed[len(collapsed)-1]
	fields := make(map[string]any, len(last))
	for k, v := range last {
		if _, skip := bookkeepingColumns[k]; skip {
			continue
		}
		fields[k] = v
	}

	return fields
}

// PruneView trims a collapsed history for display: columns constant across
// every visible row are dropped, as are complex columns not named in keep.
func PruneView(rows []map[string]any, keep map[string]struct{}) []map[string]any {
	if len(rows) == 0 {
		return rows
	}

	drop := make(map[string]struct{})
	for col := range columnSet(rows) {
		if _, bookkeeping := bookkeepingColumns[col]; bookkeeping {
			continue
		}
		if isComplexColumn(rows, col) {
			if _, kept := keep[col]; !kept {
				drop[col] = struct{}{}
			}
			continue
		}
		if len(rows) > 1 && isConstantColumn(rows, col) {
			drop[col] = struct{}{}
		}
	}

	pruned := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		out := make(map[string]any, len(row))
		for k, v := range row {
			if _, dropped := drop[k]; dropped {
				continue
			}
			out[k] = v
		}
		pruned = append(pruned, out)
	}

	return pruned
}

func rowsEqual(a, b map[string]any) bool {
	for col := range columnSet([]map[string]any{a, b}) {
		if _, skip := bookkeepingColumns[col]; skip {
			continue
		}
		if !reflect.DeepEqual(a[col], b[col]) {
			return false
		}
	}
	return true
}

func columnSet(rows []map[string]any) map[string]struct{} {
	cols := make(map[string]struct{})
	for _, row := range rows {
		for k := range row {
			cols[k] = struct{}{}
		}
	}
	return cols
}

func isConstantColumn(rows []map[string]any, col string) bool {
	first, present := rows[0][col]
	if !present {
		return false
	}
	for _, row := range rows[1:] {
		v, ok := row[col]
		if !ok || !reflect.DeepEqual(first, v) {
			return false
		}
	}
	return true
}

func isComplexColumn(rows []map[string]any, col string) bool {
	for _, row := range rows {
		switch row[col].(type) {
		case map[string]any, []any:
			return true
		}
	}
	return false
}
