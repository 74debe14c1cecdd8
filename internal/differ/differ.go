package differ

import (
	"reflect"
	"sort"
	"strconv"
	"strings"

	"stockwatch/internal/types"

	"go.uber.org/zap"
)

// Change represents one raw structural difference between two records,
// before per-ticker-type decoration and filtering.
type Change struct {
	Path string
	Old  any
	New  any
	Type types.DiffType
}

// Differ computes field-level changes between two nested records.
// Records are string-keyed maps whose values are scalars, nested maps or
// ordered slices. Lists are compared positionally.
type Differ struct {
	logger *zap.Logger
}

// New creates a new differ
func New(logger *zap.Logger) *Differ {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Differ{logger: logger}
}

// Compute returns the changes between previous and current. A nil previous
// means there is no history yet: the first observation is a baseline, not
// an alert, so the result is empty.
//
// nested maps a dotted path prefix to a depth (in path segments); once the
// walk reaches that depth under the prefix, the remaining subtree is
// compared as a single unit instead of per leaf.
//
// A comparison panic is recovered and logged; the changes collected up to
// that point are returned.
func (d *Differ) Compute(previous, current map[string]any, nested map[string]int) (changes []Change) {
	if previous == nil {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("Comparison aborted, returning partial changes",
				zap.Any("reason", r))
		}
	}()

	d.compareMaps(nil, previous, current, nested, &changes)
	return changes
}

// compareMaps walks the union of keys of both maps
func (d *Differ) compareMaps(path []string, prev, curr map[string]any, nested map[string]int, out *[]Change) {
	keys := unionKeys(prev, curr)

	for _, key := range keys {
		keyPath := append(append([]string{}, path...), key)
		oldVal, inPrev := prev[key]
		newVal, inCurr := curr[key]

		switch {
		case inPrev && inCurr:
			d.compareNode(keyPath, oldVal, newVal, nested, out)
		case inPrev:
			*out = append(*out, Change{
				Path: joinPath(keyPath),
				Old:  oldVal,
				Type: types.DiffTypeRemove,
			})
		default:
			*out = append(*out, Change{
				Path: joinPath(keyPath),
				New:  newVal,
				Type: types.DiffTypeAdd,
			})
		}
	}
}

// compareNode compares two values present at the same path
func (d *Differ) compareNode(path []string, oldVal, newVal any, nested map[string]int, out *[]Change) {
	// Nested-key groups collapse everything below the configured depth
	// into a single comparable unit.
	if atNestedBoundary(path, nested) {
		if !reflect.DeepEqual(oldVal, newVal) {
			*out = append(*out, Change{
				Path: joinPath(path),
				Old:  oldVal,
				New:  newVal,
				Type: types.DiffTypeChange,
			})
		}
		return
	}

	oldMap, oldIsMap := oldVal.(map[string]any)
	newMap, newIsMap := newVal.(map[string]any)
	if oldIsMap && newIsMap {
		d.compareMaps(path, oldMap, newMap, nested, out)
		return
	}

	oldList, oldIsList := toSlice(oldVal)
	newList, newIsList := toSlice(newVal)
	if oldIsList && newIsList {
		d.compareSlices(path, oldList, newList, nested, out)
		return
	}

	if !scalarEqual(oldVal, newVal) {
		*out = append(*out, Change{
			Path: joinPath(path),
			Old:  oldVal,
			New:  newVal,
			Type: types.DiffTypeChange,
		})
	}
}

// compareSlices compares lists positionally; length differences yield
// add/remove changes at the tail.
func (d *Differ) compareSlices(path []string, oldList, newList []any, nested map[string]int, out *[]Change) {
	shared := len(oldList)
	if len(newList) < shared {
		shared = len(newList)
	}

	for i := 0; i < shared; i++ {
		d.compareNode(append(append([]string{}, path...), strconv.Itoa(i)), oldList[i], newList[i], nested, out)
	}

	for i := shared; i < len(oldList); i++ {
		*out = append(*out, Change{
			Path: joinPath(append(append([]string{}, path...), strconv.Itoa(i))),
			Old:  oldList[i],
			Type: types.DiffTypeRemove,
		})
	}

	for i := shared; i < len(newList); i++ {
		*out = append(*out, Change{
			Path: joinPath(append(append([]string{}, path...), strconv.Itoa(i))),
			New:  newList[i],
			Type: types.DiffTypeAdd,
		})
	}
}

// atNestedBoundary reports whether path sits at or below the configured
// depth of a matching nested-key group.
func atNestedBoundary(path []string, nested map[string]int) bool {
	if len(nested) == 0 {
		return false
	}

	dotted := joinPath(path)
	for prefix, depth := range nested {
		if dotted != prefix && !strings.HasPrefix(dotted, prefix+".") {
			continue
		}
		if len(path) >= depth {
			return true
		}
	}
	return false
}

// scalarEqual compares two leaf values, tolerating numeric type drift
// between a freshly fetched record and one decoded from storage.
func scalarEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func toSlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

func unionKeys(a, b map[string]any) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	keys := make([]string, 0, len(a)+len(b))

	for k := range a {
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	for k := range b {
		if _, ok := seen[k]; !ok {
			keys = append(keys, k)
		}
	}

	sort.Strings(keys)
	return keys
}

func joinPath(path []string) string {
	return strings.Join(path, ".")
}
