package tickers

import (
	"fmt"
	"sort"

	"stockwatch/internal/types"

	"go.uber.org/zap"
)

// Type describes one tracked record type for a ticker. Each record type
// declares its diff-filtering capabilities: a key denylist, monotonic
// hierarchies, nested-key groups handed to the differ, subordinate types
// subsumed by this one, and a presentation edit.
type Type interface {
	// Name returns the record type name, which is also the snapshot
	// collection name.
	Name() string

	// Endpoint returns the data source endpoint template for this type
	Endpoint() string

	// Hierarchy maps keys to ordered rank lists. A change whose new value
	// ranks below its old value within the list is suppressed.
	Hierarchy() map[string][]string

	// NestedKeys maps dotted path prefixes to the depth at which the
	// differ compares the subtree as a single unit.
	NestedKeys() map[string]int

	// FilterKeys returns the exact-match key denylist
	FilterKeys() []string

	// Sons returns subordinate record types whose fields this type's
	// output subsumes; they are skipped while this type is collected.
	Sons() []string

	// EditDiff reformats a diff for presentation. Returning nil drops it.
	EditDiff(diff *types.Diff) *types.Diff
}

// Base provides no-op defaults for the optional capabilities
type Base struct{}

func (Base) Hierarchy() map[string][]string { return nil }
func (Base) NestedKeys() map[string]int { return nil }
func (Base) FilterKeys() []string { return nil }
func (Base) Sons() []string { return nil }
func (Base) EditDiff(d *types.Diff) *types.Diff { return d }

// Filter applies a record type's policy to raw diffs
type Filter struct {
	logger *zap.Logger
}

// NewFilter creates a new filter
func NewFilter(logger *zap.Logger) *Filter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Filter{logger: logger}
}

// Edit runs a diff through the record type's policy. It returns nil when
// the diff is dropped: empty changed key, denylisted key, or a regression
// within a monotonic hierarchy. Values missing from a hierarchy list are
// logged and passed through unmodified.
func (f *Filter) Edit(t Type, diff *types.Diff) *types.Diff {
	key := diff.ChangedKey
	if key == "" {
		return nil
	}

	for _, filtered := range t.FilterKeys() {
		if key == filtered {
			return nil
		}
	}

	if ranks, ok := t.Hierarchy()[key]; ok {
		oldRank, oldFound := rankOf(ranks, diff.Old)
		newRank, newFound := rankOf(ranks, diff.New)

		if !oldFound || !newFound {
			f.logger.Warn("Incorrect hierarchy value",
				zap.String("ticker", diff.Ticker),
				zap.String("key", key),
				zap.Any("old", diff.Old),
				zap.Any("new", diff.New))
		} else if newRank < oldRank {
			return nil
		}
	}

	return t.EditDiff(diff)
}

// rankOf locates a value's position in an ordered rank list
func rankOf(ranks []string, value any) (int, bool) {
	s := fmt.Sprint(value)
	for i, rank := range ranks {
		if rank == s {
			return i, true
		}
	}
	return 0, false
}

// Registry holds the known record types keyed by name
type Registry struct {
	types map[string]Type
}

// NewRegistry creates a registry pre-populated with the default record types
func NewRegistry() *Registry {
	r := &Registry{types: make(map[string]Type)}
	r.Register(NewProfile())
	r.Register(NewSymbols())
	r.Register(NewSecurities())
	return r
}

// Register adds a record type to the registry
func (r *Registry) Register(t Type) {
	r.types[t.Name()] = t
}

// Get returns a record type by name
func (r *Registry) Get(name string) (Type, bool) {
	t, ok := r.types[name]
	return t, ok
}

// All returns the registered record types in name order
func (r *Registry) All() []Type {
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)

	all := make([]Type, 0, len(names))
	for _, name := range names {
		all = append(all, r.types[name])
	}
	return all
}

// Sons returns the union of subordinate type names declared by composed
// parents; those types are skipped during collection cycles.
func (r *Registry) Sons() map[string]struct{} {
	sons := make(map[string]struct{})
	for _, t := range r.types {
		for _, son := range t.Sons() {
			sons[son] = struct{}{}
		}
	}
	return sons
}
