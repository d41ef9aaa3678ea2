package loadorder

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/bashed/internal/record"
)

// MaxPlugins is the largest load order the engine accepts. Origin index
// 0xFF marks unresolved references and 0xFE is kept for the patch itself.
const MaxPlugins = 254

// LoadOrder is an immutable total order of plugins plus the active subset.
// Plugin names compare case-insensitively.
type LoadOrder struct {
	names     []string
	active    []string // in load order
	index     map[string]int
	activeIdx map[string]int
}

// New returns a load order. active must be a subset of names; nil active
// means every plugin is active.
func New(names, active []string) (*LoadOrder, error) {
	lo := &LoadOrder{
		names:     slices.Clone(names),
		index:     make(map[string]int, len(names)),
		activeIdx: make(map[string]int),
	}
	for i, n := range names {
		k := record.FoldName(n)
		if _, dup := lo.index[k]; dup {
			return nil, fmt.Errorf("duplicate plugin %q in load order", n)
		}
		lo.index[k] = i
	}
	if active == nil {
		active = names
	}
	set := make(map[string]bool, len(active))
	var missing []string
	for _, n := range active {
		k := record.FoldName(n)
		if _, ok := lo.index[k]; !ok {
			missing = append(missing, n)
			continue
		}
		set[k] = true
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("active plugins with no load order: %s", strings.Join(missing, ", "))
	}
	for _, n := range lo.names {
		if set[record.FoldName(n)] {
			lo.activeIdx[record.FoldName(n)] = len(lo.active)
			lo.active = append(lo.active, n)
		}
	}
	return lo, nil
}

// Len returns the number of plugins in the order.
func (lo *LoadOrder) Len() int {
	return len(lo.names)
}

// Names returns the full order.
func (lo *LoadOrder) Names() []string {
	return slices.Clone(lo.names)
}

// Active returns the active plugins in load order.
func (lo *LoadOrder) Active() []string {
	return slices.Clone(lo.active)
}

// At returns the i-th plugin of the full order.
func (lo *LoadOrder) At(i int) string {
	return lo.names[i]
}

// Index returns the position of name in the full order.
func (lo *LoadOrder) Index(name string) (int, bool) {
	i, ok := lo.index[record.FoldName(name)]
	return i, ok
}

// ActiveIndex returns the position of name among the active plugins.
func (lo *LoadOrder) ActiveIndex(name string) (int, bool) {
	i, ok := lo.activeIdx[record.FoldName(name)]
	return i, ok
}

// IsActive reports whether name is active.
func (lo *LoadOrder) IsActive(name string) bool {
	_, ok := lo.activeIdx[record.FoldName(name)]
	return ok
}

// Ordered returns names sorted by load order. Names without a load order
// sort last, case-insensitively by name.
func (lo *LoadOrder) Ordered(names []string) []string {
	out := slices.Clone(names)
	slices.SortStableFunc(out, func(a, b string) int {
		ia, oka := lo.Index(a)
		ib, okb := lo.Index(b)
		switch {
		case oka && okb:
			return ia - ib
		case oka:
			return -1
		case okb:
			return 1
		}
		return strings.Compare(record.FoldName(a), record.FoldName(b))
	})
	return out
}

// Equal reports whether both orders list the same plugins in the same
// order with the same active set. Names compare case-insensitively.
func (lo *LoadOrder) Equal(o *LoadOrder) bool {
	if lo == nil || o == nil {
		return lo == o
	}
	if len(lo.names) != len(o.names) || len(lo.active) != len(o.active) {
		return false
	}
	for i := range lo.names {
		if !record.SameName(lo.names[i], o.names[i]) {
			return false
		}
	}
	for i := range lo.active {
		if !record.SameName(lo.active[i], o.active[i]) {
			return false
		}
	}
	return true
}

// String renders the order as a comma separated list, active plugins
// marked with '*'.
func (lo *LoadOrder) String() string {
	parts := make([]string, len(lo.names))
	for i, n := range lo.names {
		if lo.IsActive(n) {
			parts[i] = "*" + n
		} else {
			parts[i] = n
		}
	}
	return strings.Join(parts, ", ")
}
