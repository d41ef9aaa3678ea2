package history

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/bashed/internal/loadorder"
	"github.com/roach88/bashed/internal/record"
)

// Entry is one plugin's revision of an object.
type Entry struct {
	Plugin string
	Index  int            // position among the active plugins
	Record *record.Record // normalized into the load-order-global space
	Top    record.Signature
	Nested bool // lives in a nested (world, cell, topic) group
}

// Deleted reports whether the revision deletes the object.
func (e Entry) Deleted() bool {
	return e.Record.Deleted()
}

// History is the ordered sequence of revisions of one object across the
// load order.
type History struct {
	Key     record.FormID
	Type    record.Signature
	Entries []Entry
}

// Visible returns the entries after the last deletion. A deletion in the
// middle restarts the history: the first entry after it is the new base.
// The result is empty when the final entry deletes the object.
func (h *History) Visible() []Entry {
	for i := len(h.Entries) - 1; i >= 0; i-- {
		if h.Entries[i].Deleted() {
			return h.Entries[i+1:]
		}
	}
	return h.Entries
}

// Removed reports whether the final revision deletes the object.
func (h *History) Removed() bool {
	return len(h.Entries) > 0 && h.Entries[len(h.Entries)-1].Deleted()
}

// Base returns the first visible entry.
func (h *History) Base() (Entry, bool) {
	v := h.Visible()
	if len(v) == 0 {
		return Entry{}, false
	}
	return v[0], true
}

// Winner returns the last visible entry, the one the game would load.
func (h *History) Winner() (Entry, bool) {
	v := h.Visible()
	if len(v) == 0 {
		return Entry{}, false
	}
	return v[len(v)-1], true
}

// Nested reports whether any revision lives in a nested group.
func (h *History) Nested() bool {
	for _, e := range h.Entries {
		if e.Nested {
			return true
		}
	}
	return false
}

// Plugins returns the contributing plugin names in load order.
func (h *History) Plugins() []string {
	out := make([]string, len(h.Entries))
	for i, e := range h.Entries {
		out[i] = e.Plugin
	}
	return out
}

// Graph maps every object identifier to its history.
// A Graph is immutable once built.
type Graph struct {
	order      *loadorder.LoadOrder
	histories  map[record.FormID]*History
	keys       []record.FormID
	mismatches []*TypeMismatchError
}

// Order returns the load order the graph was built against.
func (g *Graph) Order() *loadorder.LoadOrder {
	return g.order
}

// Get returns the history of key.
func (g *Graph) Get(key record.FormID) (*History, bool) {
	h, ok := g.histories[key]
	return h, ok
}

// Keys returns every identifier in ascending order.
func (g *Graph) Keys() []record.FormID {
	return slices.Clone(g.keys)
}

// Len returns the number of identifiers.
func (g *Graph) Len() int {
	return len(g.keys)
}

// Mismatches returns the identifiers skipped because their revisions
// disagree on the record type.
func (g *Graph) Mismatches() []*TypeMismatchError {
	return slices.Clone(g.mismatches)
}

// BuildOptions configures Build.
type BuildOptions struct {
	// Workers bounds parallel normalization. Defaults to GOMAXPROCS.
	Workers int

	// Logger receives skipped-key warnings. Defaults to slog.Default().
	Logger *slog.Logger
}

// FromGraph returns a graph holding histories directly. Keys are sorted;
// histories are used as given. Intended for callers that assemble
// histories themselves, such as tests and scenario runners.
func FromGraph(order *loadorder.LoadOrder, histories []*History) *Graph {
	g := &Graph{order: order, histories: make(map[record.FormID]*History, len(histories))}
	for _, h := range histories {
		g.histories[h.Key] = h
		g.keys = append(g.keys, h.Key)
	}
	slices.Sort(g.keys)
	return g
}

// Build constructs the history graph of plugins against order.
//
// Plugins are normalized in parallel (each is independent), then appended
// strictly in load order in a single pass: the graph always honors order,
// never a plugin's internal record order or the order of the plugins
// slice. Every plugin must be active in order.
func Build(ctx context.Context, order *loadorder.LoadOrder, plugins []*record.Plugin, n *Normalizer, opts BuildOptions) (*Graph, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	ordered := slices.Clone(plugins)
	for _, p := range ordered {
		if !order.IsActive(p.Name) {
			return nil, fmt.Errorf("plugin %s is not active in the load order", p.Name)
		}
	}
	slices.SortFunc(ordered, func(a, b *record.Plugin) int {
		ia, _ := order.ActiveIndex(a.Name)
		ib, _ := order.ActiveIndex(b.Name)
		return ia - ib
	})

	// Normalize in parallel; each worker writes only its own slot.
	normalized := make([][]Entry, len(ordered))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range ordered {
		g.Go(func() error {
			entries, err := normalizePlugin(gctx, n, p, order)
			if err != nil {
				return err
			}
			normalized[i] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	graph := &Graph{order: order, histories: make(map[record.FormID]*History)}
	skipped := make(map[record.FormID]bool)
	for _, entries := range normalized {
		for _, e := range entries {
			key := e.Record.FormID
			if skipped[key] {
				continue
			}
			h, ok := graph.histories[key]
			if !ok {
				h = &History{Key: key, Type: e.Record.Sig}
				graph.histories[key] = h
				graph.keys = append(graph.keys, key)
			}
			if e.Record.Sig != h.Type {
				mm := &TypeMismatchError{Key: key, Want: h.Type, Got: e.Record.Sig, Plugin: e.Plugin}
				logger.Warn("skipping object with inconsistent record type",
					"formid", key.String(), "want", h.Type.String(), "got", e.Record.Sig.String(), "plugin", e.Plugin)
				graph.mismatches = append(graph.mismatches, mm)
				skipped[key] = true
				delete(graph.histories, key)
				continue
			}
			h.Entries = append(h.Entries, e)
		}
	}
	graph.keys = slices.DeleteFunc(graph.keys, func(k record.FormID) bool { return skipped[k] })
	slices.Sort(graph.keys)

	logger.Debug("history graph built", "plugins", len(ordered), "objects", len(graph.keys), "skipped", len(skipped))
	return graph, nil
}

func normalizePlugin(ctx context.Context, n *Normalizer, p *record.Plugin, order *loadorder.LoadOrder) ([]Entry, error) {
	m, err := n.Mapping(p)
	if err != nil {
		return nil, err
	}
	idx, _ := order.ActiveIndex(p.Name)

	var entries []Entry
	err = p.Walk(func(path []*record.Group, r *record.Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		nr, err := n.Record(m, r)
		if err != nil {
			return fmt.Errorf("normalize %s record %s %s: %w", p.Name, r.Sig, r.FormID, err)
		}
		entries = append(entries, Entry{
			Plugin: p.Name,
			Index:  idx,
			Record: nr,
			Top:    path[0].LabelSig(),
			Nested: len(path) > 1,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
