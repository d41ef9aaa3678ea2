package merge

import (
	"context"
	"log/slog"
	"maps"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/bashed/internal/history"
	"github.com/roach88/bashed/internal/record"
	"github.com/roach88/bashed/internal/schema"
)

// Request is one merge request.
type Request struct {
	Graph    *history.Graph
	Registry *Registry
	Tags     Tags

	// Types restricts the merge to the listed record types. Empty merges
	// every type.
	Types []record.Signature
}

// Result maps object identifiers to their synthesized revisions. Removed
// objects are absent.
type Result map[record.FormID]*Merged

// Keys returns the identifiers in ascending order.
func (r Result) Keys() []record.FormID {
	return slices.Sorted(maps.Keys(r))
}

// Engine runs merge requests.
type Engine struct {
	table   *schema.Table
	workers int
	logger  *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithWorkers bounds the number of identifiers merged concurrently.
func WithWorkers(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// NewEngine returns an engine reading layouts from table.
func NewEngine(table *schema.Table, opts ...EngineOption) *Engine {
	e := &Engine{table: table, workers: runtime.GOMAXPROCS(0), logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Merge synthesizes every object of the request's graph.
//
// Bindings are checked for every record type present before any work
// starts, in type order, so a policy failure is reported the same way on
// every run. Identifiers are then merged concurrently; each worker writes
// only its own slot, and the result map is assembled after all finish.
// Cancellation is observed between identifiers.
func (e *Engine) Merge(ctx context.Context, req Request) (Result, error) {
	var keys []record.FormID
	types := make(map[record.Signature]bool)
	for _, k := range req.Graph.Keys() {
		h, _ := req.Graph.Get(k)
		if len(req.Types) > 0 && !slices.Contains(req.Types, h.Type) {
			continue
		}
		keys = append(keys, k)
		types[h.Type] = true
	}
	for _, sig := range slices.SortedFunc(maps.Keys(types), record.Signature.Compare) {
		if err := req.Registry.Check(e.table, sig); err != nil {
			return nil, err
		}
	}

	merged := make([]*Merged, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, key := range keys {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			h, _ := req.Graph.Get(key)
			m, err := MergeHistory(e.table, h, req.Registry, req.Tags)
			if err != nil {
				return err
			}
			merged[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(Result, len(keys))
	changed := 0
	for _, m := range merged {
		if m == nil {
			continue
		}
		out[m.Key] = m
		if m.Changed {
			changed++
		}
	}
	e.logger.Debug("merge complete", "objects", len(keys), "merged", len(out), "changed", changed)
	return out, nil
}
