package conflict

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/bashed/internal/history"
)

// Summary counts objects by their most severe field status.
type Summary struct {
	Objects     int `json:"objects"`
	Unchanged   int `json:"unchanged"`
	Overridden  int `json:"overridden"`
	Conflicting int `json:"conflicting"`
	Removed     int `json:"removed"`
}

// Summarize counts reports.
func Summarize(reports []*Report) Summary {
	var s Summary
	for _, r := range reports {
		s.Objects++
		if r.Removed {
			s.Removed++
			continue
		}
		switch r.Status() {
		case Unchanged:
			s.Unchanged++
		case Overridden:
			s.Overridden++
		case Conflicting:
			s.Conflicting++
		}
	}
	return s
}

// DiffAll diffs every history of g. Reports come back in key order.
// Identifiers are independent, so they are diffed on up to workers
// goroutines; workers <= 0 means GOMAXPROCS.
func (d *Detector) DiffAll(ctx context.Context, g *history.Graph, workers int) ([]*Report, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	keys := g.Keys()
	reports := make([]*Report, len(keys))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i, key := range keys {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			h, _ := g.Get(key)
			rep, err := d.Diff(h)
			if err != nil {
				return err
			}
			reports[i] = rep
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}
