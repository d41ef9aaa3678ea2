package patch

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/roach88/bashed/internal/conflict"
	"github.com/roach88/bashed/internal/history"
	"github.com/roach88/bashed/internal/telemetry"
)

// DetectConflicts classifies every object of the active plugins of s
// without merging. Reports come back in identifier order.
func DetectConflicts(ctx context.Context, s *Session) (_ []*conflict.Report, err error) {
	opts := s.opts
	table := s.Codec.Table()
	ctx, span := telemetry.Start(ctx, "conflicts", attribute.Int("plugins", len(s.Active())))
	defer func() { telemetry.End(span, err) }()

	var graph *history.Graph
	err = stage(ctx, opts, "history", func(ctx context.Context) (err error) {
		n := history.NewNormalizer(table, s.Order)
		graph, err = history.Build(ctx, s.Order, s.Active(), n, history.BuildOptions{Workers: opts.Workers, Logger: opts.Logger})
		return err
	})
	if err != nil {
		return nil, err
	}

	var reports []*conflict.Report
	err = stage(ctx, opts, "conflict", func(ctx context.Context) (err error) {
		reports, err = conflict.NewDetector(table).DiffAll(ctx, graph, opts.Workers)
		return err
	})
	return reports, err
}
