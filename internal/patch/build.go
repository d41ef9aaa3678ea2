package patch

import (
	"context"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel/attribute"

	"github.com/roach88/bashed/internal/conflict"
	"github.com/roach88/bashed/internal/history"
	"github.com/roach88/bashed/internal/masters"
	"github.com/roach88/bashed/internal/merge"
	"github.com/roach88/bashed/internal/record"
	"github.com/roach88/bashed/internal/telemetry"
)

// DefaultName is the file name of a patch when Policies.Name is empty.
const DefaultName = "Bashed Patch, 0.esp"

// Policies selects how a patch is built.
type Policies struct {
	// Registry binds record types to merge rules. Defaults to the policy
	// table of the session's schema.
	Registry *merge.Registry

	// Tags assigns selection tags to plugins.
	Tags merge.Tags

	// DescriptionTags adds the {{BASH:...}} tags found in plugin
	// descriptions to Tags.
	DescriptionTags bool

	// Types restricts merging to these record types. Empty merges all.
	Types []record.Signature

	// IncludeUnchanged also emits objects whose merged record equals the
	// winner's.
	IncludeUnchanged bool

	// Name, Author and Description fill the patch header.
	Name        string
	Author      string
	Description string
}

// Stats counts what a build did.
type Stats struct {
	Plugins       int `json:"plugins"`
	Objects       int `json:"objects"`
	Merged        int `json:"merged"`
	Changed       int `json:"changed"`
	Emitted       int `json:"emitted"`
	SkippedNested int `json:"skipped_nested"`
	Removed       int `json:"removed"`
	Mismatched    int `json:"mismatched"`
}

// BashedPatch is a built patch, ready to be written.
type BashedPatch struct {
	// Plugin is the patch in its own FormID space.
	Plugin *record.Plugin

	Masters    []record.Master
	Conflicts  []*conflict.Report
	Summary    conflict.Summary
	Merged     merge.Result
	Mismatches []*history.TypeMismatchError
	Stats      Stats

	session *Session
}

// Bytes serializes the patch.
func (bp *BashedPatch) Bytes() ([]byte, error) {
	return bp.session.Codec.Serialize(bp.Plugin)
}

// BuildPatch builds a Bashed Patch from the active plugins of s.
//
// Only objects whose merged record differs from the winner's are emitted,
// unless IncludeUnchanged is set. Objects in nested groups take part in
// conflict reports but are never emitted. The patch is deterministic: the
// same session and policies always yield byte-identical output.
func BuildPatch(ctx context.Context, s *Session, pol Policies) (_ *BashedPatch, err error) {
	opts := s.opts
	table := s.Codec.Table()
	ctx, span := telemetry.Start(ctx, "build", attribute.Int("plugins", len(s.Active())))
	defer func() {
		if err != nil {
			opts.Metrics.Failed()
		}
		telemetry.End(span, err)
	}()

	reg := pol.Registry
	if reg == nil {
		if reg, err = merge.FromTable(table); err != nil {
			return nil, err
		}
	}
	tags := merge.NewTags(nil)
	for plugin := range pol.Tags {
		tags.Add(plugin, pol.Tags.Of(plugin)...)
	}
	if pol.DescriptionTags {
		desc := s.DescriptionTags()
		for plugin := range desc {
			tags.Add(plugin, desc.Of(plugin)...)
		}
	}

	active := s.Active()
	bp := &BashedPatch{session: s}
	bp.Stats.Plugins = len(active)

	var graph *history.Graph
	err = stage(ctx, opts, "history", func(ctx context.Context) (err error) {
		n := history.NewNormalizer(table, s.Order)
		graph, err = history.Build(ctx, s.Order, active, n, history.BuildOptions{Workers: opts.Workers, Logger: opts.Logger})
		return err
	})
	if err != nil {
		return nil, err
	}
	bp.Mismatches = graph.Mismatches()
	bp.Stats.Objects = graph.Len()
	bp.Stats.Mismatched = len(bp.Mismatches)

	err = stage(ctx, opts, "conflict", func(ctx context.Context) (err error) {
		bp.Conflicts, err = conflict.NewDetector(table).DiffAll(ctx, graph, opts.Workers)
		return err
	})
	if err != nil {
		return nil, err
	}
	bp.Summary = conflict.Summarize(bp.Conflicts)
	bp.Stats.Removed = bp.Summary.Removed

	err = stage(ctx, opts, "merge", func(ctx context.Context) (err error) {
		engine := merge.NewEngine(table, merge.WithWorkers(opts.Workers), merge.WithLogger(opts.Logger))
		bp.Merged, err = engine.Merge(ctx, merge.Request{Graph: graph, Registry: reg, Tags: tags, Types: pol.Types})
		return err
	})
	if err != nil {
		return nil, err
	}

	var entries []masters.Entry
	for _, key := range bp.Merged.Keys() {
		m := bp.Merged[key]
		bp.Stats.Merged++
		if m.Changed {
			bp.Stats.Changed++
		}
		if !m.Changed && !pol.IncludeUnchanged {
			continue
		}
		if m.Nested {
			bp.Stats.SkippedNested++
			continue
		}
		entries = append(entries, masters.Entry{Record: m.Record, Plugin: m.Winner})
	}

	var res *masters.Result
	err = stage(ctx, opts, "finalize", func(context.Context) (err error) {
		res, err = masters.Finalize(table, s.Order, entries, masters.Options{
			Sizes:      pluginSizes(active),
			GroupOrder: groupOrder(active),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	bp.Masters = res.Masters
	bp.Plugin, err = s.assemble(pol, res)
	if err != nil {
		return nil, err
	}
	bp.Stats.Emitted = len(res.Records)

	opts.Metrics.Built(bp.Stats.Emitted, bp.Summary.Conflicting)
	opts.Logger.Info("patch built",
		"plugins", bp.Stats.Plugins,
		"objects", bp.Stats.Objects,
		"changed", bp.Stats.Changed,
		"emitted", bp.Stats.Emitted,
		"conflicting", bp.Summary.Conflicting,
		"masters", len(bp.Masters))
	return bp, nil
}

// stage runs fn inside its own span and duration metric.
func stage(ctx context.Context, opts Options, name string, fn func(context.Context) error) (err error) {
	ctx, span := telemetry.Start(ctx, name)
	defer func() { telemetry.End(span, err) }()
	defer opts.Metrics.Stage(name)()
	if err := fn(ctx); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// assemble wraps finalized records into a plugin with one top group per
// record type.
func (s *Session) assemble(pol Policies, res *masters.Result) (*record.Plugin, error) {
	var groups []*record.Group
	for i := 0; i < len(res.Records); {
		j := i
		for j < len(res.Records) && res.Records[j].Sig == res.Records[i].Sig {
			j++
		}
		groups = append(groups, record.NewTopGroup(res.Records[i].Sig, res.Records[i:j]))
		i = j
	}

	name := pol.Name
	if name == "" {
		name = DefaultName
	}
	info := record.Info{
		Version:      s.Codec.Game().DefaultVersion(),
		NumRecords:   int32(len(res.Records) + len(groups)),
		NextObjectID: 0x800,
		Author:       pol.Author,
		Description:  pol.Description,
		Masters:      res.Masters,
	}
	header, err := s.Codec.HeaderRecord(info, 0)
	if err != nil {
		return nil, err
	}
	return &record.Plugin{Name: name, Header: header, Info: info, Groups: groups}, nil
}

func pluginSizes(plugins []*record.Plugin) map[string]uint64 {
	out := make(map[string]uint64, len(plugins))
	for _, p := range plugins {
		out[record.FoldName(p.Name)] = uint64(p.Size)
	}
	return out
}

// groupOrder returns record types in the order their top groups first
// appear across plugins in load order.
func groupOrder(plugins []*record.Plugin) []record.Signature {
	var out []record.Signature
	for _, p := range plugins {
		for _, sig := range p.TopGroupOrder() {
			if !slices.Contains(out, sig) {
				out = append(out, sig)
			}
		}
	}
	return out
}
