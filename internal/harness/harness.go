package harness

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/bashed/internal/merge"
	"github.com/roach88/bashed/internal/patch"
	"github.com/roach88/bashed/internal/publish"
	"github.com/roach88/bashed/internal/record"
	"github.com/roach88/bashed/internal/schema"
	tu "github.com/roach88/bashed/internal/testutil"
)

// Harness runs scenarios.
type Harness struct {
	workers int
	logger  *slog.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithWorkers bounds the parse and merge worker pools.
func WithWorkers(n int) Option {
	return func(h *Harness) {
		h.workers = n
	}
}

// WithLogger sets the logger handed to the engine.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// New returns a harness. Engine logs are discarded unless WithLogger is
// given.
func New(opts ...Option) *Harness {
	h := &Harness{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes a scenario with a default harness.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	return New().Run(ctx, scenario)
}

// Run builds the scenario's plugins, loads them, builds and writes a
// patch in memory, reparses it and checks the expectations.
//
// A failing load or build is part of the outcome, not an error: Run
// returns an error only when the scenario itself cannot be set up.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	table, err := scenarioTable(scenario)
	if err != nil {
		return nil, err
	}
	gameName := scenario.Game
	if gameName == "" {
		gameName = patch.DefaultGame
	}
	game, err := table.Game(gameName)
	if err != nil {
		return nil, err
	}

	sources := make([]patch.Source, len(scenario.Plugins))
	for i, p := range scenario.Plugins {
		data, err := p.Bytes(game)
		if err != nil {
			return nil, fmt.Errorf("plugin %s: %w", p.Name, err)
		}
		sources[i] = patch.Source{Name: p.Name, Data: data}
	}

	var reg *merge.Registry
	if scenario.Policies.Strict {
		if reg, err = merge.FromTable(table, merge.WithoutFallback()); err != nil {
			return nil, err
		}
	}

	opts := patch.Options{
		Game:       gameName,
		Table:      table,
		Workers:    h.workers,
		Preference: scenario.Preference,
		Logger:     h.logger,
	}
	if len(scenario.Active) > 0 {
		opts.Active = scenario.Active
	}
	pol := patch.Policies{
		Registry:         reg,
		Tags:             merge.NewTags(scenario.Tags),
		DescriptionTags:  scenario.Policies.DescriptionTags,
		Types:            scenario.Policies.Types,
		IncludeUnchanged: scenario.Policies.IncludeUnchanged,
	}

	outcome, err := execute(ctx, scenario.Name, sources, opts, pol)
	if err != nil {
		return nil, err
	}
	result := NewResult()
	result.Outcome = outcome
	check(scenario.Expect, outcome, result)
	return result, nil
}

func scenarioTable(s *Scenario) (*schema.Table, error) {
	if s.Schema == "" {
		return schema.Builtin()
	}
	t, err := schema.Overlay(s.Name+".cue", s.Schema)
	if err != nil {
		return nil, fmt.Errorf("scenario schema: %w", err)
	}
	return t, nil
}

// execute runs the engine. Only failures outside the build itself, such
// as a patch that does not reparse, are returned as errors.
func execute(ctx context.Context, name string, sources []patch.Source, opts patch.Options, pol patch.Policies) (*Outcome, error) {
	o := &Outcome{Scenario: name, Order: []string{}}

	s, err := patch.LoadPluginBytes(ctx, sources, opts)
	if err != nil {
		o.Error = err.Error()
		return o, nil
	}
	o.Order = s.Order.Names()
	for _, sk := range s.Skipped {
		o.Skipped = append(o.Skipped, sk.Name)
	}

	bp, err := patch.BuildPatch(ctx, s, pol)
	if err != nil {
		o.Error = err.Error()
		return o, nil
	}

	mem := publish.NewMemory()
	dest := "mem://" + name
	if _, err := patch.WritePatch(ctx, bp, dest, mem); err != nil {
		o.Error = err.Error()
		return o, nil
	}
	data, _ := mem.Get(dest)
	out, err := s.Codec.Parse(bp.Plugin.Name, data)
	if err != nil {
		return nil, fmt.Errorf("reparse patch: %w", err)
	}

	o.Masters = out.MasterNames()
	o.Stats = &bp.Stats
	err = out.Walk(func(_ []*record.Group, r *record.Record) error {
		subs, err := r.Subrecords()
		if err != nil {
			return err
		}
		rec := OutcomeRecord{Type: r.Sig, FormID: r.FormID, Subrecords: make([]string, len(subs))}
		for i, sub := range subs {
			rec.Subrecords[i] = subrecordLine(sub.Sig, sub.Data())
		}
		o.Records = append(o.Records, rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reparse patch: %w", err)
	}

	for _, rep := range bp.Conflicts {
		for _, f := range rep.Conflicts() {
			o.Conflicts = append(o.Conflicts, OutcomeConflict{FormID: rep.Key, Type: rep.Type, Tag: f.Tag, Plugins: f.Plugins})
		}
	}
	return o, nil
}

func subrecordLine(sig record.Signature, data []byte) string {
	if len(data) == 0 {
		return sig.String()
	}
	return sig.String() + " " + hex.EncodeToString(data)
}

// Bytes renders the plugin file for game.
func (p PluginDef) Bytes(game schema.Game) ([]byte, error) {
	if p.Raw != "" {
		return hex.DecodeString(strings.ReplaceAll(p.Raw, " ", ""))
	}
	b := tu.NewPlugin(game.RecordHeaderSize, game.DefaultVersion()).
		Author(p.Author).
		Description(p.Description)
	if p.Master {
		b.Flags(uint32(record.FlagMaster))
	}
	for _, m := range p.Masters {
		b.Master(m, 0)
	}

	groups := make(map[record.Signature]*tu.GroupBuilder)
	for _, r := range p.Records {
		g, ok := groups[r.Type]
		if !ok {
			g = b.Group(r.Type.String())
			groups[r.Type] = g
		}
		rec := tu.Rec{Sig: r.Type.String(), FormID: uint32(r.FormID), Compress: r.Compress}
		if r.Deleted {
			rec.Flags = uint32(record.FlagDeleted)
		}
		for _, s := range r.Subrecords {
			data, err := s.Bytes()
			if err != nil {
				return nil, fmt.Errorf("record %s %s: %w", r.Type, r.FormID, err)
			}
			rec.Subs = append(rec.Subs, tu.Sub{Sig: s.Sig.String(), Data: data})
		}
		g.Add(rec)
	}
	return b.Bytes(), nil
}
