package patch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/bashed/internal/codec"
	"github.com/roach88/bashed/internal/loadorder"
	"github.com/roach88/bashed/internal/merge"
	"github.com/roach88/bashed/internal/record"
	"github.com/roach88/bashed/internal/telemetry"
)

// Source is one plugin held in memory.
type Source struct {
	Name string
	Data []byte
}

// Skipped is a plugin left out of the session because it failed to parse.
type Skipped struct {
	Name string
	Err  error
}

// Session is a loaded, ordered plugin set.
type Session struct {
	Codec *codec.Codec

	// Plugins holds every loaded plugin in load order.
	Plugins []*record.Plugin

	// Order is the resolved load order.
	Order *loadorder.LoadOrder

	// Skipped lists the plugins that failed with a FormatError.
	Skipped []Skipped

	opts Options
}

// Plugin returns the loaded plugin called name.
func (s *Session) Plugin(name string) (*record.Plugin, bool) {
	i := slices.IndexFunc(s.Plugins, func(p *record.Plugin) bool { return record.SameName(p.Name, name) })
	if i < 0 {
		return nil, false
	}
	return s.Plugins[i], true
}

// Active returns the active plugins in load order.
func (s *Session) Active() []*record.Plugin {
	var out []*record.Plugin
	for _, p := range s.Plugins {
		if s.Order.IsActive(p.Name) {
			out = append(out, p)
		}
	}
	return out
}

// DescriptionTags returns the tags every active plugin declares in its
// description.
func (s *Session) DescriptionTags() merge.Tags {
	tags := merge.NewTags(nil)
	for _, p := range s.Active() {
		if t := merge.DescriptionTags(p.Info.Description); len(t) > 0 {
			tags.Add(p.Name, t...)
		}
	}
	return tags
}

// LoadPlugins reads and parses the plugin files at paths. The plugin name
// is the file's base name.
func LoadPlugins(ctx context.Context, paths []string, opts Options) (*Session, error) {
	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = filepath.Base(p)
	}
	return load(ctx, names, func(i int) ([]byte, error) {
		return os.ReadFile(paths[i])
	}, opts)
}

// LoadPluginBytes parses in-memory plugins.
func LoadPluginBytes(ctx context.Context, sources []Source, opts Options) (*Session, error) {
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = s.Name
	}
	return load(ctx, names, func(i int) ([]byte, error) {
		return sources[i].Data, nil
	}, opts)
}

// load parses every plugin in parallel, then resolves the load order of
// those that parsed. A plugin failing with a FormatError is skipped and
// logged; any other failure, and a missing or cyclic master, is fatal.
func load(ctx context.Context, names []string, read func(int) ([]byte, error), opts Options) (_ *Session, err error) {
	opts, err = opts.withDefaults()
	if err != nil {
		return nil, err
	}
	c, err := codec.New(opts.Table, opts.Game)
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.Start(ctx, "load", attribute.Int("plugins", len(names)), attribute.String("game", opts.Game))
	defer func() { telemetry.End(span, err) }()
	done := opts.Metrics.Stage("load")

	parseOpts := []codec.ParseOption{codec.WithPayloadCheck()}
	if len(opts.Types) > 0 {
		parseOpts = append(parseOpts, codec.WithTypes(opts.Types...))
	}

	plugins := make([]*record.Plugin, len(names))
	failures := make([]error, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := read(i)
			if err != nil {
				return fmt.Errorf("read %s: %w", name, err)
			}
			p, err := c.Parse(name, data, parseOpts...)
			if codec.IsFormatError(err) {
				failures[i] = err
				return nil
			}
			if err != nil {
				return err
			}
			plugins[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	done()

	s := &Session{Codec: c, opts: opts}
	var parsed []*record.Plugin
	for i, p := range plugins {
		if failures[i] != nil {
			opts.Logger.Warn("skipping plugin", "plugin", names[i], "error", failures[i])
			s.Skipped = append(s.Skipped, Skipped{Name: names[i], Err: failures[i]})
			continue
		}
		parsed = append(parsed, p)
	}

	order, err := resolve(ctx, parsed, opts)
	if err != nil {
		return nil, err
	}
	s.Order = order
	s.Plugins = parsed
	slices.SortFunc(s.Plugins, func(a, b *record.Plugin) int {
		ia, _ := order.Index(a.Name)
		ib, _ := order.Index(b.Name)
		return ia - ib
	})

	opts.Metrics.Loaded(len(order.Active()), len(s.Skipped))
	opts.Logger.Debug("plugins loaded", "loaded", len(s.Plugins), "active", len(order.Active()), "skipped", len(s.Skipped))
	return s, nil
}

func resolve(ctx context.Context, plugins []*record.Plugin, opts Options) (_ *loadorder.LoadOrder, err error) {
	_, span := telemetry.Start(ctx, "resolve")
	defer func() { telemetry.End(span, err) }()
	defer opts.Metrics.Stage("resolve")()

	nodes := make([]loadorder.Node, len(plugins))
	for i, p := range plugins {
		nodes[i] = loadorder.NodeOf(p)
	}
	order, err := loadorder.Resolve(nodes, opts.Preference)
	if err != nil {
		return nil, err
	}
	if opts.Active == nil {
		return order, nil
	}
	order, err = loadorder.New(order.Names(), opts.Active)
	if err != nil {
		return nil, err
	}
	if err := order.CheckActive(nodes); err != nil {
		return nil, err
	}
	return order, nil
}
