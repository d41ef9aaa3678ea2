package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/roach88/bashed/internal/patch"
	"github.com/roach88/bashed/internal/schema"
	"github.com/roach88/bashed/internal/telemetry"
)

// SessionFlags are the flags shared by every command that loads plugins.
// Values come from BASHED_* variables, then the manifest, then flags the
// user set explicitly.
type SessionFlags struct {
	Manifest   string
	Game       string
	SchemaDir  string
	Workers    int
	Active     []string
	Preference []string
	Types      sigsValue
}

func (f *SessionFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.Manifest, "manifest", "m", "", "session manifest (YAML)")
	fs.StringVar(&f.Game, "game", "", "game profile (default BASHED_GAME or skyrim)")
	fs.StringVar(&f.SchemaDir, "schema-dir", "", "CUE schema directory overlaid on the builtin table")
	fs.IntVar(&f.Workers, "workers", 0, "parallel workers (0 = BASHED_WORKERS or GOMAXPROCS)")
	fs.StringSliceVar(&f.Active, "active", nil, "active plugins (default: all loaded)")
	fs.StringSliceVar(&f.Preference, "preference", nil, "preferred load order used to break ties")
	fs.Var(&f.Types, "types", "record types to interpret, e.g. LVLI,LVLN (default: all)")
}

// session is the resolved input of one command run.
type session struct {
	Manifest *Manifest
	Paths    []string
	Table    *schema.Table
	Options  patch.Options
}

// resolve merges environment configuration, the manifest and flags into a
// session. Plugin paths given as arguments replace the manifest's list.
func (f *SessionFlags) resolve(cmd *cobra.Command, root *RootOptions, args []string) (*session, error) {
	m := &Manifest{}
	if f.Manifest != "" {
		var err error
		if m, err = LoadManifest(f.Manifest); err != nil {
			return nil, err
		}
	}
	changed := cmd.Flags().Changed

	game := root.Config.Game
	if m.Game != "" {
		game = m.Game
	}
	if changed("game") {
		game = f.Game
	}
	schemaDir := root.Config.SchemaDir
	if m.SchemaDir != "" {
		schemaDir = m.SchemaDir
	}
	if changed("schema-dir") {
		schemaDir = f.SchemaDir
	}
	workers := root.Config.Workers
	if changed("workers") {
		workers = f.Workers
	}
	if changed("active") {
		m.Active = f.Active
	}
	if changed("preference") {
		m.Preference = f.Preference
	}
	if changed("types") {
		m.Types = f.Types
	}

	paths := m.Plugins
	if len(args) > 0 {
		paths = args
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no plugins given: pass plugin files or a manifest")
	}

	table, err := loadTable(schemaDir)
	if err != nil {
		return nil, err
	}
	if _, err := table.Game(game); err != nil {
		return nil, err
	}

	return &session{
		Manifest: m,
		Paths:    paths,
		Table:    table,
		Options: patch.Options{
			Game:       game,
			Table:      table,
			Workers:    workers,
			Preference: m.Preference,
			Active:     m.Active,
			Types:      m.Types,
			Logger:     root.Logger,
		},
	}, nil
}

func loadTable(dir string) (*schema.Table, error) {
	if dir == "" {
		return schema.Builtin()
	}
	return schema.LoadDir(dir)
}

// load parses the session's plugins and resolves their order.
func (s *session) load(ctx context.Context, metrics *telemetry.Metrics) (*patch.Session, error) {
	opts := s.Options
	opts.Metrics = metrics
	return patch.LoadPlugins(ctx, s.Paths, opts)
}
