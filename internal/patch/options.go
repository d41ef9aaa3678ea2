package patch

import (
	"log/slog"
	"runtime"

	"github.com/roach88/bashed/internal/record"
	"github.com/roach88/bashed/internal/schema"
	"github.com/roach88/bashed/internal/telemetry"
)

// DefaultGame is the game profile used when Options.Game is empty.
const DefaultGame = "skyrim"

// Options configures plugin loading.
type Options struct {
	// Game names the profile of the schema table. Defaults to DefaultGame.
	Game string

	// Table is the schema table. Defaults to the builtin table.
	Table *schema.Table

	// Workers bounds parallel parsing and merging. Defaults to GOMAXPROCS.
	Workers int

	// Preference breaks load order ties, typically the previous order.
	Preference []string

	// Active restricts the active set. Nil activates every loaded plugin.
	Active []string

	// Types restricts interpretation to top-level groups of these record
	// types. Other groups are carried as opaque bytes.
	Types []record.Signature

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

func (o Options) withDefaults() (Options, error) {
	if o.Game == "" {
		o.Game = DefaultGame
	}
	if o.Table == nil {
		t, err := schema.Builtin()
		if err != nil {
			return o, err
		}
		o.Table = t
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o, nil
}
