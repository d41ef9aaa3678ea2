package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/bashed/internal/conflict"
	"github.com/roach88/bashed/internal/store"
)

// BuildsOptions holds flags for the builds commands.
type BuildsOptions struct {
	*RootOptions
	DB     string
	Limit  int
	Status string
}

// NewBuildsCommand creates the builds command group.
func NewBuildsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BuildsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "builds",
		Short: "Query the build log",
		Long: `List and show patch builds recorded with build --db.

The database defaults to BASHED_DB.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "", "build log database (default BASHED_DB)")

	list := &cobra.Command{
		Use:           "list",
		Short:         "List recent builds",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuildsList(opts, cmd)
		},
	}
	list.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "number of builds to list (0 = all)")

	show := &cobra.Command{
		Use:   "show <build-id|latest>",
		Short: "Show one build with its load order and conflicts",
		Args:  cobra.ExactArgs(1),
		Long: `Show one recorded build.

Examples:
  bashed builds show latest
  bashed builds show 0192f1c4-7d8e-7a41-9c3b-5e2f60a1b7d0 --status conflicting`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuildsShow(opts, args[0], cmd)
		},
	}
	show.Flags().StringVar(&opts.Status, "status", "", "only conflicts with this status (overridden|conflicting)")

	cmd.AddCommand(list, show)
	return cmd
}

func (opts *BuildsOptions) open() (*store.Store, error) {
	path := opts.Config.DB
	if opts.DB != "" {
		path = opts.DB
	}
	if path == "" {
		return nil, NewExitError(ExitCommandError, "no build log: pass --db or set BASHED_DB")
	}
	s, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open build log", err)
	}
	return s, nil
}

func runBuildsList(opts *BuildsOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	db, err := opts.open()
	if err != nil {
		return err
	}
	defer db.Close()

	builds, err := db.ListBuilds(commandContext(cmd), opts.Limit)
	if err != nil {
		return formatter.Fail(ExitFailure, "list builds", err)
	}
	if formatter.JSON() {
		return formatter.Success(builds)
	}
	if len(builds) == 0 {
		fmt.Fprintln(formatter.Writer, "No builds recorded.")
		return nil
	}
	for _, b := range builds {
		fmt.Fprintln(formatter.Writer, buildLine(b))
	}
	return nil
}

func runBuildsShow(opts *BuildsOptions, id string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	status := conflict.Status(opts.Status)
	switch status {
	case "", conflict.Overridden, conflict.Conflicting:
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid status %q", opts.Status))
	}

	db, err := opts.open()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := commandContext(cmd)
	b, err := db.GetBuild(ctx, id)
	if err != nil {
		code := ExitFailure
		if errors.Is(err, store.ErrBuildNotFound) {
			code = ExitCommandError
		}
		return formatter.Fail(code, "get build", err)
	}
	if status != "" {
		if b.Conflicts, err = db.Conflicts(ctx, b.ID, status); err != nil {
			return formatter.Fail(ExitFailure, "get conflicts", err)
		}
	}

	if formatter.JSON() {
		return formatter.encode(CLIResponse{Status: "ok", Data: b, BuildID: b.ID})
	}
	w := formatter.Writer
	fmt.Fprintln(w, buildLine(b))
	if b.Error != "" {
		fmt.Fprintf(w, "  Error:   %s\n", b.Error)
	}
	if b.Dest != "" {
		fmt.Fprintf(w, "  Output:  %s (%d bytes, sha256 %s)\n", b.Dest, b.Size, b.SHA256)
	}
	var order []string
	for _, p := range b.Plugins {
		name := p.Name
		if p.Active {
			name = "*" + name
		}
		order = append(order, name)
	}
	fmt.Fprintf(w, "  Order:   %s\n", strings.Join(order, ", "))
	fmt.Fprintf(w, "  Objects: %d merged, %d changed, %d emitted\n", b.Stats.Merged, b.Stats.Changed, b.Stats.Emitted)
	for _, c := range b.Conflicts {
		fmt.Fprintf(w, "  %s %s [%s] winner %s\n", c.Type, c.FormID, c.Status, c.Winner)
		for _, f := range c.Fields {
			fmt.Fprintf(w, "      %s %s %s\n", f.Tag, f.Status, strings.Join(f.Plugins, ", "))
		}
	}
	return nil
}

func buildLine(b store.Build) string {
	return fmt.Sprintf("#%d %s %s %s %s %s", b.Seq, b.ID, b.StartedAt.Format("2006-01-02 15:04:05"), b.Status, b.Game, b.Name)
}
