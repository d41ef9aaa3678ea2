package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/bashed/internal/conflict"
	"github.com/roach88/bashed/internal/merge"
	"github.com/roach88/bashed/internal/patch"
	"github.com/roach88/bashed/internal/publish"
	"github.com/roach88/bashed/internal/store"
	"github.com/roach88/bashed/internal/telemetry"
)

// BuildOptions holds flags for the build command.
type BuildOptions struct {
	*RootOptions
	Session SessionFlags

	Tags             tagsValue
	DescriptionTags  bool
	IncludeUnchanged bool
	Strict           bool

	Output      string
	Name        string
	Author      string
	Description string
	DB          string
}

// BuildResult is the output of a successful build.
type BuildResult struct {
	Output   patch.Output     `json:"output"`
	Masters  []string         `json:"masters"`
	Order    []string         `json:"order"`
	Skipped  []string         `json:"skipped,omitempty"`
	Stats    patch.Stats      `json:"stats"`
	Summary  conflict.Summary `json:"summary"`
	BuildID  string           `json:"build_id,omitempty"`
	BuildSeq int64            `json:"build_seq,omitempty"`
}

// NewBuildCommand creates the build command.
func NewBuildCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BuildOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "build [plugin files...]",
		Short: "Build a Bashed Patch",
		Long: `Build a Bashed Patch from a set of plugins.

Plugins are parsed, ordered by their master dependencies, and every record
the tagged plugins changed is merged into one patch plugin. The patch
references only the masters its records need.

Destinations may be local paths or s3://bucket/key URLs.

Examples:
  bashed build Skyrim.esm ModA.esp ModB.esp --tags ModA.esp=Relev --tags ModB.esp=Delev
  bashed build --manifest session.yaml --output "out/Bashed Patch, 0.esp"
  bashed build --manifest session.yaml --output s3://patches/latest.esp --db builds.db`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(opts, args, cmd)
		},
	}

	opts.Session.register(cmd.Flags())
	cmd.Flags().Var(&opts.Tags, "tags", "plugin tags, e.g. ModA.esp=Relev,Delev (repeatable)")
	cmd.Flags().BoolVar(&opts.DescriptionTags, "description-tags", false, "also read {{BASH:...}} tags from plugin descriptions")
	cmd.Flags().BoolVar(&opts.IncludeUnchanged, "include-unchanged", false, "emit objects the merge left equal to the winner")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "fail on record types without a merge policy")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "patch destination: file, directory or s3:// URL (default: ./<name>)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "patch file name (default \""+patch.DefaultName+"\")")
	cmd.Flags().StringVar(&opts.Author, "author", "", "patch header author")
	cmd.Flags().StringVar(&opts.Description, "description", "", "patch header description")
	cmd.Flags().StringVar(&opts.DB, "db", "", "record the build in this SQLite database (default BASHED_DB)")

	return cmd
}

func runBuild(opts *BuildOptions, args []string, cmd *cobra.Command) (err error) {
	formatter := opts.formatter(cmd)
	ctx := commandContext(cmd)

	sess, err := opts.Session.resolve(cmd, opts.RootOptions, args)
	if err != nil {
		_ = formatter.Error(ErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "resolve session", err)
	}
	pol, err := opts.policies(cmd, sess)
	if err != nil {
		_ = formatter.Error(ErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "merge policies", err)
	}
	dest := opts.destination(cmd, sess.Manifest, pol.Name)

	shutdown, err := telemetry.Setup(ctx, "bashed", opts.Config.OTelEndpoint)
	if err != nil {
		return WrapExitError(ExitCommandError, "tracing setup", err)
	}
	defer func() {
		if serr := shutdown(context.WithoutCancel(ctx)); serr != nil {
			opts.Logger.Warn("tracing shutdown", "error", serr)
		}
	}()
	metrics := telemetry.NewMetrics()
	defer opts.writeMetrics(metrics)

	db, err := opts.openStore()
	if err != nil {
		return WrapExitError(ExitCommandError, "open build log", err)
	}
	if db != nil {
		defer db.Close()
	}
	name := pol.Name
	if name == "" {
		name = patch.DefaultName
	}
	recordFailure := func(s *patch.Session, cause error) {
		if db == nil {
			return
		}
		if _, err := db.RecordBuild(ctx, store.FailedBuild(sess.Options.Game, name, s, cause)); err != nil {
			opts.Logger.Warn("record failed build", "error", err)
		}
	}

	formatter.VerboseLog("Loading %d plugin(s)", len(sess.Paths))
	s, err := sess.load(ctx, metrics)
	if err != nil {
		recordFailure(nil, err)
		return formatter.Fail(ExitFailure, "load plugins", err)
	}
	for _, sk := range s.Skipped {
		formatter.VerboseLog("Skipped %s: %v", sk.Name, sk.Err)
	}

	bp, err := patch.BuildPatch(ctx, s, pol)
	if err != nil {
		recordFailure(s, err)
		return formatter.Fail(ExitFailure, "build patch", err)
	}

	pub, err := opts.publisher(ctx, dest)
	if err != nil {
		return WrapExitError(ExitCommandError, "publisher", err)
	}
	out, err := patch.WritePatch(ctx, bp, dest, pub)
	if err != nil {
		recordFailure(s, err)
		return formatter.Fail(ExitFailure, "write patch", err)
	}

	result := BuildResult{
		Output:  out,
		Masters: masterNames(bp),
		Order:   s.Order.Active(),
		Stats:   bp.Stats,
		Summary: bp.Summary,
	}
	for _, sk := range s.Skipped {
		result.Skipped = append(result.Skipped, sk.Name)
	}
	if db != nil {
		b, err := db.RecordBuild(ctx, store.NewBuild(sess.Options.Game, s, bp, out))
		if err != nil {
			return WrapExitError(ExitFailure, "record build", err)
		}
		result.BuildID = b.ID
		result.BuildSeq = b.Seq
	}

	if formatter.JSON() {
		return formatter.encode(CLIResponse{Status: "ok", Data: result, BuildID: result.BuildID})
	}
	w := formatter.Writer
	fmt.Fprintf(w, "✓ Wrote %s (%d bytes, sha256 %s)\n", out.Dest, out.Size, out.SHA256)
	fmt.Fprintf(w, "  Masters:   %s\n", strings.Join(result.Masters, ", "))
	fmt.Fprintf(w, "  Plugins:   %d active, %d skipped\n", len(result.Order), len(result.Skipped))
	fmt.Fprintf(w, "  Objects:   %d merged, %d changed, %d emitted\n", bp.Stats.Merged, bp.Stats.Changed, bp.Stats.Emitted)
	fmt.Fprintf(w, "  Conflicts: %d conflicting, %d overridden\n", bp.Summary.Conflicting, bp.Summary.Overridden)
	if result.BuildID != "" {
		fmt.Fprintf(w, "  Build:     #%d %s\n", result.BuildSeq, result.BuildID)
	}
	return nil
}

// policies merges manifest and flag settings into patch policies.
func (opts *BuildOptions) policies(cmd *cobra.Command, sess *session) (patch.Policies, error) {
	m := sess.Manifest
	changed := cmd.Flags().Changed

	pol := patch.Policies{
		Tags:             merge.NewTags(m.Tags),
		DescriptionTags:  m.DescriptionTags,
		Types:            m.Types,
		IncludeUnchanged: m.IncludeUnchanged,
		Name:             m.Name,
		Author:           m.Author,
		Description:      m.Description,
	}
	opts.Tags.apply(pol.Tags)
	if changed("description-tags") {
		pol.DescriptionTags = opts.DescriptionTags
	}
	if changed("types") {
		pol.Types = opts.Session.Types
	}
	if changed("include-unchanged") {
		pol.IncludeUnchanged = opts.IncludeUnchanged
	}
	if changed("name") {
		pol.Name = opts.Name
	}
	if changed("author") {
		pol.Author = opts.Author
	}
	if changed("description") {
		pol.Description = opts.Description
	}

	strict := m.Strict
	if changed("strict") {
		strict = opts.Strict
	}
	if strict {
		reg, err := merge.FromTable(sess.Table, merge.WithoutFallback())
		if err != nil {
			return pol, err
		}
		pol.Registry = reg
	}
	return pol, nil
}

// destination returns where the patch goes. A directory destination gets
// the patch name appended.
func (opts *BuildOptions) destination(cmd *cobra.Command, m *Manifest, name string) string {
	if name == "" {
		name = patch.DefaultName
	}
	dest := m.Output
	if cmd.Flags().Changed("output") {
		dest = opts.Output
	}
	if dest == "" {
		return name
	}
	if publish.Scheme(dest) != "" {
		if strings.HasSuffix(dest, "/") {
			return dest + name
		}
		return dest
	}
	if strings.HasSuffix(dest, string(os.PathSeparator)) || isDir(dest) {
		return filepath.Join(dest, name)
	}
	return dest
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// publisher returns a mux for dest. The S3 client is only configured when
// dest needs it.
func (opts *BuildOptions) publisher(ctx context.Context, dest string) (*publish.Mux, error) {
	var muxOpts []publish.MuxOption
	if publish.Scheme(dest) == "s3" {
		p, err := publish.NewS3(ctx, opts.Config.S3())
		if err != nil {
			return nil, err
		}
		muxOpts = append(muxOpts, publish.WithScheme("s3", p))
	}
	return publish.NewMux(muxOpts...), nil
}

func (opts *BuildOptions) openStore() (*store.Store, error) {
	path := opts.Config.DB
	if opts.DB != "" {
		path = opts.DB
	}
	if path == "" {
		return nil, nil
	}
	return store.Open(path)
}

func (opts *BuildOptions) writeMetrics(m *telemetry.Metrics) {
	if opts.Config.MetricsFile == "" {
		return
	}
	if err := m.WriteTextfile(opts.Config.MetricsFile); err != nil {
		opts.Logger.Warn("write metrics", "path", opts.Config.MetricsFile, "error", err)
	}
}

func masterNames(bp *patch.BashedPatch) []string {
	out := make([]string, len(bp.Masters))
	for i, m := range bp.Masters {
		out[i] = m.Name
	}
	return out
}
