package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/bashed/internal/conflict"
	"github.com/roach88/bashed/internal/patch"
)

// ConflictsOptions holds flags for the conflicts command.
type ConflictsOptions struct {
	*RootOptions
	Session SessionFlags
	Status  string
}

// ConflictsResult is the output of the conflicts command.
type ConflictsResult struct {
	Summary conflict.Summary   `json:"summary"`
	Objects []*conflict.Report `json:"objects"`
}

// NewConflictsCommand creates the conflicts command.
func NewConflictsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConflictsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "conflicts [plugin files...]",
		Short: "Report how plugins override each object",
		Long: `Classify every subrecord of every object the active plugins define.

A field is overridden when later plugins agree on one new value and
conflicting when they disagree. Nothing is merged or written.

Examples:
  bashed conflicts Skyrim.esm ModA.esp ModB.esp
  bashed conflicts --manifest session.yaml --status conflicting --types LVLI`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConflicts(opts, args, cmd)
		},
	}

	opts.Session.register(cmd.Flags())
	cmd.Flags().StringVar(&opts.Status, "status", "", "only objects with this status (overridden|conflicting|unchanged); default: all changed objects")

	return cmd
}

func runConflicts(opts *ConflictsOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := commandContext(cmd)

	want := conflict.Status(opts.Status)
	switch want {
	case "", conflict.Unchanged, conflict.Overridden, conflict.Conflicting:
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid status %q", opts.Status))
	}

	sess, err := opts.Session.resolve(cmd, opts.RootOptions, args)
	if err != nil {
		_ = formatter.Error(ErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "resolve session", err)
	}
	s, err := sess.load(ctx, nil)
	if err != nil {
		return formatter.Fail(ExitFailure, "load plugins", err)
	}
	reports, err := patch.DetectConflicts(ctx, s)
	if err != nil {
		return formatter.Fail(ExitFailure, "detect conflicts", err)
	}

	result := ConflictsResult{Summary: conflict.Summarize(reports), Objects: []*conflict.Report{}}
	for _, r := range reports {
		if keepReport(r, want) {
			result.Objects = append(result.Objects, r)
		}
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	w := formatter.Writer
	for _, r := range result.Objects {
		status := string(r.Status())
		if r.Removed {
			status = "removed"
		}
		fmt.Fprintf(w, "%s %s", r.Type, r.Key)
		if r.EditorID != "" {
			fmt.Fprintf(w, " %s", r.EditorID)
		}
		fmt.Fprintf(w, " [%s] winner %s\n", status, r.Winner)
		for _, f := range r.Fields {
			switch f.Status {
			case conflict.Overridden:
				fmt.Fprintf(w, "    %s overridden by %s\n", f.Tag, f.By)
			case conflict.Conflicting:
				fmt.Fprintf(w, "    %s conflicting: %s\n", f.Tag, strings.Join(f.Plugins, ", "))
			}
		}
	}
	sum := result.Summary
	fmt.Fprintf(w, "\n%d objects: %d conflicting, %d overridden, %d unchanged, %d removed\n",
		sum.Objects, sum.Conflicting, sum.Overridden, sum.Unchanged, sum.Removed)
	return nil
}

// keepReport applies the status filter. Without one, objects no plugin
// changed are left out.
func keepReport(r *conflict.Report, want conflict.Status) bool {
	if want == "" {
		return r.Removed || r.Status() != conflict.Unchanged
	}
	return !r.Removed && r.Status() == want
}
