package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/bashed/internal/patch"
	"github.com/roach88/bashed/internal/record"
)

// OrderOptions holds flags for the order command.
type OrderOptions struct {
	*RootOptions
	Session SessionFlags
}

// OrderEntry is one plugin of a resolved load order.
type OrderEntry struct {
	Position int      `json:"position"`
	Index    *int     `json:"index,omitempty"` // active index, the FormID high byte
	Name     string   `json:"name"`
	Active   bool     `json:"active"`
	Master   bool     `json:"master"`
	Masters  []string `json:"masters,omitempty"`
}

// OrderResult is the output of the order command.
type OrderResult struct {
	Plugins []OrderEntry `json:"plugins"`
	Skipped []string     `json:"skipped,omitempty"`
}

// NewOrderCommand creates the order command.
func NewOrderCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OrderOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "order [plugin files...]",
		Short: "Resolve and print the load order",
		Long: `Resolve the load order of a plugin set.

Masters always load before the plugins that depend on them. Ties follow
the --preference list, then master-flagged files before others, then
name. Missing and cyclic masters are reported as errors.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrder(opts, args, cmd)
		},
	}

	opts.Session.register(cmd.Flags())

	return cmd
}

func runOrder(opts *OrderOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := commandContext(cmd)

	sess, err := opts.Session.resolve(cmd, opts.RootOptions, args)
	if err != nil {
		_ = formatter.Error(ErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "resolve session", err)
	}
	// Only headers matter here.
	sess.Options.Types = []record.Signature{record.Sig("TES4")}
	s, err := sess.load(ctx, nil)
	if err != nil {
		return formatter.Fail(ExitFailure, "resolve load order", err)
	}

	result := orderResult(s)
	if formatter.JSON() {
		return formatter.Success(result)
	}
	w := formatter.Writer
	for _, e := range result.Plugins {
		idx := "--"
		if e.Index != nil {
			idx = fmt.Sprintf("%02X", *e.Index)
		}
		mark := " "
		if e.Active {
			mark = "*"
		}
		line := fmt.Sprintf("%s %s %s", mark, idx, e.Name)
		if len(e.Masters) > 0 {
			line += " (" + strings.Join(e.Masters, ", ") + ")"
		}
		fmt.Fprintln(w, line)
	}
	for _, name := range result.Skipped {
		fmt.Fprintf(w, "! %s skipped (malformed)\n", name)
	}
	return nil
}

func orderResult(s *patch.Session) OrderResult {
	result := OrderResult{Plugins: make([]OrderEntry, 0, s.Order.Len())}
	for i, name := range s.Order.Names() {
		e := OrderEntry{Position: i, Name: name, Active: s.Order.IsActive(name)}
		if idx, ok := s.Order.ActiveIndex(name); ok {
			e.Index = &idx
		}
		if p, ok := s.Plugin(name); ok {
			e.Master = p.IsMaster()
			e.Masters = p.MasterNames()
		}
		result.Plugins = append(result.Plugins, e)
	}
	for _, sk := range s.Skipped {
		result.Skipped = append(result.Skipped, sk.Name)
	}
	return result
}
