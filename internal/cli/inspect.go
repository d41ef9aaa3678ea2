package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/bashed/internal/codec"
	"github.com/roach88/bashed/internal/merge"
	"github.com/roach88/bashed/internal/record"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	Game      string
	SchemaDir string
}

// PluginInfo describes one plugin file.
type PluginInfo struct {
	Name        string         `json:"name"`
	Size        int64          `json:"size"`
	Version     float32        `json:"version"`
	Master      bool           `json:"master"`
	Light       bool           `json:"light"`
	Author      string         `json:"author,omitempty"`
	Description string         `json:"description,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Masters     []MasterInfo   `json:"masters"`
	Records     int            `json:"records"`
	Deleted     int            `json:"deleted"`
	Groups      []GroupSummary `json:"groups"`
}

// MasterInfo is one entry of a master list.
type MasterInfo struct {
	Name string `json:"name"`
	Size uint64 `json:"size"`
}

// GroupSummary counts the records of one top-level group.
type GroupSummary struct {
	Type    record.Signature `json:"type"`
	Records int              `json:"records"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect <plugin file>",
		Short: "Show a plugin's header and record counts",
		Long: `Parse one plugin and print its header: format version, flags,
author, description, master list, and the records in each top-level group.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Game, "game", "", "game profile (default BASHED_GAME or skyrim)")
	cmd.Flags().StringVar(&opts.SchemaDir, "schema-dir", "", "CUE schema directory overlaid on the builtin table")

	return cmd
}

func runInspect(opts *InspectOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	game := opts.Config.Game
	if opts.Game != "" {
		game = opts.Game
	}
	schemaDir := opts.Config.SchemaDir
	if opts.SchemaDir != "" {
		schemaDir = opts.SchemaDir
	}
	table, err := loadTable(schemaDir)
	if err != nil {
		return formatter.Fail(ExitCommandError, "load schema", err)
	}
	c, err := codec.New(table, game)
	if err != nil {
		return formatter.Fail(ExitCommandError, "codec", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, "read plugin", err)
	}
	p, err := c.Parse(filepath.Base(path), data)
	if err != nil {
		return formatter.Fail(ExitFailure, "parse plugin", err)
	}

	info, err := describePlugin(p)
	if err != nil {
		return formatter.Fail(ExitFailure, "read records", err)
	}
	if formatter.JSON() {
		return formatter.Success(info)
	}
	printPluginInfo(formatter, info)
	return nil
}

func describePlugin(p *record.Plugin) (PluginInfo, error) {
	info := PluginInfo{
		Name:        p.Name,
		Size:        p.Size,
		Version:     p.Info.Version,
		Master:      p.IsMaster(),
		Light:       p.IsLight(),
		Author:      p.Info.Author,
		Description: p.Info.Description,
		Tags:        merge.DescriptionTags(p.Info.Description),
		Masters:     make([]MasterInfo, len(p.Info.Masters)),
	}
	for i, m := range p.Info.Masters {
		info.Masters[i] = MasterInfo{Name: m.Name, Size: m.Size}
	}

	counts := make(map[record.Signature]int)
	err := p.Walk(func(path []*record.Group, r *record.Record) error {
		info.Records++
		if r.Deleted() {
			info.Deleted++
		}
		counts[path[0].LabelSig()]++
		return nil
	})
	if err != nil {
		return info, err
	}
	for _, sig := range p.TopGroupOrder() {
		info.Groups = append(info.Groups, GroupSummary{Type: sig, Records: counts[sig]})
	}
	return info, nil
}

func printPluginInfo(f *OutputFormatter, info PluginInfo) {
	w := f.Writer
	var flags []string
	if info.Master {
		flags = append(flags, "master")
	}
	if info.Light {
		flags = append(flags, "light")
	}
	if len(flags) == 0 {
		flags = append(flags, "none")
	}

	fmt.Fprintf(w, "%s (%d bytes)\n", info.Name, info.Size)
	fmt.Fprintf(w, "  Version:     %.2f\n", info.Version)
	fmt.Fprintf(w, "  Flags:       %s\n", strings.Join(flags, ", "))
	if info.Author != "" {
		fmt.Fprintf(w, "  Author:      %s\n", info.Author)
	}
	if info.Description != "" {
		fmt.Fprintf(w, "  Description: %s\n", info.Description)
	}
	if len(info.Tags) > 0 {
		fmt.Fprintf(w, "  Tags:        %s\n", strings.Join(info.Tags, ", "))
	}
	fmt.Fprintf(w, "  Masters:     %d\n", len(info.Masters))
	for i, m := range info.Masters {
		fmt.Fprintf(w, "    [%02X] %s\n", i, m.Name)
	}
	fmt.Fprintf(w, "  Records:     %d (%d deleted)\n", info.Records, info.Deleted)
	for _, g := range info.Groups {
		fmt.Fprintf(w, "    %s %d\n", g.Type, g.Records)
	}
}
