package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bashed/internal/conflict"
	"github.com/roach88/bashed/internal/record"
)

func TestOrderCommand(t *testing.T) {
	paths := writePlugins(t, t.TempDir())

	// Reversed on the command line; masters still load first.
	stdout, _, err := execute(t, "order", paths[2], paths[1], paths[0])
	require.NoError(t, err)
	assert.Equal(t, []string{
		"* 00 Base.esm",
		"* 01 ModA.esp (Base.esm)",
		"* 02 ModB.esp (Base.esm)",
	}, strings.Split(strings.TrimSpace(stdout), "\n"))
}

func TestOrderCommandPreferenceAndActive(t *testing.T) {
	paths := writePlugins(t, t.TempDir())

	stdout, _, err := execute(t, "--format", "json", "order", paths[0], paths[1], paths[2],
		"--preference", "Base.esm,ModB.esp,ModA.esp", "--active", "Base.esm,ModA.esp")
	require.NoError(t, err)

	var resp struct {
		Data OrderResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.Len(t, resp.Data.Plugins, 3)

	modB := resp.Data.Plugins[1]
	assert.Equal(t, "ModB.esp", modB.Name)
	assert.False(t, modB.Active)
	assert.Nil(t, modB.Index)

	modA := resp.Data.Plugins[2]
	assert.Equal(t, "ModA.esp", modA.Name)
	require.NotNil(t, modA.Index)
	assert.Equal(t, 1, *modA.Index)
	assert.True(t, resp.Data.Plugins[0].Master)
}

func TestOrderCommandSkipsMalformed(t *testing.T) {
	dir := t.TempDir()
	paths := writePlugins(t, dir)
	broken := filepath.Join(dir, "Broken.esp")
	require.NoError(t, os.WriteFile(broken, []byte("WEAP"), 0o644))

	stdout, _, err := execute(t, "order", paths[0], broken)
	require.NoError(t, err)
	assert.Contains(t, stdout, "* 00 Base.esm")
	assert.Contains(t, stdout, "! Broken.esp skipped (malformed)")
}

func TestInspectCommand(t *testing.T) {
	paths := writePlugins(t, t.TempDir())

	stdout, _, err := execute(t, "--format", "json", "inspect", paths[1])
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   PluginInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	info := resp.Data
	assert.Equal(t, "ModA.esp", info.Name)
	assert.False(t, info.Master)
	assert.Equal(t, []MasterInfo{{Name: "Base.esm", Size: 0}}, info.Masters)
	assert.Equal(t, []string{"Relev"}, info.Tags)
	assert.Equal(t, 1, info.Records)
	assert.Equal(t, []GroupSummary{{Type: record.Sig("LVLI"), Records: 1}}, info.Groups)

	stdout, _, err = execute(t, "inspect", paths[0])
	require.NoError(t, err)
	assert.Contains(t, stdout, "Base.esm (")
	assert.Contains(t, stdout, "Flags:       master")
	assert.Contains(t, stdout, "Author:      tester")
	assert.Contains(t, stdout, "LVLI 1")
}

func TestInspectCommandMalformed(t *testing.T) {
	broken := filepath.Join(t.TempDir(), "Broken.esp")
	require.NoError(t, os.WriteFile(broken, []byte("WEAP"), 0o644))

	stdout, _, err := execute(t, "--format", "json", "inspect", broken)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, ErrCodeFormat)
}

func TestConflictsCommand(t *testing.T) {
	paths := writePlugins(t, t.TempDir())

	stdout, _, err := execute(t, append([]string{"--format", "json", "conflicts"}, paths...)...)
	require.NoError(t, err)

	var resp struct {
		Data ConflictsResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, conflict.Summary{Objects: 1, Conflicting: 1}, resp.Data.Summary)
	require.Len(t, resp.Data.Objects, 1)
	r := resp.Data.Objects[0]
	assert.Equal(t, record.FormID(0x800), r.Key)
	assert.Equal(t, "ModB.esp", r.Winner)

	stdout, _, err = execute(t, append([]string{"conflicts", "--status", "overridden"}, paths...)...)
	require.NoError(t, err)
	assert.NotContains(t, stdout, "LVLI 00000800")
	assert.Contains(t, stdout, "1 objects: 1 conflicting")

	stdout, _, err = execute(t, append([]string{"conflicts"}, paths...)...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "LVLI 00000800 LItem [conflicting] winner ModB.esp")
	assert.Contains(t, stdout, "LVLO conflicting: ModA.esp, ModB.esp")
}

func TestConflictsCommandInvalidStatus(t *testing.T) {
	_, _, err := execute(t, "conflicts", "--status", "bad", "Base.esm")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestBuildsCommandWithoutDatabase(t *testing.T) {
	_, _, err := execute(t, "builds", "list")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestBuildsShowNotFound(t *testing.T) {
	db := filepath.Join(t.TempDir(), "builds.db")

	stdout, _, err := execute(t, "builds", "list", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, stdout, "No builds recorded.")

	stdout, _, err = execute(t, "--format", "json", "builds", "show", "latest", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, ErrCodeNotFound)
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "policies.cue"), []byte(`
package tables

policies: KYWD: [{tag: "Colors", kind: "override", subrecords: ["CNAM"]}]
`), 0o644))

	stdout, _, err := execute(t, "validate", dir)
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ Schema valid")

	stdout, _, err = execute(t, "--format", "json", "validate", dir)
	require.NoError(t, err)
	var resp struct {
		Data ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.True(t, resp.Data.Valid)
	assert.Contains(t, resp.Data.Games, "skyrim")
}

func TestValidateCommandInvalidPolicy(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "policies.cue"), []byte(`
package tables

policies: KYWD: [{tag: "Colors", subrecords: ["CNAM"]}]
`), 0o644))

	stdout, _, err := execute(t, "--format", "json", "validate", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.Len(t, resp.Data.Errors, 1)
	assert.Equal(t, ErrCodeSchema, resp.Data.Errors[0].Code)
	assert.Contains(t, resp.Data.Errors[0].Message, "kind is required")
}

func TestValidateCommandMissingDir(t *testing.T) {
	_, _, err := execute(t, "validate", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
