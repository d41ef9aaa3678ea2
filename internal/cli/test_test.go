package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const harnessScenarios = "../harness/testdata/scenarios"

func TestTestCommandHarnessScenarios(t *testing.T) {
	stdout, _, err := execute(t, "test", harnessScenarios, "--workers", "2")
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ relev-listmerge")
	assert.Contains(t, stdout, "Test Summary: 7 passed, 0 failed, 7 total")
	assert.Contains(t, stdout, "✓ All scenarios passed")
}

func TestTestCommandFilterJSON(t *testing.T) {
	stdout, _, err := execute(t, "--format", "json", "test", harnessScenarios, "--filter", "relev-*")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Data.Total)
	assert.Equal(t, "relev-listmerge", resp.Data.Scenarios[0].Name)
}

func TestTestCommandMissingDir(t *testing.T) {
	_, _, err := execute(t, "test", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandEmptyDir(t *testing.T) {
	stdout, _, err := execute(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, stdout, "No scenarios found.")
}

func TestTestCommandGoldenUpdate(t *testing.T) {
	dir := t.TempDir()
	data, err := os.ReadFile(filepath.Join(harnessScenarios, "removed-record.yaml"))
	require.NoError(t, err)
	scenario := filepath.Join(dir, "removed-record.yaml")
	require.NoError(t, os.WriteFile(scenario, data, 0o644))

	stdout, _, err := execute(t, "test", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, stdout, "(golden updated)")

	golden := filepath.Join(dir, "golden", "removed-record.golden")
	_, err = os.Stat(golden)
	require.NoError(t, err)

	// The golden directory is not scanned for scenarios.
	stdout, _, err = execute(t, "test", dir)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Test Summary: 1 passed, 0 failed, 1 total")

	require.NoError(t, os.WriteFile(golden, []byte("{}\n"), 0o644))
	stdout, _, err = execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "does not match golden file")
}

func TestTestCommandFailingScenario(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong.yaml"), []byte(`
name: wrong
description: Expects a master the patch does not need
plugins:
  - name: Base.esm
    master: true
    records:
      - type: GLOB
        formid: "00000800"
        subrecords:
          - {sig: EDID, z: Value}
expect:
  masters: [Base.esm]
`), 0o644))

	stdout, _, err := execute(t, "--format", "json", "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeTestFailed, resp.Error.Code)
}
