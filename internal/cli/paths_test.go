package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contractdev/cdd/internal/paths"
)

const pathsContract = `contract: layout
tests:
  - id: T-001
    type: static
    files:
      - src/main.go
    assert:
      - op: exists
        actual: $.files
`

func TestPathsCommandPass(t *testing.T) {
	root := writeTree(t, map[string]string{
		"contracts/layout.yaml": pathsContract,
		"contracts/src/main.go": "package main\n",
	})

	stdout, _, err := execute(t, "paths", filepath.Join(root, "contracts"))
	require.NoError(t, err)

	assert.Contains(t, stdout, "Path Verification: layout")
	assert.Contains(t, stdout, "✓ 1 paths OK:")
	assert.Contains(t, stdout, "RESULT: PASS (1 files)")
	assert.Contains(t, stdout, "ALL CONTRACTS PASSED PATH VERIFICATION")
}

func TestPathsCommandFailure(t *testing.T) {
	root := writeTree(t, map[string]string{
		"contracts/layout.yaml": pathsContract,
		"src/main.go":           "package main\n",
	})

	stdout, _, err := execute(t, "paths", filepath.Join(root, "contracts"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "1 path(s) missing")

	assert.Contains(t, stdout, "✗ 1 paths FAILED:")
	assert.Contains(t, stdout, "└─ Did you mean: ../src/main.go ?")
	assert.Contains(t, stdout, "RESULT: FAIL (1 missing, 0 found)")
	assert.Contains(t, stdout, "PATH VERIFICATION FAILED - Fix paths before running cdd test")
}

func TestPathsCommandTargetNotFound(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent")
	_, _, err := execute(t, "paths", missing)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "Path not found: "+missing)
}

func TestPathsCommandJSON(t *testing.T) {
	root := writeTree(t, map[string]string{
		"contracts/layout.yaml": pathsContract,
		"contracts/src/main.go": "package main\n",
	})

	stdout, _, err := execute(t, "paths", filepath.Join(root, "contracts"), "--json")
	require.NoError(t, err)

	var result paths.Report
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	assert.True(t, result.OK)
	assert.Equal(t, 1, result.ContractsChecked)
	assert.Equal(t, 1, result.PassedPaths)
}
