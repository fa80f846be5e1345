package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contractdev/cdd/internal/coverage"
)

const coverageContract = `contract: payments
requirements:
  - id: R-001
    description: Settles within limits
  - id: R-002
    description: Never double charges
tests:
  - id: T-001
    requirement: R-001
    assert:
      - op: eq
        actual: 1
        expected: 1
`

func TestCoverageCommand(t *testing.T) {
	root := writeTree(t, map[string]string{
		"contracts/payments.yaml": coverageContract,
	})

	stdout, _, err := execute(t, "coverage", filepath.Join(root, "contracts"))
	require.NoError(t, err)

	assert.Contains(t, stdout, "CDD Coverage")
	assert.Contains(t, stdout, "✓ R-001 covered by 1 test(s)")
	assert.Contains(t, stdout, "✗ R-002 uncovered")
	assert.Contains(t, stdout, "Uncovered: 1")
}

func TestCoverageCommandStrict(t *testing.T) {
	root := writeTree(t, map[string]string{
		"contracts/payments.yaml": coverageContract,
	})

	_, _, err := execute(t, "coverage", filepath.Join(root, "contracts"), "--strict")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "1 uncovered requirement(s)")
}

func TestCoverageCommandStrictAllCovered(t *testing.T) {
	root := writeTree(t, map[string]string{
		"contracts/payments.yaml": lintableContract,
	})

	_, _, err := execute(t, "coverage", filepath.Join(root, "contracts"), "--strict")
	require.NoError(t, err)
}

func TestCoverageCommandJSON(t *testing.T) {
	root := writeTree(t, map[string]string{
		"contracts/payments.yaml": coverageContract,
	})

	stdout, _, err := execute(t, "coverage", filepath.Join(root, "contracts"), "--json")
	require.NoError(t, err)

	var cov coverage.Report
	require.NoError(t, json.Unmarshal([]byte(stdout), &cov))
	assert.Equal(t, 2, cov.TotalCount)
	assert.Equal(t, 1, cov.UncoveredCount)
	require.Len(t, cov.Requirements, 2)
	assert.Equal(t, "R-001", cov.Requirements[0].ID)
	assert.Equal(t, 1, cov.Requirements[0].LinkedTests)
}
