package cli

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contractdev/cdd/internal/report"
	"github.com/contractdev/cdd/internal/store"
)

// seedRun records one run in the history database under the current
// working directory.
func seedRun(t *testing.T, rep *report.Report) {
	t.Helper()
	st, err := store.Open(store.DefaultPath("."))
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.RecordRun(context.Background(), rep))
}

func passedReport(runID, startedAt string) *report.Report {
	rep := report.New("demo", runID, "1.1", "artifacts/"+runID)
	rep.StartedAt = startedAt
	rep.AddResult(report.TestResult{ID: "T-001", Status: "pass"})
	return rep
}

func TestRunsListEmpty(t *testing.T) {
	t.Chdir(t.TempDir())

	stdout, _, err := execute(t, "runs", "list")
	require.NoError(t, err)
	assert.Equal(t, "No runs recorded.\n", stdout)
}

func TestRunsList(t *testing.T) {
	t.Chdir(t.TempDir())
	seedRun(t, passedReport("run_00aa11bb22", "2026-02-01T10:00:00Z"))

	stdout, _, err := execute(t, "runs", "list")
	require.NoError(t, err)

	assert.Contains(t, stdout, "✓ run_00aa11bb22")
	assert.Contains(t, stdout, "demo")
	assert.Contains(t, stdout, "1 passed, 0 failed, 0 skipped, 0 errored")
}

func TestRunsListLimit(t *testing.T) {
	t.Chdir(t.TempDir())
	seedRun(t, passedReport("run_0000000001", "2026-02-01T10:00:00Z"))
	seedRun(t, passedReport("run_0000000002", "2026-02-02T10:00:00Z"))

	stdout, _, err := execute(t, "runs", "list", "--limit", "1")
	require.NoError(t, err)

	assert.Contains(t, stdout, "run_0000000002", "newest run wins the limit")
	assert.NotContains(t, stdout, "run_0000000001")
}

func TestRunsListJSON(t *testing.T) {
	t.Chdir(t.TempDir())
	seedRun(t, passedReport("run_00aa11bb22", "2026-02-01T10:00:00Z"))

	stdout, _, err := execute(t, "--format", "json", "runs", "list")
	require.NoError(t, err)

	var runs []store.Run
	require.NoError(t, json.Unmarshal([]byte(stdout), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "run_00aa11bb22", runs[0].RunID)
	assert.Equal(t, "demo", runs[0].Contract)
	assert.Equal(t, 1, runs[0].Passed)
}

func TestRunsShow(t *testing.T) {
	t.Chdir(t.TempDir())
	seedRun(t, passedReport("run_00aa11bb22", "2026-02-01T10:00:00Z"))

	stdout, _, err := execute(t, "runs", "show", "run_00aa11bb22")
	require.NoError(t, err)

	var rep report.Report
	require.NoError(t, json.Unmarshal([]byte(stdout), &rep))
	assert.Equal(t, "run_00aa11bb22", rep.RunID)
	assert.Equal(t, "demo", rep.Contract)
	require.Len(t, rep.Results, 1)
	assert.Equal(t, "T-001", rep.Results[0].ID)
}

func TestRunsShowUnknown(t *testing.T) {
	t.Chdir(t.TempDir())

	_, _, err := execute(t, "runs", "show", "run_ffffffff00")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no run with id run_ffffffff00")
}

func TestRunsShowVerify(t *testing.T) {
	t.Chdir(t.TempDir())
	seedRun(t, passedReport("run_00aa11bb22", "2026-02-01T10:00:00Z"))

	stdout, _, err := execute(t, "runs", "show", "run_00aa11bb22", "--verify")
	require.NoError(t, err)

	var rep report.Report
	require.NoError(t, json.Unmarshal([]byte(stdout), &rep))
	assert.Equal(t, "run_00aa11bb22", rep.RunID)
}

func TestRunsShowVerifyViolations(t *testing.T) {
	t.Chdir(t.TempDir())
	bad := passedReport("run_00aa11bb22", "2026-02-01T10:00:00Z")
	bad.SchemaVersion = "bogus"
	seedRun(t, bad)

	stdout, _, err := execute(t, "runs", "show", "run_00aa11bb22", "--verify")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "schema violation(s)")
	assert.Contains(t, stdout, "✗ schema_version")
}
