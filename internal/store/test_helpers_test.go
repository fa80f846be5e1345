package store

import (
	"path/filepath"
	"testing"

	"github.com/contractdev/cdd/internal/report"
)

// createTestStore creates a fresh on-disk store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestReport builds a minimal completed-run report.
func createTestReport(contract, runID, startedAt string) *report.Report {
	rep := report.New(contract, runID, "1.1", "artifacts/"+runID)
	rep.StartedAt = startedAt
	rep.AddResult(report.TestResult{ID: "T-001", Status: "pass"})
	rep.AddResult(report.TestResult{ID: "T-002", Status: "fail"})
	return rep
}
