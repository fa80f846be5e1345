// Package report defines the run report written after every contract run:
// its shape, the summary bookkeeping, and validation against the embedded
// JSON schema that downstream tooling consumes.
package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/contractdev/cdd/internal/assertion"
	"github.com/contractdev/cdd/internal/spec"
)

// Warning is a coded run condition: non-fatal ones land in the report's
// warnings list, fatal ones (version gate failures) in errors.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Summary counts test outcomes by status.
type Summary struct {
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Error   int `json:"error"`
}

// TestResult is one test's outcome. Requirement and Type mirror the
// contract document, so they stay loosely typed: a requirement may be one
// id or a list, and synthetic results carry no type at all.
type TestResult struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Requirement  any                `json:"requirement"`
	Type         any                `json:"type"`
	Status       string             `json:"status"`
	Message      string             `json:"message"`
	Assertions   []assertion.Result `json:"assertions"`
	Steps        []map[string]any   `json:"steps"`
	DurationMS   *int               `json:"duration_ms,omitempty"`
	FilesScanned *int               `json:"files_scanned,omitempty"`
}

// Report is a full run report.
type Report struct {
	SchemaVersion string       `json:"schema_version"`
	ReportType    string       `json:"report_type"`
	Contract      string       `json:"contract"`
	RunID         string       `json:"run_id"`
	ToolVersion   string       `json:"tool_version"`
	ProjectSpec   string       `json:"project_spec"`
	StartedAt     string       `json:"started_at"`
	Warnings      []Warning    `json:"warnings"`
	Errors        []Warning    `json:"errors"`
	Summary       Summary      `json:"summary"`
	Results       []TestResult `json:"results"`
	ArtifactsDir  string       `json:"artifacts_dir"`
}

// New returns a report stamped with the tool and schema versions and the
// current UTC time. Collections start empty, never null, so consumers can
// range without nil checks.
func New(contractName, runID, projectSpec, artifactsDir string) *Report {
	return &Report{
		SchemaVersion: spec.SchemaVersion(),
		ReportType:    "single",
		Contract:      contractName,
		RunID:         runID,
		ToolVersion:   spec.ToolVersion,
		ProjectSpec:   projectSpec,
		StartedAt:     FormatTime(time.Now()),
		Warnings:      []Warning{},
		Errors:        []Warning{},
		Results:       []TestResult{},
		ArtifactsDir:  artifactsDir,
	}
}

// FormatTime renders a timestamp the way reports expect: UTC, second
// precision, Z suffix.
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

// AddWarning records a non-fatal condition.
func (r *Report) AddWarning(code, message string) {
	r.Warnings = append(r.Warnings, Warning{Code: code, Message: message})
}

// AddError records a fatal condition. The run still produces a report, but
// with no test results beyond the synthetic one describing the failure.
func (r *Report) AddError(code, message string) {
	r.Errors = append(r.Errors, Warning{Code: code, Message: message})
}

// AddResult appends a test result and bumps the matching summary counter.
// Nil collections are normalized so the report never serializes null.
func (r *Report) AddResult(res TestResult) {
	if res.Assertions == nil {
		res.Assertions = []assertion.Result{}
	}
	if res.Steps == nil {
		res.Steps = []map[string]any{}
	}
	r.Results = append(r.Results, res)

	switch res.Status {
	case "pass":
		r.Summary.Passed++
	case "fail":
		r.Summary.Failed++
	case "skipped":
		r.Summary.Skipped++
	default:
		r.Summary.Error++
	}
}

// ErrorResult builds the synthetic result used when a test cannot run at
// all: version gates, malformed test entries, executor failures.
func ErrorResult(id string, requirement any, message string) TestResult {
	return TestResult{
		ID:          id,
		Requirement: requirement,
		Status:      "error",
		Message:     message,
		Assertions:  []assertion.Result{},
		Steps:       []map[string]any{},
	}
}

// JSON renders the report with two-space indentation.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Write stores the report as report.json inside dir, creating dir first.
func (r *Report) Write(dir string) (string, error) {
	data, err := r.JSON()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, "report.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
