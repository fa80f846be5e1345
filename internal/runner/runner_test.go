package runner

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contractdev/cdd/internal/executor"
	"github.com/contractdev/cdd/internal/report"
	"github.com/contractdev/cdd/internal/spec"
)

func init() {
	err := executor.RegisterTargets("runnertest", map[string]executor.TargetFunc{
		"add": func(call executor.Call) (any, error) {
			return numArg(call.Args, "a") + numArg(call.Args, "b"), nil
		},
		"greet": func(call executor.Call) (any, error) {
			name, _ := call.Vars["name"].(string)
			return "hello " + name, nil
		},
		"boom": func(call executor.Call) (any, error) {
			return nil, errors.New("target exploded")
		},
	})
	if err != nil {
		panic(err)
	}
}

func numArg(args map[string]any, key string) float64 {
	switch n := args[key].(type) {
	case int:
		return float64(n)
	case float64:
		return n
	}
	return 0
}

func writeRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func runTarget(t *testing.T, root, target string, opts Options) *report.Report {
	t.Helper()
	if opts.ArtifactsRoot == "" {
		opts.ArtifactsRoot = filepath.Join(root, "artifacts")
	}
	rep, err := New(opts).Run(context.Background(), target)
	require.NoError(t, err)
	return rep
}

func runProject(t *testing.T, root string, opts Options) *report.Report {
	t.Helper()
	return runTarget(t, root, filepath.Join(root, "contracts"), opts)
}

const passingContract = `contract: core
runner:
  executor: call
  entry: runnertest
  symbol: greet
tests:
  - id: T-001
    steps:
      - action: call
        save_as: out
    assert:
      - op: eq
        actual: $.out.ok
        expected: true
`

func TestRunVersionGateFatal(t *testing.T) {
	root := writeRepo(t, map[string]string{
		"contracts/project.yaml": "project: demo\ncdd_spec: \"2.0\"\n",
		"contracts/core.yaml":    passingContract,
	})
	rep := runProject(t, root, Options{})

	assert.Equal(t, "project", rep.Contract)
	require.Len(t, rep.Errors, 1)
	assert.Equal(t, CodeSpecMajorMismatch, rep.Errors[0].Code)
	wantMsg := "Project targets CDD 2.0, tooling is " + spec.ToolVersion
	assert.Equal(t, wantMsg, rep.Errors[0].Message)

	require.Len(t, rep.Results, 1)
	res := rep.Results[0]
	assert.Equal(t, "VERSION", res.ID)
	assert.Equal(t, "error", res.Status)
	assert.Equal(t, wantMsg, res.Message)
	assert.Nil(t, res.Requirement)
	assert.Equal(t, report.Summary{Error: 1}, rep.Summary)

	_, err := os.Stat(filepath.Join(root, "artifacts"))
	assert.True(t, os.IsNotExist(err), "fatal gate must not create artifacts")
}

func TestRunVersionGateExact(t *testing.T) {
	root := writeRepo(t, map[string]string{
		"contracts/project.yaml": "project: demo\ncdd_spec: \"1.1\"\n",
		"contracts/core.yaml":    passingContract,
	})
	rep := runProject(t, root, Options{RequireExact: true})

	require.Len(t, rep.Errors, 1)
	assert.Equal(t, CodeSpecExactMismatch, rep.Errors[0].Code)
	assert.Equal(t, "Project targets CDD 1.1, tooling is "+spec.ToolVersion+" (exact required)", rep.Errors[0].Message)
	require.Len(t, rep.Results, 1)
	assert.Equal(t, "VERSION", rep.Results[0].ID)
}

func TestRunVersionGateWarnings(t *testing.T) {
	tests := []struct {
		name     string
		project  string
		wantCode string
		wantMsg  string
	}{
		{
			name:     "no pin",
			project:  "project: demo\n",
			wantCode: CodeSpecMissing,
			wantMsg:  "No cdd_spec or .cdd-version found",
		},
		{
			name:     "unparseable pin",
			project:  "project: demo\ncdd_spec: nightly\n",
			wantCode: CodeSpecParseError,
			wantMsg:  `Could not parse cdd_spec "nightly"`,
		},
		{
			name:     "minor mismatch",
			project:  "project: demo\ncdd_spec: \"1.0\"\n",
			wantCode: CodeSpecMismatch,
			wantMsg:  "Project targets CDD 1.0, tooling is " + spec.ToolVersion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := writeRepo(t, map[string]string{
				"contracts/project.yaml": tt.project,
				"contracts/core.yaml":    passingContract,
			})
			rep := runProject(t, root, Options{})

			require.Len(t, rep.Warnings, 1)
			assert.Equal(t, tt.wantCode, rep.Warnings[0].Code)
			assert.Contains(t, rep.Warnings[0].Message, tt.wantMsg)
			assert.Empty(t, rep.Errors)

			require.Len(t, rep.Results, 1, "warnings must not stop the run")
			assert.Equal(t, "pass", rep.Results[0].Status)
		})
	}
}

func TestRunCallContract(t *testing.T) {
	root := writeRepo(t, map[string]string{
		"contracts/project.yaml": "project: payments\ncdd_spec: \"" + spec.ToolVersion + "\"\n",
		"contracts/payments.yaml": `contract: payments
version: 2
status: active
vars:
  region: eu-west
runner:
  executor: call
  entry: runnertest
tests:
  - id: T-001
    name: adds amounts
    requirement: R-001
    steps:
      - action: call
        method: add
        with:
          a: 2
          b: 3
        save_as: sum
    assert:
      - op: eq
        actual: $.sum.value
        expected: 5
      - op: eq
        actual: $.steps[0].ok
        expected: true
      - op: eq
        actual: $.vars.region
        expected: eu-west
      - op: eq
        actual: $.contract.contract
        expected: payments
      - op: matches
        actual: $.runner.run_id
        pattern: "^run_[0-9a-f]{10}$"
`,
	})
	rep := runProject(t, root, Options{})

	assert.Equal(t, "payments", rep.Contract)
	assert.Equal(t, spec.ToolVersion, rep.ProjectSpec)
	assert.Equal(t, spec.ToolVersion, rep.ToolVersion)
	assert.Regexp(t, `^run_[0-9a-f]{10}$`, rep.RunID)
	assert.Empty(t, rep.Warnings)
	assert.Empty(t, rep.Errors)
	assert.Equal(t, report.Summary{Passed: 1}, rep.Summary)

	require.Len(t, rep.Results, 1)
	res := rep.Results[0]
	assert.Equal(t, "T-001", res.ID)
	assert.Equal(t, "adds amounts", res.Name)
	assert.Equal(t, "R-001", res.Requirement)
	assert.Equal(t, "pass", res.Status)
	assert.Equal(t, "All assertions passed", res.Message)
	require.Len(t, res.Assertions, 5)
	for _, a := range res.Assertions {
		assert.True(t, a.Pass, "assertion %s should pass", a.Op)
	}

	require.Len(t, res.Steps, 1)
	step := res.Steps[0]
	assert.Equal(t, true, step["ok"])
	assert.Equal(t, float64(5), step["value"])
	meta, ok := step["meta"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, meta, "duration_ms")

	wantDir := filepath.Join(root, "artifacts", rep.RunID)
	assert.Equal(t, wantDir, rep.ArtifactsDir)
	assert.DirExists(t, filepath.Join(wantDir, "payments"))
}

func TestRunContractVarsOverrideInjected(t *testing.T) {
	root := writeRepo(t, map[string]string{
		"contracts/core.yaml": `contract: core
vars:
  region: eu-west
runner:
  executor: call
  entry: runnertest
tests:
  - id: T-001
    assert:
      - op: eq
        actual: $.vars.region
        expected: eu-west
      - op: eq
        actual: $.vars.tier
        expected: gold
`,
	})
	rep := runProject(t, root, Options{
		Vars: map[string]any{"region": "us-east", "tier": "gold"},
	})

	assert.Equal(t, report.Summary{Passed: 1}, rep.Summary)
}

func TestRunOnlyTestsFilter(t *testing.T) {
	root := writeRepo(t, map[string]string{
		"contracts/core.yaml": `contract: core
runner:
  executor: call
  entry: runnertest
tests:
  - id: T-001
    steps:
      - action: call
        method: boom
    assert:
      - op: eq
        actual: 1
        expected: 2
  - id: T-002
    assert:
      - op: eq
        actual: 1
        expected: 1
`,
	})
	rep := runProject(t, root, Options{OnlyTests: []string{"T-002"}})

	require.Len(t, rep.Results, 1)
	assert.Equal(t, "T-002", rep.Results[0].ID)
	assert.Equal(t, report.Summary{Passed: 1}, rep.Summary)
}

func TestRunMatrixFailFast(t *testing.T) {
	files := map[string]string{
		"contracts/core.yaml": `contract: core
runner:
  executor: call
  entry: runnertest
tests:
  - id: T-001
    assert:
      - op: eq
        actual: 1
        expected: 2
  - id: T-002
    assert:
      - op: eq
        actual: 1
        expected: 1
`,
	}

	t.Run("enabled stops at first failure", func(t *testing.T) {
		root := writeRepo(t, files)
		rep := runProject(t, root, Options{MatrixFailFast: true})
		require.Len(t, rep.Results, 1)
		assert.Equal(t, "T-001", rep.Results[0].ID)
		assert.Equal(t, "fail", rep.Results[0].Status)
	})

	t.Run("disabled runs everything", func(t *testing.T) {
		root := writeRepo(t, files)
		rep := runProject(t, root, Options{})
		require.Len(t, rep.Results, 2)
		assert.Equal(t, report.Summary{Passed: 1, Failed: 1}, rep.Summary)
	})
}

func TestRunContractSynthetics(t *testing.T) {
	tests := []struct {
		name        string
		contract    string
		wantID      string
		wantMessage string
	}{
		{
			name:        "tests not a list",
			contract:    "contract: core\ntests: nope\n",
			wantID:      "INVALID",
			wantMessage: "tests must be a list",
		},
		{
			name:        "unknown executor",
			contract:    "contract: core\nrunner:\n  executor: cobol\ntests:\n  - id: T-001\n",
			wantID:      "EXECUTOR",
			wantMessage: `Unknown executor 'cobol': no executor registered for "cobol"`,
		},
		{
			name:        "setup failure",
			contract:    "contract: core\nrunner:\n  executor: call\n  entry: ghost\ntests:\n  - id: T-001\n",
			wantID:      "EXECUTOR",
			wantMessage: `Executor setup failed: no call targets registered for entry "ghost"`,
		},
		{
			name:        "test entry not an object",
			contract:    "contract: core\nrunner:\n  executor: call\n  entry: runnertest\ntests:\n  - zap\n",
			wantID:      "UNKNOWN",
			wantMessage: "test entry must be an object",
		},
		{
			name:        "unparseable yaml",
			contract:    "contract: [\n",
			wantID:      "PARSE",
			wantMessage: "Failed to load contract:",
		},
		{
			name:        "non-mapping document",
			contract:    "- 1\n- 2\n",
			wantID:      "PARSE",
			wantMessage: "must be a YAML mapping",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := writeRepo(t, map[string]string{"contracts/core.yaml": tt.contract})
			rep := runProject(t, root, Options{})

			require.Len(t, rep.Results, 1)
			res := rep.Results[0]
			assert.Equal(t, tt.wantID, res.ID)
			assert.Equal(t, "error", res.Status)
			assert.Contains(t, res.Message, tt.wantMessage)
		})
	}
}

func TestRunStaticContract(t *testing.T) {
	root := writeRepo(t, map[string]string{
		"contracts/src/handler.go": "package main\n\nfunc main() {}\n",
		"contracts/style.yaml": `contract: style
runner:
  executor: static
  parser: text
tests:
  - id: S-001
    name: no todos
    type: static
    files: "src/*.go"
    assert:
      - op: not_matches
        pattern: TODO
  - id: S-002
    assert:
      - op: eq
        actual: $.ast.parser
        expected: text
      - op: eq
        actual: $.runner.ast.schema_version
        expected: "1.0"
  - id: S-003
    requirement: R-009
    steps:
      - action: call
    assert: []
`,
	})
	rep := runProject(t, root, Options{})

	require.Len(t, rep.Results, 3)

	scan := rep.Results[0]
	assert.Equal(t, "S-001", scan.ID)
	assert.Equal(t, "pass", scan.Status)
	assert.Equal(t, "Scanned 1 files", scan.Message)
	assert.Equal(t, "static", scan.Type)
	require.NotNil(t, scan.FilesScanned)
	assert.Equal(t, 1, *scan.FilesScanned)
	require.NotNil(t, scan.DurationMS)
	assert.Empty(t, scan.Steps)

	ast := rep.Results[1]
	assert.Equal(t, "pass", ast.Status, "ast assertions should see the analysis placeholder")

	noSteps := rep.Results[2]
	assert.Equal(t, "S-003", noSteps.ID)
	assert.Equal(t, "error", noSteps.Status)
	assert.Equal(t, "Static tests must have no steps", noSteps.Message)
	assert.Equal(t, "R-009", noSteps.Requirement)

	assert.Equal(t, report.Summary{Passed: 2, Error: 1}, rep.Summary)
}

func TestRunStaticScanFailure(t *testing.T) {
	root := writeRepo(t, map[string]string{
		"contracts/src/handler.go": "package main\n\n// TODO fix this\nfunc main() {}\n",
		"contracts/style.yaml": `contract: style
runner:
  executor: static
tests:
  - id: S-001
    type: static
    files: "src/*.go"
    assert:
      - op: not_matches
        pattern: TODO
`,
	})
	rep := runProject(t, root, Options{})

	require.Len(t, rep.Results, 1)
	res := rep.Results[0]
	assert.Equal(t, "fail", res.Status)
	assert.Equal(t, "1 failures in 1 files", res.Message)
	require.Len(t, res.Assertions, 1)
	details := res.Assertions[0].Details
	assert.Equal(t, 3, details["line"])
}

func TestRunWaitStep(t *testing.T) {
	root := writeRepo(t, map[string]string{
		"contracts/core.yaml": `contract: core
runner:
  executor: call
  entry: runnertest
tests:
  - id: T-001
    steps:
      - action: wait
        seconds: 0.01
        save_as: pause
    assert:
      - op: eq
        actual: $.pause.ok
        expected: true
      - op: eq
        actual: $.pause.meta.wait_s
        expected: 0.01
      - op: eq
        actual: $.steps[0].meta.wait_s
        expected: 0.01
`,
	})
	rep := runProject(t, root, Options{})

	assert.Equal(t, report.Summary{Passed: 1}, rep.Summary)
	require.Len(t, rep.Results, 1)
	require.Len(t, rep.Results[0].Steps, 1)
	meta, ok := rep.Results[0].Steps[0]["meta"].(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, meta, "duration_ms", "wait steps are not measured")
}

func TestRunUnsupportedAction(t *testing.T) {
	root := writeRepo(t, map[string]string{
		"contracts/core.yaml": `contract: core
runner:
  executor: call
  entry: runnertest
tests:
  - id: T-001
    steps:
      - action: dance
        save_as: out
    assert:
      - op: eq
        actual: $.out.error_code
        expected: unsupported_action
      - op: eq
        actual: $.out.message
        expected: "Action not supported: dance"
`,
	})
	rep := runProject(t, root, Options{})
	assert.Equal(t, report.Summary{Passed: 1}, rep.Summary)
}

func TestRunStatusRollup(t *testing.T) {
	root := writeRepo(t, map[string]string{
		"contracts/core.yaml": `contract: core
runner:
  executor: call
  entry: runnertest
tests:
  - id: T-001
    steps:
      - action: call
        method: boom
        save_as: out
    assert:
      - op: eq
        actual: $.out.ok
        expected: false
      - op: eq
        actual: $.out.error_code
        expected: exception
  - id: T-002
    assert:
      - op: lt
        actual: nope
        expected: 3
  - id: T-003
    assert:
      - op: eq
        actual: 1
        expected: 2
`,
	})
	rep := runProject(t, root, Options{})

	require.Len(t, rep.Results, 3)
	assert.Equal(t, "pass", rep.Results[0].Status, "step faults only fail when asserted")
	assert.Equal(t, "error", rep.Results[1].Status)
	assert.Equal(t, "Assertion error: type_mismatch", rep.Results[1].Message)
	assert.Equal(t, "fail", rep.Results[2].Status)
	assert.Equal(t, "One or more assertions failed", rep.Results[2].Message)
	assert.Equal(t, report.Summary{Passed: 1, Failed: 1, Error: 1}, rep.Summary)
}

func TestRunSingleFileTarget(t *testing.T) {
	root := writeRepo(t, map[string]string{
		"contracts/project.yaml": "project: demo\n",
		"contracts/core.yaml":    passingContract,
		"contracts/extra.yaml": `contract: extra
runner:
  executor: call
  entry: runnertest
tests:
  - id: X-001
    assert:
      - op: eq
        actual: 1
        expected: 1
`,
	})
	rep := runTarget(t, root, filepath.Join(root, "contracts", "core.yaml"), Options{})

	assert.Equal(t, "demo", rep.Contract)
	require.Len(t, rep.Results, 1)
	assert.Equal(t, "T-001", rep.Results[0].ID)
}

func TestRunWritesReport(t *testing.T) {
	root := writeRepo(t, map[string]string{
		"contracts/project.yaml": "project: demo\ncdd_spec: \"1.1\"\n",
		"contracts/core.yaml":    passingContract,
	})
	rep := runProject(t, root, Options{})

	data, err := os.ReadFile(filepath.Join(root, "artifacts", rep.RunID, "report.json"))
	require.NoError(t, err)

	violations, err := report.Validate(data)
	require.NoError(t, err)
	assert.Empty(t, violations)

	var stored report.Report
	require.NoError(t, json.Unmarshal(data, &stored))
	assert.Equal(t, rep.RunID, stored.RunID)
	assert.Equal(t, rep.Summary, stored.Summary)
}

func TestRunWritesReportOnGateFailure(t *testing.T) {
	root := writeRepo(t, map[string]string{
		"contracts/project.yaml": "project: demo\ncdd_spec: \"2.0\"\n",
		"contracts/core.yaml":    passingContract,
	})
	rep := runProject(t, root, Options{})
	require.Equal(t, 1, rep.Summary.Error)

	_, err := os.Stat(filepath.Join(root, "artifacts", rep.RunID, "report.json"))
	assert.NoError(t, err, "gate failures still leave a report behind")
}

func TestRunTeardownFailure(t *testing.T) {
	reg := executor.DefaultRegistry()
	require.NoError(t, reg.Register("sabotage", func() executor.Executor { return teardownFailer{} }))

	root := writeRepo(t, map[string]string{
		"contracts/core.yaml": `contract: core
runner:
  executor: sabotage
tests:
  - id: T-001
    assert: []
`,
	})
	rep := runProject(t, root, Options{Registry: reg})

	require.Len(t, rep.Results, 2)
	assert.Equal(t, "T-001", rep.Results[0].ID)
	assert.Equal(t, "pass", rep.Results[0].Status)
	assert.Equal(t, "TEARDOWN", rep.Results[1].ID)
	assert.Equal(t, "error", rep.Results[1].Status)
	assert.Equal(t, "Executor teardown failed", rep.Results[1].Message)
}

func TestRunMissingTarget(t *testing.T) {
	rep, err := New(Options{}).Run(context.Background(), "/no/such/contracts")
	require.Error(t, err)
	assert.Nil(t, rep)
}

func TestNewRunID(t *testing.T) {
	at := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	id := NewRunID("contracts", at)
	assert.Regexp(t, `^run_[0-9a-f]{10}$`, id)
	assert.Equal(t, id, NewRunID("contracts", at), "same target and time must be stable")
	assert.NotEqual(t, id, NewRunID("other", at))
	assert.NotEqual(t, id, NewRunID("contracts", at.Add(time.Second)))
}

func TestTimeoutCoercion(t *testing.T) {
	assert.Equal(t, 250, intValue("250", DefaultTimeoutMS), "string timeouts are coerced")
	assert.Equal(t, 250, intValue(250, DefaultTimeoutMS))
	assert.Equal(t, 250, intValue(float64(250), DefaultTimeoutMS))
	assert.Equal(t, DefaultTimeoutMS, intValue(nil, DefaultTimeoutMS))
	assert.Equal(t, DefaultTimeoutMS, intValue("soon", DefaultTimeoutMS))
}

type teardownFailer struct{}

func (teardownFailer) Supports(string) bool { return true }

func (teardownFailer) Setup(context.Context, *executor.RunContext, map[string]any) error {
	return nil
}

func (teardownFailer) ExecuteStep(context.Context, *executor.RunContext, map[string]any, string, executor.StepSpec, int) executor.StepResult {
	return executor.StepResult{OK: true}
}

func (teardownFailer) Teardown(context.Context, *executor.RunContext, map[string]any) error {
	return errors.New("port still bound")
}
