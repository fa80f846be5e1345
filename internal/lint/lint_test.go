package lint

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validComponent = `contract: payments
version: 1
status: draft
description: Payment settlement rules
runner:
  executor: call
  entry: payments
requirements:
  - id: R-001
    priority: must
    description: Settles within limits
    acceptance_criteria: All settlement tests pass
tests:
  - id: T-001
    name: settles
    type: unit
    requirement: R-001
    assert:
      - op: eq
        actual: 1
        expected: 1
`

const validProject = `project: demo
version: 1
status: draft
goal: Ship payments
success_criteria:
  - All contracts pass
components:
  - payments
`

func lintOne(t *testing.T, content string) Result {
	t.Helper()
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return Contracts(path, Options{})
}

func codes(findings []Finding) []string {
	out := make([]string, 0, len(findings))
	for _, f := range findings {
		out = append(out, f.Code)
	}
	return out
}

func TestLintValidComponent(t *testing.T) {
	res := lintOne(t, validComponent)
	assert.True(t, res.OK)
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, 1, res.ContractsChecked)
}

func TestLintValidProject(t *testing.T) {
	res := lintOne(t, validProject)
	assert.True(t, res.OK)
	assert.Empty(t, res.Errors)
}

func TestLintPathNotFound(t *testing.T) {
	res := Contracts(filepath.Join(t.TempDir(), "missing"), Options{})
	assert.False(t, res.OK)
	assert.Equal(t, 0, res.ContractsChecked)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, CodePathNotFound, res.Errors[0].Code)
	assert.Contains(t, res.Errors[0].Message, "Path not found")
}

func TestLintDirectoryIsRecursive(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{
		"project.yaml":      validProject,
		"core.yaml":         validComponent,
		"nested/extra.yaml": validComponent,
		"notes.txt":         "not yaml",
	}
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	res := Contracts(root, Options{})
	assert.True(t, res.OK)
	assert.Equal(t, 3, res.ContractsChecked)
}

func TestLintFindings(t *testing.T) {
	tests := []struct {
		name     string
		contract string
		wantCode string
		wantMsg  string
	}{
		{
			name:     "not a mapping",
			contract: "- 1\n- 2\n",
			wantCode: CodeInvalidYAML,
			wantMsg:  "must be a mapping",
		},
		{
			name:     "unparseable",
			contract: "contract: [\n",
			wantCode: CodeYAMLParseError,
		},
		{
			name:     "neither project nor contract",
			contract: "version: 1\n",
			wantCode: CodeUnknownContractType,
			wantMsg:  "must have 'project' or 'contract' field",
		},
		{
			name:     "invalid status",
			contract: "contract: x\nversion: 1\nstatus: final\ndescription: d\nrunner:\n  executor: call\nrequirements: []\ntests: []\n",
			wantCode: CodeInvalidStatus,
			wantMsg:  "status must be draft|frozen|deprecated",
		},
		{
			name:     "frozen project without pin",
			contract: "project: demo\nversion: 1\nstatus: frozen\ngoal: g\nsuccess_criteria: []\ncomponents: []\n",
			wantCode: CodeMissingCDDSpec,
			wantMsg:  "frozen project requires 'cdd_spec' field",
		},
		{
			name:     "runner not an object",
			contract: "contract: x\nversion: 1\nstatus: draft\ndescription: d\nrunner: shell\nrequirements: []\ntests: []\n",
			wantCode: CodeInvalidRunner,
			wantMsg:  "runner must be an object",
		},
		{
			name:     "runner without executor",
			contract: "contract: x\nversion: 1\nstatus: draft\ndescription: d\nrunner: {}\nrequirements: []\ntests: []\n",
			wantCode: CodeMissingExecutor,
			wantMsg:  "runner.executor is required",
		},
		{
			name:     "requirements not an array",
			contract: "contract: x\nversion: 1\nstatus: draft\ndescription: d\nrunner:\n  executor: call\nrequirements: nope\ntests: []\n",
			wantCode: CodeInvalidRequirements,
			wantMsg:  "requirements must be an array",
		},
		{
			name:     "requirement not an object",
			contract: "contract: x\nversion: 1\nstatus: draft\ndescription: d\nrunner:\n  executor: call\nrequirements:\n  - R-001\ntests: []\n",
			wantCode: CodeInvalidRequirement,
			wantMsg:  "requirement must be an object",
		},
		{
			name:     "requirement missing fields",
			contract: "contract: x\nversion: 1\nstatus: draft\ndescription: d\nrunner:\n  executor: call\nrequirements:\n  - id: R-001\n    description: d\n    acceptance_criteria: a\n    priority: must\n  - id: R-002\n    description: d\ntests:\n  - id: T-001\n    name: n\n    type: unit\n    requirement: R-001\n    assert: []\n  - id: T-002\n    name: n\n    type: unit\n    requirement: R-002\n    assert: []\n",
			wantCode: CodeMissingField,
			wantMsg:  "requirement missing 'priority'",
		},
		{
			name:     "tests not an array",
			contract: "contract: x\nversion: 1\nstatus: draft\ndescription: d\nrunner:\n  executor: call\nrequirements: []\ntests: nope\n",
			wantCode: CodeInvalidTests,
			wantMsg:  "tests must be an array",
		},
		{
			name:     "test not an object",
			contract: "contract: x\nversion: 1\nstatus: draft\ndescription: d\nrunner:\n  executor: call\nrequirements: []\ntests:\n  - zap\n",
			wantCode: CodeInvalidTest,
			wantMsg:  "test must be an object",
		},
		{
			name:     "test missing fields",
			contract: "contract: x\nversion: 1\nstatus: draft\ndescription: d\nrunner:\n  executor: call\nrequirements: []\ntests:\n  - id: T-001\n    type: unit\n    assert: []\n",
			wantCode: CodeMissingField,
			wantMsg:  "test missing 'name'",
		},
		{
			name:     "uncovered requirement",
			contract: "contract: x\nversion: 1\nstatus: draft\ndescription: d\nrunner:\n  executor: call\nrequirements:\n  - id: R-002\n    priority: must\n    description: d\n    acceptance_criteria: a\ntests: []\n",
			wantCode: CodeUncoveredReq,
			wantMsg:  "requirement R-002 has no linked tests",
		},
		{
			name:     "schema type error",
			contract: "contract: x\nversion: 1\nstatus: draft\ndescription: d\nrunner:\n  executor: shell\n  timeout_ms: fast\nrequirements: []\ntests: []\n",
			wantCode: CodeSchemaError,
			wantMsg:  "runner.timeout_ms",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := lintOne(t, tt.contract)
			assert.False(t, res.OK)
			assert.Contains(t, codes(res.Errors), tt.wantCode)
			if tt.wantMsg != "" {
				found := false
				for _, f := range res.Errors {
					if f.Code == tt.wantCode && strings.Contains(f.Message, tt.wantMsg) {
						found = true
						break
					}
				}
				assert.True(t, found, "no %s finding mentions %q in %v", tt.wantCode, tt.wantMsg, res.Errors)
			}
		})
	}
}

func TestLintMissingComponentFields(t *testing.T) {
	res := lintOne(t, "contract: x\n")

	got := codes(res.Errors)
	assert.Contains(t, got, CodeMissingField)
	assert.Contains(t, got, CodeInvalidStatus)
	assert.Contains(t, got, CodeMissingExecutor, "an absent runner block still wants an executor")

	missing := 0
	for _, f := range res.Errors {
		if f.Code == CodeMissingField {
			missing++
		}
	}
	assert.Equal(t, 6, missing, "version, status, description, runner, requirements, tests")
}

func TestLintUnlinkedTestWarning(t *testing.T) {
	frozen := `contract: payments
version: 1
status: frozen
description: d
runner:
  executor: call
requirements: []
tests:
  - id: T-001
    name: n
    type: unit
    assert: []
`
	res := lintOne(t, frozen)
	assert.True(t, res.OK, "warnings do not fail a default run")
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, CodeUnlinkedTest, res.Warnings[0].Code)
	assert.Contains(t, res.Warnings[0].Message, "test T-001 has no requirement link")

	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte(frozen), 0o644))
	strict := Contracts(path, Options{Strict: true})
	assert.False(t, strict.OK, "strict mode fails on warnings")
}

func TestLintDraftTestsNeedNoLink(t *testing.T) {
	draft := `contract: payments
version: 1
status: draft
description: d
runner:
  executor: call
requirements: []
tests:
  - id: T-001
    name: n
    type: unit
    assert: []
`
	res := lintOne(t, draft)
	assert.True(t, res.OK)
	assert.Empty(t, res.Warnings)
}

func TestLintRequirementListLinks(t *testing.T) {
	res := lintOne(t, `contract: payments
version: 1
status: draft
description: d
runner:
  executor: call
requirements:
  - id: R-001
    priority: must
    description: d
    acceptance_criteria: a
  - id: R-002
    priority: should
    description: d
    acceptance_criteria: a
tests:
  - id: T-001
    name: n
    type: unit
    requirement: [R-001, R-002]
    assert: []
`)
	assert.True(t, res.OK)
	assert.Empty(t, res.Errors)
}

func TestLintSchemaSkippedAfterHandErrors(t *testing.T) {
	res := lintOne(t, "contract: x\nversion: 1\nstatus: draft\ndescription: d\nrunner:\n  executor: call\nrequirements: []\ntests: nope\n")

	got := codes(res.Errors)
	assert.Contains(t, got, CodeInvalidTests)
	assert.NotContains(t, got, CodeSchemaError, "shape problems are not reported twice")
}
