// Package lint checks contract files for structural problems before a run:
// required fields, status values, runner configuration, requirement and
// test shapes, and requirement coverage. Schema-level type checking is
// delegated to the contract package's CUE schema.
package lint

import (
	"fmt"
	"os"
	"sort"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/contractdev/cdd/internal/contract"
)

// Finding codes. Errors make a lint run fail; warnings only fail it in
// strict mode.
const (
	CodePathNotFound        = "path_not_found"
	CodeYAMLParseError      = "yaml_parse_error"
	CodeUnexpectedError     = "unexpected_error"
	CodeInvalidYAML         = "invalid_yaml"
	CodeUnknownContractType = "unknown_contract_type"
	CodeMissingField        = "missing_field"
	CodeInvalidStatus       = "invalid_status"
	CodeMissingCDDSpec      = "missing_cdd_spec"
	CodeInvalidRunner       = "invalid_runner"
	CodeMissingExecutor     = "missing_executor"
	CodeInvalidRequirements = "invalid_requirements"
	CodeInvalidRequirement  = "invalid_requirement"
	CodeInvalidTests        = "invalid_tests"
	CodeInvalidTest         = "invalid_test"
	CodeUnlinkedTest        = "unlinked_test"
	CodeUncoveredReq        = "uncovered_requirement"
	CodeSchemaError         = "schema_error"
)

// Finding is one lint problem.
type Finding struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result is the outcome of linting a contract tree.
type Result struct {
	OK               bool      `json:"ok"`
	Errors           []Finding `json:"errors"`
	Warnings         []Finding `json:"warnings"`
	ContractsChecked int       `json:"contracts_checked"`
}

func (r *Result) addError(code, format string, args ...any) {
	r.Errors = append(r.Errors, Finding{Code: code, Message: fmt.Sprintf(format, args...)})
}

func (r *Result) addWarning(code, format string, args ...any) {
	r.Warnings = append(r.Warnings, Finding{Code: code, Message: fmt.Sprintf(format, args...)})
}

// Options configure a lint run.
type Options struct {
	// Strict fails the run on warnings too.
	Strict bool

	Logger *zerolog.Logger
}

// Contracts lints a contract file or every .yaml file under a directory,
// recursively. Project contracts (documents with a project field) and
// component contracts are checked against their own rule sets.
func Contracts(path string, opts Options) Result {
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	res := Result{Errors: []Finding{}, Warnings: []Finding{}}

	files, ok := contract.GlobTree(path)
	if !ok {
		res.addError(CodePathNotFound, "Path not found: %s", path)
		return res
	}

	for _, f := range files {
		res.ContractsChecked++
		lintFile(f, &res)
	}

	res.OK = len(res.Errors) == 0
	if opts.Strict && len(res.Warnings) > 0 {
		res.OK = false
	}

	log.Debug().
		Int("contracts", res.ContractsChecked).
		Int("errors", len(res.Errors)).
		Int("warnings", len(res.Warnings)).
		Msg("lint complete")
	return res
}

func lintFile(path string, res *Result) {
	data, err := os.ReadFile(path)
	if err != nil {
		res.addError(CodeUnexpectedError, "%s: %v", path, err)
		return
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		res.addError(CodeYAMLParseError, "%s: %v", path, err)
		return
	}
	m, ok := doc.(map[string]any)
	if !ok {
		res.addError(CodeInvalidYAML, "%s: must be a mapping", path)
		return
	}

	_, isProject := m["project"]
	_, isComponent := m["contract"]
	switch {
	case !isProject && !isComponent:
		res.addError(CodeUnknownContractType, "%s: must have 'project' or 'contract' field", path)
	case isProject:
		lintProject(path, m, res)
	default:
		lintComponent(path, m, res)
	}
}

func lintProject(path string, doc map[string]any, res *Result) {
	for _, field := range []string{"project", "version", "status", "goal", "success_criteria", "components"} {
		if _, has := doc[field]; !has {
			res.addError(CodeMissingField, "%s: missing required field '%s'", path, field)
		}
	}

	status := doc["status"]
	if !validStatus(status) {
		res.addError(CodeInvalidStatus, "%s: status must be draft|frozen|deprecated", path)
	}
	if status == "frozen" {
		if _, has := doc["cdd_spec"]; !has {
			res.addError(CodeMissingCDDSpec, "%s: frozen project requires 'cdd_spec' field", path)
		}
	}
}

func lintComponent(path string, doc map[string]any, res *Result) {
	before := len(res.Errors)

	for _, field := range []string{"contract", "version", "status", "description", "runner", "requirements", "tests"} {
		if _, has := doc[field]; !has {
			res.addError(CodeMissingField, "%s: missing required field '%s'", path, field)
		}
	}

	status := doc["status"]
	if !validStatus(status) {
		res.addError(CodeInvalidStatus, "%s: status must be draft|frozen|deprecated", path)
	}

	runnerRaw, hasRunner := doc["runner"]
	if !hasRunner {
		res.addError(CodeMissingExecutor, "%s: runner.executor is required", path)
	} else if m, ok := runnerRaw.(map[string]any); !ok {
		res.addError(CodeInvalidRunner, "%s: runner must be an object", path)
	} else if _, has := m["executor"]; !has {
		res.addError(CodeMissingExecutor, "%s: runner.executor is required", path)
	}

	reqIDs := lintRequirements(path, doc, res)
	linked := lintTests(path, doc, status == "frozen", res)

	uncovered := make([]string, 0, len(reqIDs))
	for id := range reqIDs {
		if _, has := linked[id]; !has {
			uncovered = append(uncovered, id)
		}
	}
	sort.Strings(uncovered)
	for _, id := range uncovered {
		res.addError(CodeUncoveredReq, "%s: requirement %s has no linked tests", path, id)
	}

	// Type-level checks only add depth when the hand checks were clean;
	// otherwise every shape problem would be reported twice.
	if len(res.Errors) == before {
		for _, se := range contract.ValidateSchema(doc) {
			if se.Path != "" {
				res.addError(CodeSchemaError, "%s: %s: %s", path, se.Path, se.Message)
			} else {
				res.addError(CodeSchemaError, "%s: %s", path, se.Message)
			}
		}
	}
}

func lintRequirements(path string, doc map[string]any, res *Result) map[string]struct{} {
	ids := make(map[string]struct{})
	raw, has := doc["requirements"]
	if !has {
		return ids
	}
	list, ok := raw.([]any)
	if !ok {
		res.addError(CodeInvalidRequirements, "%s: requirements must be an array", path)
		return ids
	}
	for _, entry := range list {
		r, ok := entry.(map[string]any)
		if !ok {
			res.addError(CodeInvalidRequirement, "%s: requirement must be an object", path)
			continue
		}
		for _, field := range []string{"id", "priority", "description", "acceptance_criteria"} {
			if _, has := r[field]; !has {
				res.addError(CodeMissingField, "%s: requirement missing '%s'", path, field)
			}
		}
		if id, ok := r["id"].(string); ok {
			ids[id] = struct{}{}
		}
	}
	return ids
}

func lintTests(path string, doc map[string]any, frozen bool, res *Result) map[string]struct{} {
	linked := make(map[string]struct{})
	raw, has := doc["tests"]
	if !has {
		return linked
	}
	list, ok := raw.([]any)
	if !ok {
		res.addError(CodeInvalidTests, "%s: tests must be an array", path)
		return linked
	}
	for _, entry := range list {
		test, ok := entry.(map[string]any)
		if !ok {
			res.addError(CodeInvalidTest, "%s: test must be an object", path)
			continue
		}
		for _, field := range []string{"id", "name", "type", "assert"} {
			if _, has := test[field]; !has {
				res.addError(CodeMissingField, "%s: test missing '%s'", path, field)
			}
		}

		switch req := test["requirement"].(type) {
		case string:
			if req != "" {
				linked[req] = struct{}{}
				continue
			}
		case []any:
			found := false
			for _, r := range req {
				if s, ok := r.(string); ok && s != "" {
					linked[s] = struct{}{}
					found = true
				}
			}
			if found {
				continue
			}
		}
		if frozen {
			id := "?"
			if v, has := test["id"]; has {
				id = fmt.Sprintf("%v", v)
			}
			res.addWarning(CodeUnlinkedTest, "%s: test %s has no requirement link", path, id)
		}
	}
	return linked
}

func validStatus(status any) bool {
	switch status {
	case "draft", "frozen", "deprecated":
		return true
	}
	return false
}
