package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/contractdev/cdd/internal/assertion"
	"github.com/contractdev/cdd/internal/jsonpath"
)

// StaticExecutor verifies contracts without running anything. It carries no
// step actions: static contracts either assert against the $.ast analysis
// placeholder or declare `type: static` file-scan tests, which the runner
// routes through RunStaticTest.
type StaticExecutor struct{}

func (e *StaticExecutor) Supports(action string) bool {
	return false
}

func (e *StaticExecutor) Setup(ctx context.Context, rc *RunContext, runnerCfg map[string]any) error {
	return nil
}

func (e *StaticExecutor) ExecuteStep(ctx context.Context, rc *RunContext, runnerCfg map[string]any, testID string, step StepSpec, timeoutMS int) StepResult {
	return StepResult{
		ErrorCode: ErrStaticNoSteps,
		Message:   "Static executor does not execute steps; use assertions against $.ast or type: static tests",
	}
}

func (e *StaticExecutor) Teardown(ctx context.Context, rc *RunContext, runnerCfg map[string]any) error {
	return nil
}

// Analyze returns the analysis placeholder exposed to assertions as $.ast.
// Parser plugins are an extension point; the structure is schema-tagged so
// a real parser can populate it later without breaking existing contracts.
func (e *StaticExecutor) Analyze(rc *RunContext, runnerCfg map[string]any, contractPath string) map[string]any {
	return map[string]any{
		"schema_version":  "1.0",
		"calls":           []any{},
		"bus_reads":       map[string]any{},
		"imports":         []any{},
		"definitions":     []any{},
		"parse_errors":    []any{},
		"parser":          runnerCfg["parser"],
		"source_included": false,
		"contract_file":   contractPath,
	}
}

// ScanResult is the outcome of a static file-scan test.
type ScanResult struct {
	// Status is "pass", "fail" or "error" (no files matched).
	Status string
	// Assertions holds only the failures; a clean scan leaves it empty.
	Assertions   []assertion.Result
	FilesScanned int
	Err          string
}

// RunStaticTest runs a `type: static` file-scan test: it expands the test's
// files globs relative to the contract directory, reads every match, and
// applies the test's pattern assertions to the raw text.
func RunStaticTest(test map[string]any, baseDir string, vars map[string]any) ScanResult {
	filesSpec := jsonpath.Interpolate(test["files"], vars)

	paths := ExpandFiles(filesSpec, baseDir, vars)
	if len(paths) == 0 {
		return ScanResult{Status: "error", Err: fmt.Sprintf("No files matched: %v", filesSpec)}
	}

	asserts := assertList(test["assert"])
	var failures []assertion.Result

	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			failures = append(failures, assertion.Result{
				Op:       "read",
				Actual:   path,
				Expected: "readable file",
				Err:      err.Error(),
			})
			continue
		}
		failures = append(failures, scanFileAssertions(path, string(content), asserts)...)
	}

	status := "pass"
	if len(failures) > 0 {
		status = "fail"
	}
	return ScanResult{Status: status, Assertions: failures, FilesScanned: len(paths)}
}

// scanFileAssertions applies pattern assertions to one file's content and
// returns the failures. not_matches flags every match found, each with its
// own line and column; matches fails once when nothing matches anywhere.
// Other operators are ignored in file-scan mode.
func scanFileAssertions(path, content string, asserts []map[string]any) []assertion.Result {
	var results []assertion.Result

	for _, a := range asserts {
		op, _ := a["op"].(string)
		if op != "matches" && op != "not_matches" {
			continue
		}

		patExpr := a["pattern"]
		if patExpr == nil || patExpr == "" {
			patExpr = a["expected"]
		}
		message, _ := a["message"].(string)

		pat, ok := patExpr.(string)
		if !ok {
			results = append(results, assertion.Result{
				Op:      op,
				Err:     assertion.ErrException,
				Message: message,
				Details: map[string]any{"file": path, "exception": fmt.Sprintf("pattern must be a string, got %T", patExpr)},
			})
			continue
		}
		re, err := regexp.Compile("(?m)" + pat)
		if err != nil {
			results = append(results, assertion.Result{
				Op:      op,
				Err:     assertion.ErrException,
				Message: message,
				Details: map[string]any{"file": path, "exception": err.Error()},
			})
			continue
		}

		switch op {
		case "not_matches":
			for _, loc := range re.FindAllStringIndex(content, -1) {
				results = append(results, notMatchFailure(path, content, pat, message, loc))
			}
		case "matches":
			if !re.MatchString(content) {
				results = append(results, assertion.Result{
					Op:       op,
					Expected: fmt.Sprintf("match for /%s/", pat),
					Message:  message,
					Details:  map[string]any{"file": path},
				})
			}
		}
	}
	return results
}

func notMatchFailure(path, content, pat, message string, loc []int) assertion.Result {
	start := loc[0]
	line := strings.Count(content[:start], "\n") + 1
	lineStart := strings.LastIndex(content[:start], "\n") + 1
	col := start - lineStart + 1

	snippet := ""
	lines := strings.Split(content, "\n")
	if line-1 < len(lines) {
		snippet = lines[line-1]
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		snippet = strings.TrimSpace(snippet)
	}

	match := content[loc[0]:loc[1]]
	return assertion.Result{
		Op:       "not_matches",
		Actual:   match,
		Expected: fmt.Sprintf("no match for /%s/", pat),
		Message:  message,
		Details: map[string]any{
			"file":    path,
			"line":    line,
			"col":     col,
			"match":   match,
			"snippet": snippet,
		},
	}
}

// ExpandFiles expands a files spec (one glob, a list of globs, or explicit
// paths) relative to baseDir, interpolating variables first. Results are
// sorted and deduplicated; anything that is not a string or list expands to
// nothing.
func ExpandFiles(filesSpec any, baseDir string, vars map[string]any) []string {
	var patterns []any
	switch s := filesSpec.(type) {
	case string:
		patterns = []any{s}
	case []any:
		patterns = s
	default:
		return nil
	}

	seen := make(map[string]struct{})
	var out []string
	for _, p := range patterns {
		pattern := fmt.Sprint(jsonpath.Interpolate(p, vars))
		matches, err := doublestar.FilepathGlob(filepath.Join(baseDir, pattern))
		if err != nil {
			continue
		}
		for _, m := range matches {
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}

func assertList(v any) []map[string]any {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
