package runner

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/contractdev/cdd/internal/assertion"
	"github.com/contractdev/cdd/internal/executor"
	"github.com/contractdev/cdd/internal/report"
)

// evaluateTest builds the assertion context from the run context plus the
// step results, evaluates the test's assertions, and folds everything into
// a single test result.
func evaluateTest(rc *executor.RunContext, test map[string]any, testID string, stepResults []executor.StepResult, saved map[string]map[string]any) report.TestResult {
	stepDicts := make([]map[string]any, 0, len(stepResults))
	stepsAny := make([]any, 0, len(stepResults))
	for _, res := range stepResults {
		d := stepDict(res)
		stepDicts = append(stepDicts, d)
		stepsAny = append(stepsAny, d)
	}

	actx := map[string]any{
		"vars":     rc.Vars,
		"env":      rc.Env,
		"runner":   rc.Runner,
		"contract": rc.Contract,
		"steps":    stepsAny,
		"ast":      rc.Runner["ast"],
	}
	for name, d := range saved {
		actx[name] = d
	}

	results := assertion.Evaluate(actx, assertMaps(test["assert"]))
	status, message := statusFrom(results)

	name, _ := test["name"].(string)
	return report.TestResult{
		ID:          testID,
		Name:        name,
		Requirement: test["requirement"],
		Type:        test["type"],
		Status:      status,
		Message:     message,
		Assertions:  results,
		Steps:       stepDicts,
	}
}

// statusFrom collapses assertion results into the test status. Any
// evaluation error wins over plain failures.
func statusFrom(results []assertion.Result) (string, string) {
	for _, res := range results {
		if res.Err != "" {
			return "error", "Assertion error: " + res.Err
		}
	}
	for _, res := range results {
		if !res.Pass {
			return "fail", "One or more assertions failed"
		}
	}
	return "pass", "All assertions passed"
}

// runStaticFileTest handles `type: static` tests that scan files with
// pattern assertions instead of executing steps.
func runStaticFileTest(test map[string]any, testID, baseDir string, vars map[string]any) report.TestResult {
	started := time.Now()
	scan := executor.RunStaticTest(test, baseDir, vars)
	durationMS := int(time.Since(started).Milliseconds())

	message := scan.Err
	switch {
	case scan.Status == "fail":
		message = fmt.Sprintf("%d failures in %d files", len(scan.Assertions), scan.FilesScanned)
	case message == "":
		message = fmt.Sprintf("Scanned %d files", scan.FilesScanned)
	}

	name, _ := test["name"].(string)
	filesScanned := scan.FilesScanned
	return report.TestResult{
		ID:           testID,
		Name:         name,
		Requirement:  test["requirement"],
		Type:         "static",
		Status:       scan.Status,
		Message:      message,
		Assertions:   scan.Assertions,
		Steps:        []map[string]any{},
		DurationMS:   &durationMS,
		FilesScanned: &filesScanned,
	}
}

// envFacts describes the host for assertion contexts, keyed so contracts
// can gate on platform or toolchain version.
func envFacts() map[string]any {
	family := "unknown"
	switch runtime.GOOS {
	case "linux", "darwin", "windows":
		family = runtime.GOOS
	}
	major, minor, patch := goVersion(runtime.Version())
	return map[string]any{
		"os":        runtime.GOOS + "/" + runtime.GOARCH,
		"os_family": family,
		"go_major":  major,
		"go_minor":  minor,
		"go_patch":  patch,
	}
}

func goVersion(raw string) (int, int, int) {
	raw = strings.TrimPrefix(raw, "go")
	parts := strings.SplitN(raw, ".", 3)
	nums := [3]int{}
	for i := 0; i < len(parts) && i < 3; i++ {
		if n, err := strconv.Atoi(parts[i]); err == nil {
			nums[i] = n
		}
	}
	return nums[0], nums[1], nums[2]
}

func assertMaps(raw any) []map[string]any {
	list, _ := raw.([]any)
	asserts := make([]map[string]any, 0, len(list))
	for _, entry := range list {
		if m, ok := entry.(map[string]any); ok {
			asserts = append(asserts, m)
		}
	}
	return asserts
}
