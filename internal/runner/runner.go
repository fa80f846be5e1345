// Package runner executes contract runs end to end: it locates contracts,
// gates on the project's pinned CDD version, drives executors through each
// test's steps, evaluates assertions, and assembles the run report.
package runner

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/contractdev/cdd/internal/contract"
	"github.com/contractdev/cdd/internal/executor"
	"github.com/contractdev/cdd/internal/report"
	"github.com/contractdev/cdd/internal/spec"
)

// DefaultTimeoutMS bounds a single step when the contract's runner block
// does not set timeout_ms.
const DefaultTimeoutMS = 30000

// Report codes emitted by the version gate. The first three are warnings;
// the mismatch pair is fatal and aborts the run before any test executes.
const (
	CodeSpecMissing       = "spec_version_missing"
	CodeSpecParseError    = "spec_version_parse_error"
	CodeSpecMismatch      = "spec_version_mismatch"
	CodeSpecMajorMismatch = "spec_major_mismatch"
	CodeSpecExactMismatch = "spec_exact_mismatch"
)

// Options configure a Runner. The zero value runs with the built-in
// executors, no injected variables, and a no-op logger.
type Options struct {
	// ArtifactsRoot is where per-run artifact directories are created.
	// Defaults to "artifacts".
	ArtifactsRoot string
	// Vars are injected into every contract. Contract vars override them.
	Vars map[string]any
	// OnlyTests restricts execution to the listed test ids.
	OnlyTests []string
	// RequireExact turns any pinned-version difference into a fatal error.
	RequireExact bool
	// MatrixFailFast stops a contract at its first failing test.
	MatrixFailFast bool

	Registry *executor.Registry
	Logger   *zerolog.Logger
}

// Runner runs contracts and produces reports. Construct with New; a Runner
// carries no per-run state and is safe to reuse across runs.
type Runner struct {
	opts     Options
	registry *executor.Registry
	log      zerolog.Logger
	only     map[string]struct{}
}

func New(opts Options) *Runner {
	if opts.ArtifactsRoot == "" {
		opts.ArtifactsRoot = "artifacts"
	}
	registry := opts.Registry
	if registry == nil {
		registry = executor.DefaultRegistry()
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	var only map[string]struct{}
	if len(opts.OnlyTests) > 0 {
		only = make(map[string]struct{}, len(opts.OnlyTests))
		for _, id := range opts.OnlyTests {
			only[id] = struct{}{}
		}
	}
	return &Runner{opts: opts, registry: registry, log: log, only: only}
}

// NewRunID derives a run identifier from the target path and start time.
func NewRunID(target string, at time.Time) string {
	sum := sha1.Sum([]byte(target + report.FormatTime(at)))
	return "run_" + hex.EncodeToString(sum[:])[:10]
}

// Run executes every contract under target (a contracts directory or a
// single contract file) and returns the report. Only path level failures
// return an error; anything that goes wrong inside a contract is recorded
// in the report instead.
func (r *Runner) Run(ctx context.Context, target string) (*report.Report, error) {
	layout, err := contract.Locate(target)
	if err != nil {
		return nil, err
	}
	project, err := contract.LoadProject(layout.ContractsDir)
	if err != nil {
		return nil, err
	}

	projectName, _ := project["project"].(string)
	if projectName == "" {
		projectName = "unknown"
	}
	projectSpec := contract.SpecPin(project, layout.RepoRoot)

	startedAt := time.Now()
	runID := NewRunID(target, startedAt)
	artifactsDir := filepath.Join(r.opts.ArtifactsRoot, runID)

	rep := report.New(projectName, runID, projectSpec, artifactsDir)
	rep.StartedAt = report.FormatTime(startedAt)

	r.log.Info().
		Str("run_id", runID).
		Str("target", target).
		Int("contracts", len(layout.Files)).
		Msg("starting run")

	if fatal := gate(rep, projectSpec, r.opts.RequireExact); fatal != "" {
		rep.Contract = "project"
		rep.AddResult(report.ErrorResult("VERSION", nil, fatal))
		r.log.Error().Str("run_id", runID).Msg(fatal)
		if _, err := rep.Write(artifactsDir); err != nil {
			return rep, err
		}
		return rep, nil
	}

	if err := os.MkdirAll(artifactsDir, 0o755); err != nil {
		return nil, err
	}

	for _, file := range layout.Files {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		r.runContract(ctx, rep, file, projectSpec, runID, artifactsDir)
	}

	if _, err := rep.Write(artifactsDir); err != nil {
		return rep, err
	}

	r.log.Info().
		Str("run_id", runID).
		Int("passed", rep.Summary.Passed).
		Int("failed", rep.Summary.Failed).
		Int("errors", rep.Summary.Error).
		Msg("run complete")
	return rep, nil
}

// gate compares the project's pinned version against the tool. A major
// version difference (or any difference under RequireExact) is fatal and
// returns the message for the synthetic VERSION result; everything else is
// at most a warning and the run proceeds.
func gate(rep *report.Report, projectSpec string, requireExact bool) string {
	if projectSpec == "" {
		rep.AddWarning(CodeSpecMissing, "No cdd_spec or .cdd-version found")
		return ""
	}
	toolVer := spec.ToolVersion
	projectMajor, _, err := spec.ParseMajorMinor(projectSpec)
	if err != nil {
		rep.AddWarning(CodeSpecParseError, fmt.Sprintf("Could not parse cdd_spec %q: %v", projectSpec, err))
		return ""
	}
	toolMajor, _, _ := spec.ParseMajorMinor(toolVer)
	mismatch := fmt.Sprintf("Project targets CDD %s, tooling is %s", projectSpec, toolVer)

	switch {
	case projectMajor != toolMajor:
		rep.AddError(CodeSpecMajorMismatch, mismatch)
		return mismatch
	case requireExact && projectSpec != toolVer:
		msg := mismatch + " (exact required)"
		rep.AddError(CodeSpecExactMismatch, msg)
		return msg
	case projectSpec != toolVer:
		rep.AddWarning(CodeSpecMismatch, mismatch)
	}
	return ""
}

func (r *Runner) runContract(ctx context.Context, rep *report.Report, file, projectSpec, runID, artifactsDir string) {
	doc, err := contract.LoadFile(file)
	if err != nil {
		rep.AddResult(report.ErrorResult("PARSE", nil, fmt.Sprintf("Failed to load contract: %v", err)))
		return
	}

	name := contract.Name(doc, file)
	runnerCfg, _ := doc["runner"].(map[string]any)
	if runnerCfg == nil {
		runnerCfg = map[string]any{}
	}
	execName, _ := runnerCfg["executor"].(string)
	if execName == "" {
		execName = executor.DefaultName
	}
	timeoutMS := intValue(runnerCfg["timeout_ms"], DefaultTimeoutMS)

	rc, err := r.buildContext(doc, file, filepath.Join(artifactsDir, name), projectSpec, runID)
	if err != nil {
		rep.AddResult(report.ErrorResult("EXECUTOR", nil, fmt.Sprintf("Executor setup failed: %v", err)))
		return
	}

	var tests []any
	switch v := doc["tests"].(type) {
	case nil:
	case []any:
		tests = v
	default:
		rep.AddResult(report.ErrorResult("INVALID", nil, "tests must be a list"))
		return
	}

	r.log.Debug().
		Str("contract", name).
		Str("executor", execName).
		Int("tests", len(tests)).
		Msg("running contract")

	isStatic := execName == executor.NameStatic
	var exec executor.Executor
	if isStatic {
		rc.Runner["ast"] = (&executor.StaticExecutor{}).Analyze(rc, runnerCfg, file)
	} else {
		created, err := r.registry.Create(execName)
		if err != nil {
			rep.AddResult(report.ErrorResult("EXECUTOR", nil, fmt.Sprintf("Unknown executor '%s': %v", execName, err)))
			return
		}
		if err := created.Setup(ctx, rc, runnerCfg); err != nil {
			rep.AddResult(report.ErrorResult("EXECUTOR", nil, fmt.Sprintf("Executor setup failed: %v", err)))
			return
		}
		exec = created
	}

	for _, entry := range tests {
		test, ok := entry.(map[string]any)
		if !ok {
			rep.AddResult(report.ErrorResult("UNKNOWN", nil, "test entry must be an object"))
			continue
		}
		testID, _ := test["id"].(string)
		if r.only != nil {
			if _, want := r.only[testID]; !want {
				continue
			}
		}

		var res report.TestResult
		testType, _ := test["type"].(string)
		switch {
		case testType == "static" && truthy(test["files"]):
			res = runStaticFileTest(test, testID, filepath.Dir(file), rc.Vars)
		case isStatic && truthy(test["steps"]):
			res = report.ErrorResult(testID, test["requirement"], "Static tests must have no steps")
		default:
			var stepResults []executor.StepResult
			var saved map[string]map[string]any
			if !isStatic {
				stepResults, saved = r.executeSteps(ctx, exec, rc, runnerCfg, testID, test["steps"], timeoutMS)
			}
			res = evaluateTest(rc, test, testID, stepResults, saved)
		}
		rep.AddResult(res)

		if r.opts.MatrixFailFast && (res.Status == "fail" || res.Status == "error") {
			r.log.Debug().Str("contract", name).Str("test", testID).Msg("fail fast: stopping contract")
			break
		}
	}

	if exec != nil {
		if err := exec.Teardown(ctx, rc, runnerCfg); err != nil {
			rep.AddResult(report.ErrorResult("TEARDOWN", nil, "Executor teardown failed"))
		}
	}
}

func (r *Runner) buildContext(doc map[string]any, file, artifactsDir, projectSpec, runID string) (*executor.RunContext, error) {
	if err := os.MkdirAll(artifactsDir, 0o755); err != nil {
		return nil, err
	}

	vars := make(map[string]any, len(r.opts.Vars))
	for k, v := range r.opts.Vars {
		vars[k] = v
	}
	if docVars, ok := doc["vars"].(map[string]any); ok {
		for k, v := range docVars {
			vars[k] = v
		}
	}

	return &executor.RunContext{
		ArtifactsDir: artifactsDir,
		WorkDir:      filepath.Dir(file),
		Vars:         vars,
		Env:          envFacts(),
		Runner: map[string]any{
			"tool_version":       spec.ToolVersion,
			"require_exact_spec": r.opts.RequireExact,
			"matrix_fail_fast":   r.opts.MatrixFailFast,
			"run_id":             runID,
		},
		Contract: map[string]any{
			"contract":     contract.Name(doc, file),
			"version":      doc["version"],
			"status":       doc["status"],
			"path":         file,
			"project_spec": nullableString(projectSpec),
		},
	}, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
