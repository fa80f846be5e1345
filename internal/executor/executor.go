// Package executor defines the step executor contract and the concrete
// executors that run contract test steps: in-process call targets, shell
// subprocesses, static file scanning, and the sclang placeholder.
//
// Executors are created fresh for every contract run. They may hold state
// between Setup and Teardown (a resolved call target table, for example)
// but must be safe to discard and recreate at any time.
package executor

import (
	"context"
)

// Executor names accepted in a contract's runner.executor field.
const (
	NameCall   = "call"
	NameShell  = "shell"
	NameStatic = "static"
	NameSclang = "sclang"

	// DefaultName is assumed when a contract names no executor.
	DefaultName = NameCall
)

// Error codes carried in StepResult.ErrorCode. These survive serialization
// into the report, so failures stay identifiable after the process exits.
const (
	ErrUnsupportedAction = "unsupported_action"
	ErrMissingCommand    = "missing_command"
	ErrSymbolNotFound    = "symbol_not_found"
	ErrException         = "exception"
	ErrExecutorException = "executor_exception"
	ErrTimeout           = "timeout"
	ErrNonzeroExit       = "nonzero_exit"
	ErrStaticNoSteps     = "static_no_steps"
	ErrNotImplemented    = "not_implemented"
	ErrAllFailed         = "all_failed"
)

// RunContext is the per-contract execution environment. Its Vars, Env,
// Runner and Contract maps are exposed to assertions as $.vars, $.env,
// $.runner and $.contract.
type RunContext struct {
	// ArtifactsDir is where executors may write files for this contract.
	ArtifactsDir string
	// WorkDir is the working directory baseline, the contract's directory.
	WorkDir string

	Vars     map[string]any
	Env      map[string]any
	Runner   map[string]any
	Contract map[string]any
}

// StepSpec is one parsed step from a contract test.
type StepSpec struct {
	Action  string
	With    map[string]any
	SaveAs  string
	Method  string
	N       int
	Warmup  bool
	Command []any
	Seconds float64
}

// StepResult is the standard step result envelope. Every step produces one,
// whether it succeeded or not; executors encode their own faults as error
// codes here instead of returning Go errors.
type StepResult struct {
	OK        bool
	Value     any
	ErrorCode string
	Message   string
	Meta      map[string]any
	Stdout    string
	Stderr    string
	Artifacts []any
}

// Executor is the capability interface every step executor satisfies.
//
// Setup runs once before a contract's tests and Teardown once after; errors
// from either become synthetic error results in the report rather than
// aborting the run. ExecuteStep never returns an error: executor faults are
// encoded in the StepResult's error code.
type Executor interface {
	// Supports reports whether this executor handles the given step action.
	Supports(action string) bool

	Setup(ctx context.Context, rc *RunContext, runnerCfg map[string]any) error

	ExecuteStep(ctx context.Context, rc *RunContext, runnerCfg map[string]any, testID string, step StepSpec, timeoutMS int) StepResult

	Teardown(ctx context.Context, rc *RunContext, runnerCfg map[string]any) error
}
