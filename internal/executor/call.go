package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// TargetFunc is an in-process call target. The returned value becomes the
// step's value; a returned map carrying an "ok" key is treated as a full
// result envelope and passed through. A non-nil error is recorded as an
// exception fault with whatever output was written before the fault.
type TargetFunc func(call Call) (any, error)

// Call carries the inputs of one target invocation.
type Call struct {
	// Ctx is the run's context. Targets doing blocking work should honor
	// its cancellation.
	Ctx context.Context
	// Args are the step's `with` arguments.
	Args map[string]any
	// Stdout and Stderr capture output into the step result envelope.
	Stdout io.Writer
	Stderr io.Writer
	// Vars are the contract's merged variables.
	Vars map[string]any
}

var (
	targetsMu    sync.RWMutex
	targetGroups = make(map[string]map[string]TargetFunc)
)

// RegisterTargets makes a group of call targets available under the entry
// name contracts reference via runner.entry. Registering an entry twice is
// a hard error; targets are resolved at contract setup, never discovered.
func RegisterTargets(entry string, targets map[string]TargetFunc) error {
	if entry == "" {
		return fmt.Errorf("target entry name must not be empty")
	}
	targetsMu.Lock()
	defer targetsMu.Unlock()
	if _, dup := targetGroups[entry]; dup {
		return fmt.Errorf("target entry %q already registered", entry)
	}
	group := make(map[string]TargetFunc, len(targets))
	for name, fn := range targets {
		group[name] = fn
	}
	targetGroups[entry] = group
	return nil
}

func lookupTargets(entry string) map[string]TargetFunc {
	targetsMu.RLock()
	defer targetsMu.RUnlock()
	return targetGroups[entry]
}

// CallExecutor invokes registered in-process targets via the call and
// call_n actions. The target group is resolved once in Setup from
// runner.entry and dropped in Teardown.
type CallExecutor struct {
	targets map[string]TargetFunc
	symbol  string
}

func (e *CallExecutor) Supports(action string) bool {
	return action == "call" || action == "call_n"
}

// Setup resolves the target group named by runner.entry. The default call
// symbol may be set with runner.symbol.
func (e *CallExecutor) Setup(ctx context.Context, rc *RunContext, runnerCfg map[string]any) error {
	entry, _ := runnerCfg["entry"].(string)
	if entry == "" {
		return fmt.Errorf("call executor requires runner.entry")
	}
	targets := lookupTargets(entry)
	if targets == nil {
		return fmt.Errorf("no call targets registered for entry %q", entry)
	}
	e.targets = targets
	e.symbol, _ = runnerCfg["symbol"].(string)
	return nil
}

func (e *CallExecutor) ExecuteStep(ctx context.Context, rc *RunContext, runnerCfg map[string]any, testID string, step StepSpec, timeoutMS int) StepResult {
	switch step.Action {
	case "call":
		return e.doCall(ctx, rc, step)
	case "call_n":
		return e.doCallN(ctx, rc, step)
	default:
		return StepResult{ErrorCode: ErrUnsupportedAction, Message: fmt.Sprintf("Unknown action: %s", step.Action)}
	}
}

func (e *CallExecutor) Teardown(ctx context.Context, rc *RunContext, runnerCfg map[string]any) error {
	e.targets = nil
	e.symbol = ""
	return nil
}

// resolveSymbol picks the call target name: a per-step method override wins
// over the contract-wide runner.symbol.
func (e *CallExecutor) resolveSymbol(step StepSpec) string {
	if step.Method != "" {
		return step.Method
	}
	return e.symbol
}

func (e *CallExecutor) doCall(ctx context.Context, rc *RunContext, step StepSpec) StepResult {
	symbol := e.resolveSymbol(step)
	if symbol == "" {
		return StepResult{ErrorCode: ErrExecutorException, Message: "No call target: set runner.symbol or step.method"}
	}
	fn := e.targets[symbol]
	if fn == nil {
		return StepResult{ErrorCode: ErrSymbolNotFound, Message: "Symbol not found: " + symbol}
	}

	var stdout, stderr bytes.Buffer
	start := time.Now()
	value, err := fn(Call{Ctx: ctx, Args: step.With, Stdout: &stdout, Stderr: &stderr, Vars: rc.Vars})
	durationMS := int(time.Since(start).Milliseconds())

	if err != nil {
		return StepResult{
			ErrorCode: ErrException,
			Message:   err.Error(),
			Stdout:    stdout.String(),
			Stderr:    stderr.String(),
		}
	}

	if env, ok := envelope(value); ok {
		meta := map[string]any{"duration_ms": durationMS}
		if m, ok := env["meta"].(map[string]any); ok {
			for k, v := range m {
				meta[k] = v
			}
		}
		res := StepResult{
			OK:     true,
			Value:  env["value"],
			Meta:   meta,
			Stdout: stdout.String(),
			Stderr: stderr.String(),
		}
		if okField, isBool := env["ok"].(bool); isBool {
			res.OK = okField
		}
		if code, ok := env["error_code"].(string); ok {
			res.ErrorCode = code
		}
		if msg, ok := env["message"].(string); ok {
			res.Message = msg
		}
		return res
	}

	return StepResult{
		OK:     true,
		Value:  value,
		Meta:   map[string]any{"duration_ms": durationMS},
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
}

// doCallN invokes the target n times sequentially, discarding output and
// collecting per-call durations. The result is ok unless every iteration
// faulted; the first fault's code and message are surfaced either way and
// later faults are absorbed.
func (e *CallExecutor) doCallN(ctx context.Context, rc *RunContext, step StepSpec) StepResult {
	n := step.N
	if n == 0 {
		n = 1
	}
	symbol := e.resolveSymbol(step)
	if symbol == "" {
		return StepResult{ErrorCode: ErrExecutorException, Message: "No call target: set runner.symbol or step.method"}
	}
	fn := e.targets[symbol]
	if fn == nil {
		return StepResult{ErrorCode: ErrSymbolNotFound, Message: "Symbol not found: " + symbol}
	}

	var durations []float64
	var firstFault *StepResult

	for i := 0; i < n; i++ {
		start := time.Now()
		_, err := fn(Call{Ctx: ctx, Args: step.With, Stdout: io.Discard, Stderr: io.Discard, Vars: rc.Vars})
		if err != nil {
			if firstFault == nil {
				firstFault = &StepResult{ErrorCode: ErrException, Message: err.Error()}
			}
			continue
		}
		durations = append(durations, float64(time.Since(start).Microseconds())/1000.0)
	}

	if len(durations) == 0 {
		code, msg := ErrAllFailed, "All iterations failed"
		if firstFault != nil {
			code, msg = firstFault.ErrorCode, firstFault.Message
		}
		return StepResult{
			ErrorCode: code,
			Message:   msg,
			Value:     map[string]any{"n": n, "durations_ms": []any{}},
		}
	}

	sorted := append([]float64(nil), durations...)
	sort.Float64s(sorted)

	var sum float64
	for _, d := range durations {
		sum += d
	}

	p95 := sorted[len(sorted)-1]
	if len(sorted) >= 20 {
		p95 = sorted[int(float64(len(sorted))*0.95)]
	}
	p99 := sorted[len(sorted)-1]
	if len(sorted) >= 100 {
		p99 = sorted[int(float64(len(sorted))*0.99)]
	}

	value := map[string]any{
		"n":            n,
		"durations_ms": floatList(durations),
		"min_ms":       sorted[0],
		"max_ms":       sorted[len(sorted)-1],
		"mean_ms":      sum / float64(len(durations)),
		"p50_ms":       sorted[len(sorted)/2],
		"p95_ms":       p95,
		"p99_ms":       p99,
	}

	res := StepResult{OK: true, Value: value}
	if firstFault != nil {
		res.ErrorCode = firstFault.ErrorCode
		res.Message = firstFault.Message
	}
	return res
}

// envelope reports whether a target returned a result envelope, identified
// by the presence of an "ok" key.
func envelope(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	_, has := m["ok"]
	return m, has
}

func floatList(fs []float64) []any {
	out := make([]any, len(fs))
	for i, f := range fs {
		out[i] = f
	}
	return out
}
