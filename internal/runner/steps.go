package runner

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/contractdev/cdd/internal/assertion"
	"github.com/contractdev/cdd/internal/executor"
)

// executeSteps runs a test's steps in order. Every step produces a result;
// results saved under save_as become top level names in the assertion
// context. Warmup steps execute but never save.
func (r *Runner) executeSteps(ctx context.Context, exec executor.Executor, rc *executor.RunContext, runnerCfg map[string]any, testID string, rawSteps any, timeoutMS int) ([]executor.StepResult, map[string]map[string]any) {
	saved := map[string]map[string]any{}
	if rawSteps == nil {
		return nil, saved
	}
	steps, ok := rawSteps.([]any)
	if !ok {
		return []executor.StepResult{{
			ErrorCode: assertion.ErrTypeMismatch,
			Message:   "steps must be a list",
		}}, saved
	}

	var results []executor.StepResult
	for _, raw := range steps {
		stepMap, ok := raw.(map[string]any)
		if !ok {
			results = append(results, executor.StepResult{
				ErrorCode: assertion.ErrTypeMismatch,
				Message:   "step must be an object",
			})
			continue
		}
		action := stringValue(stepMap["action"])
		saveAs := stringValue(stepMap["save_as"])

		if action == "wait" {
			seconds := floatValue(stepMap["seconds"])
			if seconds > 0 {
				sleepCtx(ctx, time.Duration(seconds*float64(time.Second)))
			}
			res := executor.StepResult{OK: true, Meta: map[string]any{"wait_s": seconds}}
			results = append(results, res)
			if saveAs != "" {
				saved[saveAs] = stepDict(res)
			}
			continue
		}

		step := executor.StepSpec{
			Action:  action,
			With:    mapValue(stepMap["with"]),
			SaveAs:  saveAs,
			Method:  stringValue(stepMap["method"]),
			N:       intValue(stepMap["n"], 0),
			Warmup:  boolValue(stepMap["warmup"]),
			Command: listValue(stepMap["command"]),
			Seconds: floatValue(stepMap["seconds"]),
		}

		var res executor.StepResult
		if !exec.Supports(step.Action) {
			res = executor.StepResult{
				ErrorCode: executor.ErrUnsupportedAction,
				Message:   "Action not supported: " + step.Action,
			}
		} else {
			started := time.Now()
			res = exec.ExecuteStep(ctx, rc, runnerCfg, testID, step, timeoutMS)
			elapsed := int(time.Since(started).Milliseconds())
			meta := make(map[string]any, len(res.Meta)+1)
			for k, v := range res.Meta {
				meta[k] = v
			}
			if _, ok := meta["duration_ms"]; !ok {
				meta["duration_ms"] = elapsed
			}
			res.Meta = meta
		}
		results = append(results, res)

		if step.SaveAs != "" && !step.Warmup {
			saved[step.SaveAs] = stepDict(res)
		}
	}
	return results, saved
}

// stepDict is the step result shape visible to assertions and reports.
func stepDict(res executor.StepResult) map[string]any {
	var errCode any
	if res.ErrorCode != "" {
		errCode = res.ErrorCode
	}
	meta := res.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	artifacts := res.Artifacts
	if artifacts == nil {
		artifacts = []any{}
	}
	var stdoutInt any
	if n, err := strconv.Atoi(strings.TrimSpace(res.Stdout)); err == nil && strings.TrimSpace(res.Stdout) != "" {
		stdoutInt = n
	}
	return map[string]any{
		"ok":         res.OK,
		"value":      res.Value,
		"error_code": errCode,
		"message":    res.Message,
		"meta":       meta,
		"stdout":     res.Stdout,
		"stdout_int": stdoutInt,
		"stderr":     res.Stderr,
		"artifacts":  artifacts,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func intValue(v any, fallback int) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return parsed
		}
	}
	return fallback
}

func floatValue(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func boolValue(v any) bool {
	b, _ := v.(bool)
	return b
}

func mapValue(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func listValue(v any) []any {
	l, _ := v.([]any)
	return l
}

// truthy mirrors loose boolean coercion for contract fields: empty
// strings, lists, and maps all count as absent.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	default:
		return true
	}
}
