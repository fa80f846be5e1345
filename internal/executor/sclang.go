package executor

import (
	"context"
	"fmt"
	"os"
)

// SclangExecutor is the SuperCollider placeholder. It declares support for
// render_nrt and generic shell passthrough; renders always report
// not_implemented with the intended output shape left null, so contracts
// written against it keep working when rendering lands.
type SclangExecutor struct{}

func (e *SclangExecutor) Supports(action string) bool {
	return action == "render_nrt" || action == "shell"
}

func (e *SclangExecutor) Setup(ctx context.Context, rc *RunContext, runnerCfg map[string]any) error {
	return os.MkdirAll(rc.ArtifactsDir, 0o755)
}

func (e *SclangExecutor) ExecuteStep(ctx context.Context, rc *RunContext, runnerCfg map[string]any, testID string, step StepSpec, timeoutMS int) StepResult {
	switch step.Action {
	case "render_nrt":
		return e.renderNRT(step)
	case "shell":
		shell := &ShellExecutor{}
		return shell.ExecuteStep(ctx, rc, runnerCfg, testID, step, timeoutMS)
	default:
		return StepResult{ErrorCode: ErrUnsupportedAction, Message: fmt.Sprintf("Unknown action: %s", step.Action)}
	}
}

func (e *SclangExecutor) Teardown(ctx context.Context, rc *RunContext, runnerCfg map[string]any) error {
	return nil
}

func (e *SclangExecutor) renderNRT(step StepSpec) StepResult {
	synthdef := step.With["synthdef"]
	if synthdef == nil {
		synthdef = "unknown"
	}
	dur := step.With["dur_s"]
	if dur == nil {
		dur = 1.0
	}

	return StepResult{
		ErrorCode: ErrNotImplemented,
		Message:   fmt.Sprintf("sclang render_nrt not yet implemented (synthdef=%v, dur=%vs)", synthdef, dur),
		Value: map[string]any{
			"wav_path": nil,
			"hash":     nil,
			"metrics": map[string]any{
				"rms_db":    nil,
				"peak_dbfs": nil,
				"dc_offset": nil,
			},
		},
	}
}
