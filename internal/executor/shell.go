package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/contractdev/cdd/internal/jsonpath"
)

// ShellExecutor runs a command vector as a subprocess, without a shell.
// Arguments are variable-interpolated, the working directory is the
// contract's own directory, and the child sees CONTRACT, RUN_ID and
// ARTIFACTS_DIR in its environment.
type ShellExecutor struct{}

func (e *ShellExecutor) Supports(action string) bool {
	return action == "shell"
}

func (e *ShellExecutor) Setup(ctx context.Context, rc *RunContext, runnerCfg map[string]any) error {
	return os.MkdirAll(rc.ArtifactsDir, 0o755)
}

func (e *ShellExecutor) ExecuteStep(ctx context.Context, rc *RunContext, runnerCfg map[string]any, testID string, step StepSpec, timeoutMS int) StepResult {
	if step.Action != "shell" {
		return StepResult{
			ErrorCode: ErrUnsupportedAction,
			Message:   fmt.Sprintf("shell executor only handles 'shell', got: %s", step.Action),
		}
	}
	if len(step.Command) == 0 {
		return StepResult{ErrorCode: ErrMissingCommand, Message: "shell action requires 'command' field"}
	}

	argv := make([]string, len(step.Command))
	for i, arg := range step.Command {
		argv[i] = fmt.Sprint(jsonpath.Interpolate(arg, rc.Vars))
	}

	env := os.Environ()
	if overrides, ok := runnerCfg["env"].(map[string]any); ok {
		for k, v := range overrides {
			env = append(env, k+"="+fmt.Sprint(v))
		}
	}
	contractName, _ := rc.Contract["contract"].(string)
	runID, _ := rc.Runner["run_id"].(string)
	env = append(env,
		"CONTRACT="+contractName,
		"RUN_ID="+runID,
		"ARTIFACTS_DIR="+rc.ArtifactsDir,
	)

	runCtx := ctx
	if timeoutMS > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(timeoutMS)*time.Millisecond)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = rc.WorkDir
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	durationMS := int(time.Since(start).Milliseconds())

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return StepResult{
			ErrorCode: ErrTimeout,
			Message:   fmt.Sprintf("Command timed out after %dms", timeoutMS),
		}
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			// Spawn failure, not a command failure.
			return StepResult{ErrorCode: ErrException, Message: err.Error()}
		}
		code := exitErr.ExitCode()
		return StepResult{
			Value:     map[string]any{"returncode": code},
			ErrorCode: ErrNonzeroExit,
			Message:   fmt.Sprintf("Exit code: %d", code),
			Meta:      map[string]any{"duration_ms": durationMS},
			Stdout:    stdout.String(),
			Stderr:    stderr.String(),
		}
	}

	return StepResult{
		OK:     true,
		Value:  map[string]any{"returncode": 0},
		Meta:   map[string]any{"duration_ms": durationMS},
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
}

func (e *ShellExecutor) Teardown(ctx context.Context, rc *RunContext, runnerCfg map[string]any) error {
	return nil
}
