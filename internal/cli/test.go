package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/contractdev/cdd/internal/logging"
	"github.com/contractdev/cdd/internal/report"
	"github.com/contractdev/cdd/internal/runner"
	"github.com/contractdev/cdd/internal/store"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	JSON             bool
	Artifacts        string
	Vars             []string
	Only             []string
	RequireExactSpec bool
	MatrixFailFast   bool
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test [path]",
		Short: "Run contract tests",
		Long: `Run every contract under the target and write a JSON report.

The target is a contracts directory or a single contract file; it
defaults to the configured contracts directory. Each run writes
<artifacts>/<run_id>/report.json and, unless history is disabled,
records the run in .cdd/history.db.

Exit codes:
  0 - All tests passed
  1 - One or more tests failed or errored
  2 - Command error (missing target, bad --var, etc.)

Examples:
  cdd test
  cdd test contracts/core.yaml --only T-001
  cdd test --var env=ci --artifacts out
  cdd test --require-exact-spec --json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTest(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.JSON, "json", false, "emit the report as JSON")
	cmd.Flags().StringVar(&opts.Artifacts, "artifacts", "", "artifacts root directory")
	cmd.Flags().StringArrayVar(&opts.Vars, "var", nil, "inject a variable as key=value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Only, "only", nil, "run only the given test id (repeatable)")
	cmd.Flags().BoolVar(&opts.RequireExactSpec, "require-exact-spec", false, "fail on any pinned spec difference")
	cmd.Flags().BoolVar(&opts.MatrixFailFast, "matrix-fail-fast", false, "stop a contract at its first failure")

	return cmd
}

func runTest(opts *TestOptions, args []string, cmd *cobra.Command) error {
	settings, err := loadSettings()
	if err != nil {
		return WrapExitError(ExitCommandError, "load settings", err)
	}

	target := settings.ContractsDir
	if len(args) == 1 {
		target = args[0]
	}
	artifacts := opts.Artifacts
	if artifacts == "" {
		artifacts = settings.ArtifactsRoot
	}
	requireExact := opts.RequireExactSpec
	if !cmd.Flags().Changed("require-exact-spec") {
		requireExact = settings.RequireExactSpec
	}

	vars, err := parseVars(opts.Vars)
	if err != nil {
		return NewExitError(ExitCommandError, err.Error())
	}

	log := logging.New(cmd.ErrOrStderr(), opts.Verbose)
	r := runner.New(runner.Options{
		ArtifactsRoot:  artifacts,
		Vars:           vars,
		OnlyTests:      opts.Only,
		RequireExact:   requireExact,
		MatrixFailFast: opts.MatrixFailFast,
		Logger:         &log,
	})

	rep, err := r.Run(cmd.Context(), target)
	if err != nil {
		return WrapExitError(ExitCommandError, "run contracts", err)
	}

	if settings.History {
		recordRun(cmd.Context(), rep, &log)
	}

	if wantsJSON(opts.RootOptions, opts.JSON) {
		if err := printJSON(cmd, rep); err != nil {
			return err
		}
	} else {
		printReport(cmd.OutOrStdout(), rep)
	}

	if rep.Summary.Failed > 0 || rep.Summary.Error > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d failed, %d errored", rep.Summary.Failed, rep.Summary.Error))
	}
	return nil
}

// parseVars splits repeated --var flags into the injected variable map.
// Values stay strings; contract vars override them at run time.
func parseVars(kvs []string) (map[string]any, error) {
	if len(kvs) == 0 {
		return nil, nil
	}
	vars := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("--var must be key=value, got: %s", kv)
		}
		vars[strings.TrimSpace(k)] = v
	}
	return vars, nil
}

// recordRun stores the run in the history database. Failures here are
// logged, never turned into test failures.
func recordRun(ctx context.Context, rep *report.Report, log *zerolog.Logger) {
	st, err := store.Open(store.DefaultPath("."))
	if err != nil {
		log.Warn().Err(err).Msg("run history unavailable")
		return
	}
	defer st.Close()
	if err := st.RecordRun(ctx, rep); err != nil {
		log.Warn().Err(err).Msg("could not record run")
	}
}

func printReport(w io.Writer, rep *report.Report) {
	fmt.Fprintln(w, "CDD Test Report")
	fmt.Fprintf(w, "  contract: %s\n", rep.Contract)
	fmt.Fprintf(w, "  run_id:   %s\n", rep.RunID)
	fmt.Fprintf(w, "  passed:   %d\n", rep.Summary.Passed)
	fmt.Fprintf(w, "  failed:   %d\n", rep.Summary.Failed)
	fmt.Fprintf(w, "  skipped:  %d\n", rep.Summary.Skipped)
	fmt.Fprintf(w, "  error:    %d\n", rep.Summary.Error)

	for _, warn := range rep.Warnings {
		fmt.Fprintf(w, "  ⚠ %s: %s\n", warn.Code, warn.Message)
	}
	for _, e := range rep.Errors {
		fmt.Fprintf(w, "  ✗ %s: %s\n", e.Code, e.Message)
	}

	if len(rep.Results) == 0 {
		return
	}

	fmt.Fprintln(w)
	for _, res := range rep.Results {
		line := fmt.Sprintf("%s %s %s", statusGlyph(res.Status), res.ID, res.Status)
		if req := requirementLabel(res.Requirement); req != "" {
			line += " [" + req + "]"
		}
		fmt.Fprintln(w, line)
		if res.Message != "" {
			fmt.Fprintf(w, "  %s\n", truncate(res.Message, 120))
		}
	}
}

// requirementLabel renders the loosely typed requirement field: one id,
// a list of ids, or nothing.
func requirementLabel(req any) string {
	switch v := req.(type) {
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
