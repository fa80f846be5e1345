package cli

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/contractdev/cdd/internal/report"
	"github.com/contractdev/cdd/internal/store"
)

// RunsListOptions holds flags for the runs list command.
type RunsListOptions struct {
	*RootOptions
	Limit int
}

// RunsShowOptions holds flags for the runs show command.
type RunsShowOptions struct {
	*RootOptions
	Verify bool
}

// NewRunsCommand creates the runs command group.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded runs",
	}
	cmd.AddCommand(newRunsListCommand(rootOpts))
	cmd.AddCommand(newRunsShowCommand(rootOpts))
	return cmd
}

func newRunsListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		Long: `List recorded runs from .cdd/history.db, newest first.

Exit codes:
  0 - Success
  2 - History database unavailable

Examples:
  cdd runs list
  cdd runs list --limit 5 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsList(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of runs to list")

	return cmd
}

func runRunsList(opts *RunsListOptions, cmd *cobra.Command) error {
	st, err := store.Open(store.DefaultPath("."))
	if err != nil {
		return WrapExitError(ExitCommandError, "open run history", err)
	}
	defer st.Close()

	runs, err := st.ListRuns(cmd.Context(), opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "list runs", err)
	}

	if opts.Format == "json" {
		return printJSON(cmd, runs)
	}

	w := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	for _, run := range runs {
		glyph := "✓"
		if run.Failed > 0 || run.Errors > 0 {
			glyph = "✗"
		}
		fmt.Fprintf(w, "%s %s  %s  %s  %d passed, %d failed, %d skipped, %d errored\n",
			glyph, run.RunID, run.StartedAt, run.Contract,
			run.Passed, run.Failed, run.Skipped, run.Errors)
	}
	return nil
}

func newRunsShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show <run_id>",
		Short: "Print a recorded run report",
		Long: `Print the stored report of a recorded run as JSON.

With --verify the report is first checked against the report schema;
violations are listed and the command fails.

Exit codes:
  0 - Report printed
  1 - Schema violations with --verify
  2 - Unknown run id or history database unavailable

Examples:
  cdd runs show run_1a2b3c4d5e
  cdd runs show run_1a2b3c4d5e --verify`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsShow(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Verify, "verify", false, "validate the report against the schema")

	return cmd
}

func runRunsShow(opts *RunsShowOptions, runID string, cmd *cobra.Command) error {
	st, err := store.Open(store.DefaultPath("."))
	if err != nil {
		return WrapExitError(ExitCommandError, "open run history", err)
	}
	defer st.Close()

	run, err := st.GetRun(cmd.Context(), runID)
	if errors.Is(err, sql.ErrNoRows) {
		return NewExitError(ExitCommandError, fmt.Sprintf("no run with id %s", runID))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "load run", err)
	}

	w := cmd.OutOrStdout()
	if opts.Verify {
		violations, err := report.Validate(run.Report)
		if err != nil {
			return WrapExitError(ExitCommandError, "verify report", err)
		}
		if len(violations) > 0 {
			for _, v := range violations {
				fmt.Fprintf(w, "✗ %s\n", v)
			}
			return NewExitError(ExitFailure, fmt.Sprintf("%d schema violation(s)", len(violations)))
		}
	}

	// Stored reports are already indented JSON.
	fmt.Fprintf(w, "%s\n", run.Report)
	return nil
}
