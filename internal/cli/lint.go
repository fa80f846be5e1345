package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/contractdev/cdd/internal/lint"
	"github.com/contractdev/cdd/internal/logging"
)

// LintOptions holds flags for the lint command.
type LintOptions struct {
	*RootOptions
	JSON   bool
	Strict bool
}

// NewLintCommand creates the lint command.
func NewLintCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LintOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "lint [path]",
		Short: "Check contract structure",
		Long: `Check every contract under the target for structural problems:
missing required fields, bad status values, malformed requirement and
test entries, schema violations, and uncovered requirements.

The target defaults to the configured contracts directory.

Exit codes:
  0 - No findings (warnings allowed unless --strict)
  1 - Lint errors, or warnings with --strict
  2 - Command error

Examples:
  cdd lint
  cdd lint contracts/core.yaml
  cdd lint --strict --json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLint(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.JSON, "json", false, "emit the raw result as JSON")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "treat warnings as failures")

	return cmd
}

func runLint(opts *LintOptions, args []string, cmd *cobra.Command) error {
	settings, err := loadSettings()
	if err != nil {
		return WrapExitError(ExitCommandError, "load settings", err)
	}
	target := settings.ContractsDir
	if len(args) == 1 {
		target = args[0]
	}

	log := logging.New(cmd.ErrOrStderr(), opts.Verbose)
	res := lint.Contracts(target, lint.Options{Strict: opts.Strict, Logger: &log})

	if wantsJSON(opts.RootOptions, opts.JSON) {
		if err := printJSON(cmd, res); err != nil {
			return err
		}
	} else {
		printLint(cmd.OutOrStdout(), res)
	}

	if !res.OK {
		return NewExitError(ExitFailure, fmt.Sprintf("%d error(s), %d warning(s)", len(res.Errors), len(res.Warnings)))
	}
	return nil
}

func printLint(w io.Writer, res lint.Result) {
	status := "PASS"
	if !res.OK {
		status = "FAIL"
	}
	fmt.Fprintln(w, "CDD Lint")
	fmt.Fprintf(w, "  Status:    %s\n", status)
	fmt.Fprintf(w, "  Contracts: %d\n", res.ContractsChecked)
	fmt.Fprintf(w, "  Errors:    %d\n", len(res.Errors))
	fmt.Fprintf(w, "  Warnings:  %d\n", len(res.Warnings))

	if len(res.Errors) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Errors:")
		for _, e := range res.Errors {
			fmt.Fprintf(w, "  ✗ %s: %s\n", e.Code, e.Message)
		}
	}
	if len(res.Warnings) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Warnings:")
		for _, warn := range res.Warnings {
			fmt.Fprintf(w, "  ⚠ %s: %s\n", warn.Code, warn.Message)
		}
	}
}
