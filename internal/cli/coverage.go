package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/contractdev/cdd/internal/coverage"
)

// CoverageOptions holds flags for the coverage command.
type CoverageOptions struct {
	*RootOptions
	JSON   bool
	Strict bool
}

// NewCoverageCommand creates the coverage command.
func NewCoverageCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CoverageOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "coverage [path]",
		Short: "Show requirement coverage",
		Long: `Count linked tests per declared requirement across the target.

A test may link a requirement declared in any contract under the same
target. The target defaults to the configured contracts directory.

Exit codes:
  0 - Success
  1 - Uncovered requirements with --strict
  2 - Command error

Examples:
  cdd coverage
  cdd coverage contracts/ --strict
  cdd coverage --json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCoverage(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.JSON, "json", false, "emit the raw result as JSON")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "fail when any requirement is uncovered")

	return cmd
}

func runCoverage(opts *CoverageOptions, args []string, cmd *cobra.Command) error {
	settings, err := loadSettings()
	if err != nil {
		return WrapExitError(ExitCommandError, "load settings", err)
	}
	target := settings.ContractsDir
	if len(args) == 1 {
		target = args[0]
	}

	cov := coverage.Compute(target)

	if wantsJSON(opts.RootOptions, opts.JSON) {
		if err := printJSON(cmd, cov); err != nil {
			return err
		}
	} else {
		printCoverage(cmd.OutOrStdout(), cov)
	}

	if opts.Strict && cov.UncoveredCount > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d uncovered requirement(s)", cov.UncoveredCount))
	}
	return nil
}

func printCoverage(w io.Writer, cov coverage.Report) {
	fmt.Fprintln(w, "CDD Coverage")
	for _, r := range cov.Requirements {
		if r.LinkedTests > 0 {
			fmt.Fprintf(w, "  ✓ %s covered by %d test(s)\n", r.ID, r.LinkedTests)
		} else {
			fmt.Fprintf(w, "  ✗ %s uncovered\n", r.ID)
		}
	}
	fmt.Fprintf(w, "Uncovered: %d\n", cov.UncoveredCount)
}
