package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/contractdev/cdd/internal/paths"
)

// PathsOptions holds flags for the paths command.
type PathsOptions struct {
	*RootOptions
	JSON bool
}

// NewPathsCommand creates the paths command.
func NewPathsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PathsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "paths [path]",
		Short: "Verify contract file paths resolve",
		Long: `Check that every file path referenced by the contracts exists on
disk, relative to each contract's own directory. Missing paths get a
suggestion when a nearby location holds the file.

Run this before cdd test to catch broken references early. The target
defaults to the configured contracts directory.

Exit codes:
  0 - All paths resolve
  1 - Missing paths or target not found
  2 - Command error (unreadable contract)

Examples:
  cdd paths
  cdd paths contracts/core.yaml --json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPaths(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.JSON, "json", false, "emit the raw result as JSON")

	return cmd
}

func runPaths(opts *PathsOptions, args []string, cmd *cobra.Command) error {
	settings, err := loadSettings()
	if err != nil {
		return WrapExitError(ExitCommandError, "load settings", err)
	}
	target := settings.ContractsDir
	if len(args) == 1 {
		target = args[0]
	}

	if _, err := os.Stat(target); err != nil {
		return NewExitError(ExitFailure, fmt.Sprintf("Path not found: %s", target))
	}

	result, err := paths.Verify(target)
	if err != nil {
		return WrapExitError(ExitCommandError, "verify paths", err)
	}

	if wantsJSON(opts.RootOptions, opts.JSON) {
		if err := printJSON(cmd, result); err != nil {
			return err
		}
	} else {
		printPaths(cmd.OutOrStdout(), result)
	}

	if !result.OK {
		return NewExitError(ExitFailure, fmt.Sprintf("%d path(s) missing", result.FailedPaths))
	}
	return nil
}

func printPaths(w io.Writer, result paths.Report) {
	rule := strings.Repeat("═", 60)
	for _, cr := range result.Results {
		fmt.Fprintln(w)
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "  Path Verification: %s\n", cr.Contract)
		fmt.Fprintf(w, "  Contract: %s\n", cr.ContractPath)
		fmt.Fprintln(w, rule)

		if len(cr.Passed) > 0 {
			fmt.Fprintf(w, "\n  ✓ %d paths OK:\n", len(cr.Passed))
			for _, p := range cr.Passed {
				fmt.Fprintf(w, "    ✓ %s\n", p)
			}
		}
		if len(cr.Failed) > 0 {
			fmt.Fprintf(w, "\n  ✗ %d paths FAILED:\n", len(cr.Failed))
			for _, f := range cr.Failed {
				fmt.Fprintf(w, "    ✗ %s\n", f.Path)
				if f.Suggestion != nil {
					fmt.Fprintf(w, "      └─ Did you mean: %s ?\n", *f.Suggestion)
				}
			}
		}

		fmt.Fprintln(w)
		if cr.OK {
			fmt.Fprintf(w, "  RESULT: PASS (%d files)\n", len(cr.Passed))
		} else {
			fmt.Fprintf(w, "  RESULT: FAIL (%d missing, %d found)\n", len(cr.Failed), len(cr.Passed))
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
	if result.OK {
		fmt.Fprintln(w, "  ALL CONTRACTS PASSED PATH VERIFICATION")
	} else {
		fmt.Fprintln(w, "  PATH VERIFICATION FAILED - Fix paths before running cdd test")
	}
	fmt.Fprintln(w, rule)
}
