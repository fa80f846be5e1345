package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/contractdev/cdd/internal/isolate"
	"github.com/contractdev/cdd/internal/logging"
	"github.com/contractdev/cdd/internal/paths"
	"github.com/contractdev/cdd/internal/runner"
)

// IsolateOptions holds flags for the isolate command.
type IsolateOptions struct {
	*RootOptions
	Project    string
	WorkDir    string
	Keep       bool
	KeepOnFail bool
	PathsOnly  bool
	DryRun     bool
}

// NewIsolateCommand creates the isolate command.
func NewIsolateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IsolateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "isolate <contract>",
		Short: "Run one contract in a disposable workspace",
		Long: `Run a single contract inside a fresh work directory: the contract
is copied into contracts/, the project trees it references are
symlinked in, paths are verified, tests run against workspace
artifacts, and the workspace is removed afterwards unless kept.

Exit codes:
  0 - Tests passed
  1 - Tests failed
  2 - Path verification failed
  3 - Contract parse error
  4 - Project root not detected
  5 - Invalid path or workspace error

Examples:
  cdd isolate contracts/core.yaml
  cdd isolate contracts/core.yaml --keep-on-fail
  cdd isolate contracts/core.yaml --paths-only
  cdd isolate contracts/core.yaml --dry-run -p /path/to/project`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIsolate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Project, "project", "p", "", "project root override")
	cmd.Flags().StringVarP(&opts.WorkDir, "work-dir", "w", "", "work directory override")
	cmd.Flags().BoolVarP(&opts.Keep, "keep", "k", false, "keep the work directory after the run")
	cmd.Flags().BoolVar(&opts.KeepOnFail, "keep-on-fail", false, "keep the work directory only on failure")
	cmd.Flags().BoolVar(&opts.PathsOnly, "paths-only", false, "stop after path verification")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "plan the workspace without creating it")

	return cmd
}

func runIsolate(opts *IsolateOptions, contractPath string, cmd *cobra.Command) error {
	w := cmd.OutOrStdout()
	log := logging.New(cmd.ErrOrStderr(), opts.Verbose)

	sb, err := isolate.Plan(contractPath, isolate.Options{
		Project:    opts.Project,
		WorkDir:    opts.WorkDir,
		Keep:       opts.Keep,
		KeepOnFail: opts.KeepOnFail,
		PathsOnly:  opts.PathsOnly,
		DryRun:     opts.DryRun,
		Logger:     &log,
	})
	if err != nil {
		return isolateExitError(err)
	}

	rule := strings.Repeat("=", 45)
	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "CDD Isolate: %s\n", filepath.Base(sb.ContractPath))
	fmt.Fprintf(w, "Project: %s\n", sb.ProjectRoot)
	fmt.Fprintf(w, "Work:    %s\n", sb.WorkDir)
	links := "(none)"
	if len(sb.LinkRoots) > 0 {
		links = strings.Join(sb.LinkRoots, ", ")
	}
	fmt.Fprintf(w, "Links:   %s\n", links)
	fmt.Fprintln(w, rule)

	if opts.DryRun {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Dry run - no changes made")
		return nil
	}

	if err := sb.Setup(); err != nil {
		return isolateExitError(err)
	}

	exit := runInSandbox(opts, sb, cmd, &log)

	cleaned := sb.Cleanup(exit)
	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
	result := "PASS"
	if exit != isolate.ExitSuccess {
		result = "FAIL"
	}
	fmt.Fprintf(w, "Result: %s\n", result)
	if cleaned {
		fmt.Fprintf(w, "Cleaned: %s\n", sb.WorkDir)
	} else {
		fmt.Fprintf(w, "Kept: %s\n", sb.WorkDir)
	}
	fmt.Fprintln(w, rule)

	switch exit {
	case isolate.ExitSuccess:
		return nil
	case isolate.ExitPathFailure:
		return NewExitError(exit, "path verification failed")
	default:
		return NewExitError(exit, "tests failed")
	}
}

// runInSandbox verifies paths and runs the contract inside the prepared
// workspace, returning the isolate exit code.
func runInSandbox(opts *IsolateOptions, sb *isolate.Sandbox, cmd *cobra.Command, log *zerolog.Logger) int {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w)
	verification, err := paths.Verify(sb.ContractsDir())
	if err != nil {
		fmt.Fprintf(w, "Error during execution: %v\n", err)
		return isolate.ExitTestFailure
	}
	if !verification.OK {
		printPaths(w, verification)
		return isolate.ExitPathFailure
	}
	if opts.PathsOnly {
		printPaths(w, verification)
		fmt.Fprintln(w, "✓ Path verification passed")
		return isolate.ExitSuccess
	}

	fmt.Fprintln(w)
	r := runner.New(runner.Options{
		ArtifactsRoot: sb.ArtifactsRoot(),
		Logger:        log,
	})
	rep, err := r.Run(cmd.Context(), sb.ContractsDir())
	if err != nil {
		fmt.Fprintf(w, "Error during execution: %v\n", err)
		return isolate.ExitTestFailure
	}
	printReport(w, rep)

	if rep.Summary.Failed > 0 || rep.Summary.Error > 0 {
		return isolate.ExitTestFailure
	}
	return isolate.ExitSuccess
}

// isolateExitError converts a failed isolate phase into an ExitError
// carrying the phase's exit code.
func isolateExitError(err error) error {
	var isoErr *isolate.Error
	if errors.As(err, &isoErr) {
		return NewExitError(isoErr.Code, isoErr.Message)
	}
	return WrapExitError(isolate.ExitInvalidPath, "isolate", err)
}
