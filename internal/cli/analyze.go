package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/contractdev/cdd/internal/analyze"
)

// AnalyzeOptions holds flags for the analyze command.
type AnalyzeOptions struct {
	*RootOptions
	JSON   bool
	Output string
}

// NewAnalyzeCommand creates the analyze command.
func NewAnalyzeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AnalyzeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "analyze <source>",
		Short: "Capture a source file as a frozen reference",
		Long: `Snapshot a source file into a reference directory: the file copy,
a structure.json manifest (hash, line count, size), a PATTERNS.md
template to fill in, and an elements.md summary.

Contracts can then hold a rewrite to the documented patterns, and
cdd compare verifies a generated file against the captured hash.

Exit codes:
  0 - Analysis written
  1 - Source missing or unsupported

Examples:
  cdd analyze src/billing.py
  cdd analyze src/server.go -o analysis/server
  cdd analyze src/billing.py --json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.JSON, "json", false, "emit the raw result as JSON")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "analysis", "output directory")

	return cmd
}

func runAnalyze(opts *AnalyzeOptions, source string, cmd *cobra.Command) error {
	if _, err := os.Stat(source); err != nil {
		return NewExitError(ExitFailure, fmt.Sprintf("Source not found: %s", source))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Analyzing: %s\n", source)

	result, err := analyze.Source(source, opts.Output)
	if err != nil {
		return WrapExitError(ExitFailure, "Analysis failed", err)
	}

	if wantsJSON(opts.RootOptions, opts.JSON) {
		return printJSON(cmd, result)
	}
	printSourceAnalysis(cmd.OutOrStdout(), result)
	return nil
}

func printSourceAnalysis(w io.Writer, result *analyze.Result) {
	fmt.Fprintln(w, "CDD Analyze - Source Reference")
	fmt.Fprintf(w, "  Source: %s\n", result.SourceName)
	fmt.Fprintf(w, "  Type:   %s\n", result.FileType)
	fmt.Fprintf(w, "  Lines:  %d\n", result.LineCount)
	fmt.Fprintf(w, "  Size:   %d bytes\n", result.SizeBytes)
	fmt.Fprintf(w, "  Hash:   %s...\n", shortHash(result.Hash))
	fmt.Fprintf(w, "  Output: %s\n", result.OutputDir)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Files created:")
	for _, f := range result.Files {
		fmt.Fprintf(w, "  • %s\n", f)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Next steps:")
	fmt.Fprintf(w, "  1. Review %s/source%s to understand the reference\n", result.OutputDir, filepath.Ext(result.SourceName))
	fmt.Fprintf(w, "  2. Fill in %s/PATTERNS.md with patterns to preserve\n", result.OutputDir)
	fmt.Fprintln(w, "  3. Write contract based on documented patterns")
	fmt.Fprintln(w, "  4. Implement against contract")
}
