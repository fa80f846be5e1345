package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/contractdev/cdd/internal/analyze"
)

// CompareOptions holds flags for the compare command.
type CompareOptions struct {
	*RootOptions
	JSON bool
}

// NewCompareCommand creates the compare command.
func NewCompareCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompareOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compare <original> <generated>",
		Short: "Compare two source reference analyses",
		Long: `Compare a captured reference analysis against a generated one.
Arguments are analysis directories or structure.json files. Source
references match only when their content hashes are equal.

Exit codes:
  0 - Files are identical
  1 - Files differ, or the analyses cannot be compared

Examples:
  cdd compare analysis/original analysis/generated
  cdd compare analysis/original/structure.json analysis/generated --json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompare(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.JSON, "json", false, "emit the raw result as JSON")

	return cmd
}

func runCompare(opts *CompareOptions, originalPath, generatedPath string, cmd *cobra.Command) error {
	original, err := analyze.Load(originalPath)
	if err != nil {
		return NewExitError(ExitFailure, err.Error())
	}
	generated, err := analyze.Load(generatedPath)
	if err != nil {
		return NewExitError(ExitFailure, err.Error())
	}

	origType := manifestType(original)
	genType := manifestType(generated)
	if origType != genType {
		return NewExitError(ExitFailure, fmt.Sprintf("Cannot compare %s with %s", origType, genType))
	}
	if origType != analyze.TypeSourceReference {
		return NewExitError(ExitFailure, fmt.Sprintf("unsupported analysis type: %s", origType))
	}

	diff := analyze.Compare(original, generated)

	if wantsJSON(opts.RootOptions, opts.JSON) {
		if err := printJSON(cmd, diff); err != nil {
			return err
		}
	} else {
		printComparison(cmd.OutOrStdout(), diff)
	}

	if !diff.Match {
		return NewExitError(ExitFailure, "files differ")
	}
	return nil
}

// manifestType reads the analysis type, defaulting like older manifests
// that carried no type field.
func manifestType(m map[string]any) string {
	if t, ok := m["type"].(string); ok {
		return t
	}
	return "pdf"
}

func printComparison(w io.Writer, diff analyze.Comparison) {
	fmt.Fprintln(w, "Source Reference Comparison")
	if diff.Match {
		fmt.Fprintln(w, "✓ Files are identical")
	} else {
		fmt.Fprintln(w, "✗ Files differ")
		fmt.Fprintf(w, "  Original hash:  %s...\n", shortHash(diff.OriginalHash))
		fmt.Fprintf(w, "  Generated hash: %s...\n", shortHash(diff.GeneratedHash))
		fmt.Fprintf(w, "  Original lines:  %d\n", diff.OriginalLines)
		fmt.Fprintf(w, "  Generated lines: %d\n", diff.GeneratedLines)
	}
	if !diff.FileTypeMatch {
		fmt.Fprintf(w, "✗ File type mismatch: %s vs %s\n", diff.OriginalType, diff.GeneratedType)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, diff.Summary)
}
