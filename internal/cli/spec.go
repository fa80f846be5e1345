package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/contractdev/cdd/internal/spec"
)

// SpecOptions holds flags for the spec command.
type SpecOptions struct {
	*RootOptions
	Print   bool
	Version bool
}

// NewSpecCommand creates the spec command.
func NewSpecCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SpecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "spec",
		Short: "Show the tool version or the embedded spec text",
		Long: `Show the tool version, or with --print the full embedded spec text.

Contracts pin a spec version (cdd_spec) and runs are gated against the
major.minor of this tool.

Exit codes:
  0 - Always

Examples:
  cdd spec
  cdd spec --print`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSpec(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Print, "print", false, "print the full spec text")
	cmd.Flags().BoolVar(&opts.Version, "version", false, "print the tool version")

	return cmd
}

func runSpec(opts *SpecOptions, cmd *cobra.Command) error {
	w := cmd.OutOrStdout()
	if opts.Print {
		fmt.Fprint(w, spec.Text())
		return nil
	}
	fmt.Fprintln(w, spec.ToolVersion)
	return nil
}
