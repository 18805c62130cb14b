package app

import (
	"github.com/spf13/cobra"
)

// NewRootCommand creates the root command for the lopfuzz tool.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lopfuzz",
		Short: "A coverage-guided grey-box fuzzer.",
		Long:  `lopfuzz drives an AFL-compatible fork-server target with havoc/splice mutation and coverage-guided seed selection.`,
	}

	cmd.AddCommand(NewFuzzCommand())
	cmd.AddCommand(NewDryRunCommand())

	return cmd
}
