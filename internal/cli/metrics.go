package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/docstore/internal/datastore"
)

// NewMetricsCommand creates the metrics command.
func NewMetricsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics [scenarios-dir]",
		Short: "Print query and enrichment metrics in Prometheus format",
		Long: `Print the process's query and enrichment counters and histograms in the
Prometheus text format.

Metrics live for the duration of one process. Pass a scenarios directory to
run its scenarios first and report what they did.

Example:
  docstore metrics ./scenarios`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				files, err := findScenarioFiles(args[0], "")
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to find scenarios", err)
				}
				for _, file := range files {
					res := runScenario(file, false)
					if !res.Pass {
						fmt.Fprintf(cmd.ErrOrStderr(), "scenario %s failed\n", res.Name)
					}
				}
			}
			datastore.WritePrometheus(cmd.OutOrStdout())
			return nil
		},
	}

	return cmd
}
