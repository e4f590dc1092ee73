package commands

import (
	"github.com/spf13/cobra"

	"github.com/cronverge/cronverge/pkg/engine"
)

func newObserveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "observe <deployment>",
		Short: "Show the live state of a deployment",
		Long: `Query the provider for the live state of every sub-resource of a
deployment: the execution role, the function, the schedule rule, the
invoke permission, and the target binding.

Observation never mutates anything and works for names that were never
deployed; absent sub-resources are reported as such.`,
		Example: `  # Snapshot the live state
  cronverge observe nightly-report

  # Machine-readable snapshot
  cronverge observe nightly-report --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			provider, err := buildProvider(ctx)
			if err != nil {
				return err
			}

			observer := engine.NewObserver(provider, 0)
			observed, err := observer.Observe(ctx, args[0])
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(observed)
			}
			renderObserved(observed)
			return nil
		},
	}

	return cmd
}
