package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHistoryCommand() *cobra.Command {
	var (
		storePath  string
		deployment string
		limit      int
		runID      string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded convergence runs",
		Long: `List convergence runs from the local history store, or show one run in
detail with its per-action outcomes and event timeline.

History is an audit trail. It never feeds back into convergence
decisions; deleting the database loses nothing but the record.`,
		Example: `  # Recent runs across all deployments
  cronverge history

  # Runs for one deployment
  cronverge history --deployment nightly-report --limit 10

  # Full detail for one run
  cronverge history --run 550e8400-e29b-41d4-a716-446655440000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openStore(ctx, storePath)
			if err != nil {
				return fmt.Errorf("failed to open run store: %w", err)
			}
			defer store.Close()

			if runID != "" {
				run, err := store.GetRun(ctx, runID)
				if err != nil {
					return err
				}
				actions, err := store.ListActionsByRun(ctx, runID)
				if err != nil {
					return err
				}
				events, err := store.ListEventsByRun(ctx, runID)
				if err != nil {
					return err
				}

				if jsonOutput {
					report, err := store.GetReport(ctx, runID)
					if err != nil {
						return err
					}
					return printJSON(report)
				}
				renderRunDetail(run, actions, events)
				return nil
			}

			runs, err := store.ListRuns(ctx, deployment, limit, 0)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(runs)
			}
			renderRuns(runs)
			return nil
		},
	}

	cmd.Flags().StringVar(&storePath, "store", "cronverge.db", "run history database path")
	cmd.Flags().StringVar(&deployment, "deployment", "", "filter runs by deployment name")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	cmd.Flags().StringVar(&runID, "run", "", "show one run in detail by ID")

	return cmd
}
