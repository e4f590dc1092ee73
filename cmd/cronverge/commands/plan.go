package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cronverge/cronverge/pkg/engine"
)

func newPlanCommand() *cobra.Command {
	var (
		file             string
		outFile          string
		dotFile          string
		detailedExitCode bool
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Compute the convergence plan",
		Long: `Compute the actions a run would apply, without mutating anything.

The plan:
  - loads and validates the deployment document
  - observes the live state of every sub-resource
  - diffs desired against observed
  - orders the resulting actions by their dependencies`,
		Example: `  # Show pending changes
  cronverge plan -f deploy.yaml

  # Write the plan and its action graph
  cronverge plan -f deploy.cue --out plan.json --dot plan.dot

  # Exit 2 when changes are pending (CI drift gates)
  cronverge plan -f deploy.yaml --detailed-exit-code`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			desired, err := loadDocument(ctx, file)
			if err != nil {
				return err
			}

			provider, err := buildProvider(ctx)
			if err != nil {
				return err
			}

			eng := engine.New(provider)
			plan, observed, err := eng.Plan(ctx, desired)
			if err != nil {
				return err
			}

			log.Debug().
				Str("deployment", plan.Deployment).
				Int("actions", len(plan.Actions)).
				Bool("changes", plan.HasChanges()).
				Msg("Plan computed")

			if dotFile != "" {
				if err := os.WriteFile(dotFile, []byte(engine.ToDOT(plan)), 0o644); err != nil {
					return fmt.Errorf("failed to write DOT graph: %w", err)
				}
			}
			if outFile != "" {
				data, err := json.MarshalIndent(plan, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to encode plan: %w", err)
				}
				if err := os.WriteFile(outFile, data, 0o644); err != nil {
					return fmt.Errorf("failed to write plan: %w", err)
				}
			}

			if jsonOutput {
				if err := printJSON(plan); err != nil {
					return err
				}
			} else {
				renderPlan(plan, observed)
			}

			if detailedExitCode && plan.HasChanges() {
				return &ExitError{Code: 2}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "deployment document path")
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "write the plan as JSON to this file")
	cmd.Flags().StringVar(&dotFile, "dot", "", "write the action graph in DOT format to this file")
	cmd.Flags().BoolVar(&detailedExitCode, "detailed-exit-code", false, "exit 2 when the plan contains changes")
	cmd.MarkFlagRequired("file")

	return cmd
}
