package commands

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cronverge/cronverge/pkg/engine"
)

func newApplyCommand() *cobra.Command {
	var (
		file        string
		dryRun      bool
		storePath   string
		noPolicy    bool
		policyPaths []string
		environment string
		runTimeout  time.Duration
		maxAttempts int
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Converge live state toward the document",
		Long: `Converge the deployment toward the document in one run: observe, diff,
and apply the minimal ordered set of actions.

The run:
  - gates the document through policy evaluation
  - observes live provider state and computes the plan
  - applies mutating actions strictly in dependency order
  - retries transient failures per action, then halts the remainder

A halted run leaves every applied action in place. The next apply
re-observes and converges the rest; nothing is rolled back.

Exit codes: 0 converged, 1 failed, 2 partially converged.`,
		Example: `  # Converge a deployment
  cronverge apply -f deploy.yaml

  # Show the plan without mutating anything
  cronverge apply -f deploy.yaml --dry-run

  # Converge with a tighter budget and no history
  cronverge apply -f deploy.yaml --timeout 2m --max-attempts 1 --store ""`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			desired, err := loadDocument(ctx, file)
			if err != nil {
				return err
			}

			if !noPolicy {
				result, err := evaluatePolicies(ctx, desired, policyPaths, environment, "apply", dryRun)
				if err != nil {
					return err
				}
				renderViolations(result)
				if !result.Allowed {
					return &ExitError{Code: 1}
				}
			}

			provider, err := buildProvider(ctx)
			if err != nil {
				return err
			}

			if dryRun {
				eng := engine.New(provider)
				plan, observed, err := eng.Plan(ctx, desired)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(plan)
				}
				renderPlan(plan, observed)
				fmt.Println("\nDry run: nothing was applied.")
				return nil
			}

			opts := []engine.Option{
				engine.WithRunTimeout(runTimeout),
				engine.WithRetryAttempts(maxAttempts),
			}
			if storePath != "" {
				store, err := openStore(ctx, storePath)
				if err != nil {
					return fmt.Errorf("failed to open run store: %w", err)
				}
				defer store.Close()
				opts = append(opts,
					engine.WithReportSink(store),
					engine.WithEvents(store),
				)
			}

			eng := engine.New(provider, opts...)
			report, err := eng.Converge(ctx, desired)
			if report == nil {
				return err
			}
			if err != nil {
				log.Debug().Err(err).Msg("Run aborted before apply")
			}

			if jsonOutput {
				if err := printJSON(report); err != nil {
					return err
				}
			} else {
				renderReport(report)
			}

			if code := report.Status.ExitCode(); code != 0 {
				return &ExitError{Code: code}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "deployment document path")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "plan only, mutate nothing")
	cmd.Flags().StringVar(&storePath, "store", "cronverge.db", "run history database path (empty disables persistence)")
	cmd.Flags().BoolVar(&noPolicy, "no-policy", false, "skip the policy gate")
	cmd.Flags().StringSliceVar(&policyPaths, "policy-dir", nil, "extra policy files or directories")
	cmd.Flags().StringVar(&environment, "env", "", "environment name passed to policies")
	cmd.Flags().DurationVar(&runTimeout, "timeout", engine.DefaultRunTimeout, "bound on the full run")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", engine.DefaultMaxAttempts, "per-action attempt budget")
	cmd.MarkFlagRequired("file")

	return cmd
}
