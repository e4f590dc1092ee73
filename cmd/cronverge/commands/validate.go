package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cronverge/cronverge/pkg/engine"
	"github.com/cronverge/cronverge/pkg/policy"
)

func newValidateCommand() *cobra.Command {
	var (
		file        string
		policyPaths []string
		noPolicy    bool
		environment string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a deployment document",
		Long: `Validate a deployment document without contacting the provider.

This command checks:
  - document syntax (YAML manifest, CUE document, or Starlark script)
  - structural constraints, the schedule expression grammar included
  - policy compliance (built-in and user-supplied Rego policies)`,
		Example: `  # Validate a YAML manifest
  cronverge validate -f deploy.yaml

  # Validate a CUE document with variables
  cronverge validate -f deploy.cue --var env=prod

  # Include the team's policy directory
  cronverge validate -f deploy.yaml --policy-dir ./policies`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			desired, err := loadDocument(ctx, file)
			if err != nil {
				return err
			}
			if err := desired.Validate(); err != nil {
				return err
			}

			if noPolicy {
				fmt.Printf("%s: document is valid\n", file)
				return nil
			}

			result, err := evaluatePolicies(ctx, desired, policyPaths, environment, "validate", false)
			if err != nil {
				return err
			}

			if jsonOutput {
				if err := printJSON(result); err != nil {
					return err
				}
			} else {
				renderViolations(result)
				if result.Allowed {
					fmt.Printf("%s: document is valid (%d policies evaluated)\n",
						file, len(result.EvaluatedPolicies))
				}
			}

			if !result.Allowed {
				return &ExitError{Code: 1}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "deployment document path")
	cmd.Flags().StringSliceVar(&policyPaths, "policy-dir", nil, "extra policy files or directories")
	cmd.Flags().BoolVar(&noPolicy, "no-policy", false, "skip policy evaluation")
	cmd.Flags().StringVar(&environment, "env", "", "environment name passed to policies")
	cmd.MarkFlagRequired("file")

	return cmd
}

// evaluatePolicies runs the policy engine over a desired deployment, loading
// any user-supplied policies on top of the built-in set.
func evaluatePolicies(
	ctx context.Context,
	desired *engine.DesiredDeployment,
	paths []string,
	environment, operation string,
	dryRun bool,
) (*policy.Result, error) {
	pe, err := policy.NewEngine(log.Logger)
	if err != nil {
		return nil, err
	}
	if len(paths) > 0 {
		if err := pe.LoadPolicies(ctx, paths); err != nil {
			return nil, err
		}
	}

	return pe.Evaluate(ctx, desired, &policy.Context{
		Environment: environment,
		Operation:   operation,
		DryRun:      dryRun,
	})
}

// renderViolations prints policy findings, blocking violations first.
func renderViolations(result *policy.Result) {
	printViolation := func(v policy.Violation) {
		line := fmt.Sprintf("  [%s] %s: %s", v.Severity, v.Policy, v.Message)
		if v.Field != "" {
			line += fmt.Sprintf(" (%s)", v.Field)
		}
		fmt.Println(line)
	}

	for _, v := range result.Blocking() {
		printViolation(v)
	}
	for _, v := range result.Advisory() {
		printViolation(v)
	}
	for _, warn := range result.Warnings {
		fmt.Printf("  [policy warning] %s\n", warn)
	}

	if !result.Allowed {
		fmt.Printf("Blocked: %d violations must be resolved\n", len(result.Blocking()))
	}
}
