package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cronverge/cronverge/pkg/config"
	"github.com/cronverge/cronverge/pkg/engine"
	"github.com/cronverge/cronverge/pkg/providers"
	"github.com/cronverge/cronverge/pkg/stores"

	// Registers the AWS provider factory.
	_ "github.com/cronverge/cronverge/pkg/providers/aws"
)

var (
	// Global flags
	providerName string
	region       string
	profile      string
	endpoint     string
	docVars      []string
	verbose      bool
	jsonOutput   bool
)

// ExitError carries a specific process exit code out of a command that
// completed its work. Apply uses it for partial convergence, plan for the
// detailed exit code.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cronverge",
		Short: "Cronverge - convergence engine for scheduled serverless deployments",
		Long: `Cronverge converges scheduled serverless deployments toward a single
declarative document: the function, its execution role, the schedule rule,
the invoke permission, and the target binding.

Every run observes live provider state, diffs it against the document, and
applies the minimal ordered set of idempotent actions. There is no state
file: the provider is the only source of truth.

Documents can be written as YAML manifests, CUE documents, or Starlark
scripts; policy gates (OPA/Rego) run before anything is applied.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVar(&providerName, "provider", "aws", "cloud provider to converge against")
	rootCmd.PersistentFlags().StringVar(&region, "region", "", "provider region (default from environment)")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "named credentials profile")
	rootCmd.PersistentFlags().StringVar(&endpoint, "endpoint", "", "override the provider endpoint (local stacks)")
	rootCmd.PersistentFlags().StringArrayVar(&docVars, "var", nil, "document variable as key=value (repeatable)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newApplyCommand())
	rootCmd.AddCommand(newObserveCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newWatchCommand(version))

	return rootCmd
}

// parseVars splits repeated --var key=value flags into a map.
func parseVars(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	vars := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid --var %q (expected key=value)", pair)
		}
		vars[key] = value
	}
	return vars, nil
}

// loadDocument loads a deployment document through the frontend matching its
// extension, applying any --var values.
func loadDocument(ctx context.Context, path string) (*engine.DesiredDeployment, error) {
	vars, err := parseVars(docVars)
	if err != nil {
		return nil, err
	}
	return config.LoadWithVars(ctx, path, vars)
}

// buildProvider constructs the CloudProvider selected by --provider.
func buildProvider(ctx context.Context) (engine.CloudProvider, error) {
	return providers.New(ctx, providerName, providers.Config{
		Region:   region,
		Profile:  profile,
		Endpoint: endpoint,
	})
}

// openStore opens the run history store, creating and migrating the schema
// on first use.
func openStore(ctx context.Context, path string) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// printJSON writes a value as indented JSON to stdout.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
