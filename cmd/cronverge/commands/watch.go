package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cronverge/cronverge/pkg/engine"
	"github.com/cronverge/cronverge/pkg/policy"
	"github.com/cronverge/cronverge/pkg/telemetry"
)

func newWatchCommand(version string) *cobra.Command {
	var (
		file        string
		interval    time.Duration
		metricsAddr string
		storePath   string
		noPolicy    bool
		policyPaths []string
		environment string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Converge continuously on an interval",
		Long: `Run the convergence loop until interrupted: every interval, re-read the
document, observe live state, and reconcile any drift.

Each tick is a full run. Out-of-band changes to the live resources are
detected and reverted; edits to the document file trigger an immediate
run instead of waiting out the interval. Prometheus metrics and the run
event stream are exposed while the watch is active, and policy files are
hot-reloaded on change.`,
		Example: `  # Reconcile drift every five minutes
  cronverge watch -f deploy.yaml

  # Tighter loop with history and metrics
  cronverge watch -f deploy.cue --interval 1m --store runs.db --metrics-addr :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg := telemetry.DefaultConfig()
			cfg.ServiceVersion = version
			cfg.Metrics.Enabled = metricsAddr != ""
			cfg.Metrics.ListenAddress = metricsAddr
			tel, err := telemetry.NewTelemetry(cfg)
			if err != nil {
				return err
			}
			ctx = tel.WithContext(ctx)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tel.Shutdown(shutdownCtx)
			}()

			go func() {
				if err := tel.StartMetricsServer(); err != nil {
					log.Error().Err(err).Msg("Metrics server failed")
				}
			}()

			// Warnings and errors from the run event stream go to the console
			// as they happen, retries and drift included.
			tel.Events.Subscribe(func(event engine.Event) {
				evt := log.Warn()
				if event.Level == "error" {
					evt = log.Error()
				}
				evt.
					Str("run_id", event.RunID).
					Str("deployment", event.Deployment).
					Str("event", string(event.Type)).
					Msg(event.Message)
			}, telemetry.FilterByLevel("warning"))

			opts := []engine.Option{
				engine.WithEvents(tel.Events),
				engine.WithMetrics(tel.Metrics),
			}
			if storePath != "" {
				store, err := openStore(ctx, storePath)
				if err != nil {
					return fmt.Errorf("failed to open run store: %w", err)
				}
				defer store.Close()
				tel.Events.AddSink(store)
				opts = append(opts, engine.WithReportSink(store))
			}

			var polEngine *policy.Engine
			if !noPolicy {
				polEngine, err = policy.NewEngine(log.Logger)
				if err != nil {
					return err
				}
				if len(policyPaths) > 0 {
					if err := polEngine.LoadPolicies(ctx, policyPaths); err != nil {
						return err
					}
					watcher := policy.NewLoader(log.Logger)
					err := watcher.Watch(ctx, policyPaths, func([]policy.Policy) error {
						if err := polEngine.ReloadPolicies(ctx); err != nil {
							return err
						}
						return polEngine.LoadPolicies(ctx, policyPaths)
					})
					if err != nil {
						log.Warn().Err(err).Msg("Policy hot reload unavailable")
					}
				}
			}

			provider, err := buildProvider(ctx)
			if err != nil {
				return err
			}
			instrumented := telemetry.NewInstrumentedProvider(provider, providerName, tel.Metrics, tel.Tracer)

			eng := engine.New(instrumented, opts...)

			log.Info().
				Str("file", file).
				Dur("interval", interval).
				Msg("Watch started")

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			docEvents := watchDocument(ctx, file)

			for {
				watchTick(ctx, eng, tel, polEngine, file, environment)

				select {
				case <-ctx.Done():
					log.Info().Msg("Watch stopped")
					return nil
				case <-ticker.C:
				case <-docEvents:
					log.Info().Str("file", file).Msg("Document changed, converging")
				}
			}
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "deployment document path")
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Minute, "time between convergence runs")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "metrics listen address (empty disables)")
	cmd.Flags().StringVar(&storePath, "store", "cronverge.db", "run history database path (empty disables persistence)")
	cmd.Flags().BoolVar(&noPolicy, "no-policy", false, "skip the policy gate")
	cmd.Flags().StringSliceVar(&policyPaths, "policy-dir", nil, "extra policy files or directories")
	cmd.Flags().StringVar(&environment, "env", "", "environment name passed to policies")
	cmd.MarkFlagRequired("file")

	return cmd
}

// watchTick performs one convergence run of the watch loop. Failures are
// logged, never fatal: the loop keeps its cadence and tries again on the
// next tick.
func watchTick(
	ctx context.Context,
	eng *engine.Engine,
	tel *telemetry.Telemetry,
	polEngine *policy.Engine,
	file, environment string,
) {
	desired, err := loadDocument(ctx, file)
	if err != nil {
		log.Error().Err(err).Str("file", file).Msg("Document load failed, skipping tick")
		return
	}

	if polEngine != nil {
		result, err := polEngine.Evaluate(ctx, desired, &policy.Context{
			Environment: environment,
			Operation:   "apply",
		})
		if err != nil {
			log.Error().Err(err).Msg("Policy evaluation failed, skipping tick")
			return
		}
		if !result.Allowed {
			for _, v := range result.Blocking() {
				log.Error().
					Str("policy", v.Policy).
					Str("field", v.Field).
					Msg(v.Message)
			}
			log.Error().Msg("Policy gate blocked the run, skipping tick")
			return
		}
	}

	tel.Metrics.RunStarted()
	report, err := eng.Converge(ctx, desired)
	tel.Metrics.RunFinished()
	if report == nil {
		log.Error().Err(err).Msg("Run failed before observation")
		return
	}

	if drifted(report) {
		mutated := report.Summary.Total - report.Summary.Noop
		_ = tel.Events.Publish(ctx, &engine.Event{
			Type:       engine.EventTypeDriftDetected,
			RunID:      report.RunID,
			Deployment: report.Deployment,
			Message:    fmt.Sprintf("Live state diverged on %d of %d sub-resources", mutated, report.Summary.Total),
		})
	}

	evt := log.Info()
	if !report.Status.Succeeded() {
		evt = log.Error()
	}
	evt.
		Str("run_id", report.RunID).
		Str("status", string(report.Status)).
		Int("applied", report.Summary.Applied-report.Summary.Noop).
		Int("noop", report.Summary.Noop).
		Msg("Watch tick finished")
}

// drifted reports whether a run found live state diverging from the document.
func drifted(report *engine.ConvergenceReport) bool {
	return report.Summary.Total > report.Summary.Noop
}

// watchDocument signals edits to the document file, coalescing save bursts
// into at most one pending run. The parent directory is watched because
// editors replace files on save. Returns a nil channel when watching is
// unavailable; the interval loop still picks edits up on the next tick.
func watchDocument(ctx context.Context, file string) <-chan struct{} {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn().Err(err).Msg("Document watch unavailable")
		return nil
	}
	if err := watcher.Add(filepath.Dir(file)); err != nil {
		log.Warn().Err(err).Str("file", file).Msg("Document watch unavailable")
		_ = watcher.Close()
		return nil
	}

	changes := make(chan struct{}, 1)
	target := filepath.Clean(file)

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				select {
				case changes <- struct{}{}:
				default:
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return changes
}
