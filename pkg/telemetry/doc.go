// Package telemetry provides observability instrumentation for cronverge.
//
// The telemetry package integrates structured logging (zerolog), distributed
// tracing (OpenTelemetry), metrics (Prometheus), and event broadcasting into
// a unified system for monitoring convergence runs.
//
// # Architecture
//
// The telemetry system is built on four pillars:
//
//  1. Structured Logging - Context-aware logging with zerolog
//  2. Distributed Tracing - OpenTelemetry traces with multiple exporters
//  3. Metrics Collection - Prometheus metrics for operational insights
//  4. Event Broadcasting - Fan-out of run events to stores and listeners
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	go tel.StartMetricsServer()
//
// Add telemetry to context:
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
// The logger provides component-specific logging with automatic context
// propagation:
//
//	logger := tel.Logger.NewComponentLogger("engine")
//	logger = logger.WithRunID("run-123").WithDeployment("nightly-report")
//	logger.Info().Msg("Starting convergence run")
//	logger.WithError(err).Error().Msg("Run failed")
//
// Log levels: trace, debug, info, warn, error, fatal
//
// # Distributed Tracing
//
// Tracing provides visibility into run flow and provider latency:
//
//	ctx, span := tel.Tracer.StartRunSpan(ctx, runID, deployment)
//	defer span.End()
//
//	span.SetAttributes(
//	    telemetry.AttrRunStatus.String(string(report.Status)),
//	)
//
//	if err != nil {
//	    telemetry.RecordError(span, err)
//	}
//
// RecordError tags the span with the classified error class, so throttled
// provider calls are distinguishable from hard failures in trace backends.
//
// Supported exporters: OTLP/gRPC (production), stdout (development), none
// (testing).
//
// # Metrics
//
// Metrics implements the engine's MetricsRecorder, so passing it via
// engine.WithMetrics is all the wiring a run needs:
//
//	metrics, _ := telemetry.NewMetrics(cfg.Metrics)
//	eng := engine.New(provider, engine.WithMetrics(metrics))
//
// Provider call metrics come from wrapping the provider:
//
//	instrumented := telemetry.NewInstrumentedProvider(provider, "aws", metrics, tracer)
//	eng := engine.New(instrumented, engine.WithMetrics(metrics))
//
// Key metrics exposed at /metrics (default :9090):
//
//   - cronverge_runs_total{status}
//   - cronverge_run_duration_seconds{status}
//   - cronverge_actions_total{kind,outcome}
//   - cronverge_action_duration_seconds{kind}
//   - cronverge_action_retries_total{kind}
//   - cronverge_observations_total{result}
//   - cronverge_drift_detected_total{deployment}
//   - cronverge_provider_calls_total{operation,result}
//   - cronverge_provider_call_duration_seconds{operation}
//   - cronverge_active_runs
//
// # Event Broadcasting
//
// The Broadcaster implements the engine's EventPublisher and fans run events
// out to durable sinks and in-process subscribers:
//
//	events, _ := telemetry.NewBroadcaster(cfg.Events)
//	events.AddSink(store)
//	events.Subscribe(func(ev engine.Event) {
//	    fmt.Printf("%s %s\n", ev.Type, ev.Message)
//	}, telemetry.FilterByLevel("warning"))
//
//	eng := engine.New(provider, engine.WithEvents(events))
//
// Event filters: FilterByLevel, FilterByType, FilterByRunID,
// FilterByDeployment.
//
// # Configuration
//
// The package provides pre-configured setups for different environments:
//
//	// Development (verbose logging, stdout traces, full sampling)
//	cfg := telemetry.DevelopmentConfig()
//
//	// Production (JSON logs, OTLP traces, 10% sampling)
//	cfg := telemetry.ProductionConfig()
//
// # Graceful Shutdown
//
// Always shut down telemetry gracefully to flush pending data:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//
//	if err := tel.Shutdown(ctx); err != nil {
//	    log.Printf("Telemetry shutdown error: %v", err)
//	}
//
// Shutdown drains buffered events and exports pending spans. The metrics
// server keeps serving until the process exits so the final scrape still
// sees the last run.
package telemetry
