package telemetry_test

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/cronverge/cronverge/pkg/engine"
	"github.com/cronverge/cronverge/pkg/telemetry"
)

// Example_basicSetup demonstrates basic telemetry setup.
func Example_basicSetup() {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = "1.0.0"

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	// Serve /metrics until the process exits
	go tel.StartMetricsServer()

	ctx := tel.WithContext(context.Background())

	logger := telemetry.FromContext(ctx)
	logger.Info().Msg("Application started")

	// Output can vary, so we don't specify output for this example
}

// Example_structuredLogging demonstrates structured logging features.
func Example_structuredLogging() {
	cfg := telemetry.DevelopmentConfig()
	cfg.Logging.Output = "stdout"

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	// Component-specific logger
	logger := tel.Logger.NewComponentLogger("engine")

	// Add run context fields
	logger = logger.WithRunID("run-123").WithDeployment("nightly-report")

	logger.Debug().Msg("Observing live state")
	logger.Info().Msg("Plan computed")
	logger.Warn().Msg("Schedule expression drift detected")

	err := fmt.Errorf("rate exceeded")
	logger.WithError(err).Error().Msg("Provider call failed")

	// Output varies, no output specified
}

// Example_distributedTracing demonstrates distributed tracing usage.
func Example_distributedTracing() {
	cfg := telemetry.DevelopmentConfig()
	cfg.Tracing.Exporter = "stdout"

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	// Span covering the whole run
	ctx, span := tel.Tracer.StartRunSpan(ctx, "run-123", "nightly-report")
	defer span.End()

	span.SetAttributes(
		telemetry.AttrPlanID.String("plan-789"),
		attribute.Int("plan.actions", 5),
	)

	// Nested span for one provider call
	_, providerSpan := tel.Tracer.StartProviderSpan(ctx, "aws", "PutRule")
	defer providerSpan.End()

	time.Sleep(10 * time.Millisecond)

	telemetry.RecordSuccess(providerSpan)

	// Output varies, no output specified
}

// Example_metricsCollection demonstrates recording run metrics.
func Example_metricsCollection() {
	cfg := telemetry.DefaultConfig()

	metrics, _ := telemetry.NewMetrics(cfg.Metrics)

	// Record a completed run
	metrics.RecordRun(&engine.ConvergenceReport{
		RunID:      "run-123",
		Deployment: "nightly-report",
		Status:     engine.StatusConverged,
		Duration:   1200 * time.Millisecond,
		Summary:    engine.ReportSummary{Total: 6, Applied: 6, Noop: 4},
	})

	// Record one action outcome
	metrics.RecordAction(engine.ActionResult{
		Action:   engine.Action{Kind: engine.ActionPutScheduleRule, Facet: engine.FacetSchedule},
		Outcome:  engine.OutcomeApplied,
		Attempts: 1,
		Duration: 80 * time.Millisecond,
	})

	// Record a provider call
	metrics.RecordProviderCall("PutRule", nil, 75*time.Millisecond)

	fmt.Println("Metrics recorded successfully")
	// Output: Metrics recorded successfully
}

// Example_eventBroadcasting demonstrates publishing and subscribing to run
// events.
func Example_eventBroadcasting() {
	cfg := telemetry.DefaultConfig()
	cfg.Events.EnableAsync = false // Synchronous for example

	events, _ := telemetry.NewBroadcaster(cfg.Events)
	defer events.Shutdown(context.Background())

	events.Subscribe(func(event engine.Event) {
		fmt.Printf("event: %s %s\n", event.Type, event.Message)
	}, nil) // No filter, receive all events

	events.Publish(context.Background(), &engine.Event{
		Type:    engine.EventTypeRunStarted,
		RunID:   "run-123",
		Message: "convergence run started",
	})

	// Output: event: run_started convergence run started
}

// Example_eventFiltering demonstrates event filtering.
func Example_eventFiltering() {
	cfg := telemetry.DefaultConfig()
	cfg.Events.EnableAsync = false

	events, _ := telemetry.NewBroadcaster(cfg.Events)
	defer events.Shutdown(context.Background())

	// Only warnings and errors
	events.Subscribe(func(event engine.Event) {
		fmt.Printf("important: %s\n", event.Type)
	}, telemetry.FilterByLevel("warning"))

	// Only drift events
	events.Subscribe(func(event engine.Event) {
		fmt.Printf("drift: %s\n", event.Message)
	}, telemetry.FilterByType(engine.EventTypeDriftDetected))

	ctx := context.Background()
	events.Publish(ctx, &engine.Event{Type: engine.EventTypeRunStarted, Message: "run started"})
	events.Publish(ctx, &engine.Event{Type: engine.EventTypeDriftDetected, Message: "schedule expression mismatch"})
	events.Publish(ctx, &engine.Event{Type: engine.EventTypeActionFailed, Message: "PutRule failed"})

	// Output:
	// important: drift_detected
	// drift: schedule expression mismatch
	// important: action_failed
}

// Example_instrumentedOperation demonstrates the InstrumentedContext helper.
func Example_instrumentedOperation() {
	cfg := telemetry.DefaultConfig()
	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	ic := telemetry.StartOperation(ctx, "manifest.load",
		attribute.String("manifest.path", "deploy/nightly-report.yaml"),
	)
	defer ic.End(nil)

	ic.Logger.Debug().Msg("Parsing manifest")

	fmt.Println("Operation instrumentation complete")
	// Output: Operation instrumentation complete
}

// Example_productionConfiguration demonstrates production-ready configuration.
func Example_productionConfiguration() {
	cfg := telemetry.ProductionConfig()

	cfg.ServiceVersion = "1.2.3"

	// OTLP exporter behind a collector
	cfg.Tracing.Endpoint = "otel-collector.monitoring.svc.cluster.local:4317"
	cfg.Tracing.SamplingRate = 0.1

	cfg.Metrics.ListenAddress = ":9090"
	cfg.Events.BufferSize = 10000

	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	fmt.Println("Production configuration validated")
	// Output: Production configuration validated
}

// Example_multipleComponents demonstrates component-scoped loggers.
func Example_multipleComponents() {
	cfg := telemetry.DevelopmentConfig()
	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	engineLogger := tel.Logger.NewComponentLogger("engine")
	plannerLogger := tel.Logger.NewComponentLogger("planner")
	providerLogger := tel.Logger.NewComponentLogger("provider")

	engineLogger.Info().Msg("Engine initialized")
	plannerLogger.Info().Msg("Computing plan")
	providerLogger.Info().Msg("AWS clients ready")

	fmt.Println("Multi-component logging complete")
	// Output: Multi-component logging complete
}
