package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultRunTimeout bounds a full convergence run from observation through
// the last action.
const DefaultRunTimeout = 10 * time.Minute

// Engine wires the observer, planner, and reconciler into the convergence
// pipeline: validate the desired document, observe live state, diff, apply.
// The engine holds no state between runs; every run re-observes the provider
// and decides from that snapshot alone.
type Engine struct {
	provider   CloudProvider
	observer   Observer
	planner    Planner
	reconciler Reconciler

	sink    ReportSink
	events  EventPublisher
	metrics MetricsRecorder

	runTimeout    time.Duration
	maxAttempts   int
	actionTimeout time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithObserver replaces the default state observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithPlanner replaces the default planner.
func WithPlanner(p Planner) Option {
	return func(e *Engine) { e.planner = p }
}

// WithReconciler replaces the default sequential reconciler.
func WithReconciler(r Reconciler) Option {
	return func(e *Engine) { e.reconciler = r }
}

// WithReportSink attaches a report sink. Sink failures are logged, never
// propagated: persistence is audit, not state.
func WithReportSink(s ReportSink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithEvents attaches a run event publisher.
func WithEvents(p EventPublisher) Option {
	return func(e *Engine) { e.events = p }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithRunTimeout bounds a full convergence run. Zero disables the bound.
func WithRunTimeout(d time.Duration) Option {
	return func(e *Engine) { e.runTimeout = d }
}

// WithRetryAttempts sets the per-action attempt budget used when the engine
// constructs its own reconciler.
func WithRetryAttempts(n int) Option {
	return func(e *Engine) { e.maxAttempts = n }
}

// WithAttemptTimeout sets the per-attempt timeout used when the engine
// constructs its own reconciler.
func WithAttemptTimeout(d time.Duration) Option {
	return func(e *Engine) { e.actionTimeout = d }
}

// New creates an engine over the given provider. Components not replaced by
// options get the default implementations.
func New(provider CloudProvider, opts ...Option) *Engine {
	e := &Engine{
		provider:      provider,
		runTimeout:    DefaultRunTimeout,
		maxAttempts:   DefaultMaxAttempts,
		actionTimeout: DefaultActionTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.observer == nil {
		e.observer = NewObserver(provider, 0)
	}
	if e.planner == nil {
		e.planner = NewPlanner()
	}
	if e.reconciler == nil {
		e.reconciler = NewReconciler(provider,
			WithMaxAttempts(e.maxAttempts),
			WithActionTimeout(e.actionTimeout),
			WithEventPublisher(e.events),
			WithMetricsRecorder(e.metrics),
		)
	}
	return e
}

// Observe returns the live snapshot of the named deployment.
func (e *Engine) Observe(ctx context.Context, name string) (*ObservedDeployment, error) {
	observed, err := e.observer.Observe(ctx, name)
	if e.metrics != nil {
		e.metrics.RecordObservation(name, err)
	}
	return observed, err
}

// Plan validates the desired document, observes live state, and returns the
// computed plan together with the snapshot it was diffed against. Nothing is
// mutated.
func (e *Engine) Plan(ctx context.Context, desired *DesiredDeployment) (*Plan, *ObservedDeployment, error) {
	if err := validateDesired(desired); err != nil {
		return nil, nil, err
	}

	observed, err := e.Observe(ctx, desired.Name)
	if err != nil {
		return nil, nil, err
	}

	plan, err := e.planner.Plan(desired, observed)
	if err != nil {
		return nil, nil, err
	}
	return plan, observed, nil
}

// Converge runs the full pipeline: validate, observe, plan, apply. The
// returned report is non-nil whenever the run got past validation; a failed
// observation or planning step yields a Failed report with no action results
// and the failure as the error. Apply-stage failures live inside the report,
// not the error.
func (e *Engine) Converge(ctx context.Context, desired *DesiredDeployment) (*ConvergenceReport, error) {
	if err := validateDesired(desired); err != nil {
		return nil, err
	}

	if e.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.runTimeout)
		defer cancel()
	}

	started := time.Now()

	observed, err := e.Observe(ctx, desired.Name)
	if err != nil {
		return e.abortedReport(ctx, desired.Name, started, err), err
	}

	log.Debug().
		Str("deployment", desired.Name).
		Bool("fully_absent", observed.FullyAbsent()).
		Msg("Observation complete, planning")

	plan, err := e.planner.Plan(desired, observed)
	if err != nil {
		return e.abortedReport(ctx, desired.Name, started, err), err
	}

	report, err := e.reconciler.Apply(ctx, desired, observed, plan)
	if err != nil {
		return e.abortedReport(ctx, desired.Name, started, err), err
	}

	e.saveReport(ctx, report)
	return report, nil
}

// abortedReport builds and persists the Failed report for a run that never
// reached action execution.
func (e *Engine) abortedReport(ctx context.Context, name string, started time.Time, cause error) *ConvergenceReport {
	completed := time.Now()
	report := &ConvergenceReport{
		RunID:         uuid.New().String(),
		Deployment:    name,
		Status:        StatusFailed,
		StartedAt:     started,
		CompletedAt:   completed,
		Duration:      completed.Sub(started),
		Results:       []ActionResult{},
		FailureReason: cause.Error(),
	}

	log.Error().
		Str("run_id", report.RunID).
		Str("deployment", name).
		Err(cause).
		Msg("Convergence run aborted before apply")

	if e.metrics != nil {
		e.metrics.RecordRun(report)
	}
	e.saveReport(ctx, report)
	return report
}

// saveReport persists a report to the sink when one is attached. The sink is
// an audit trail, so a write failure is logged and swallowed rather than
// turning a converged run into a failed one.
func (e *Engine) saveReport(ctx context.Context, report *ConvergenceReport) {
	if e.sink == nil || report == nil {
		return
	}
	if err := e.sink.SaveReport(ctx, report); err != nil {
		log.Warn().
			Err(err).
			Str("run_id", report.RunID).
			Msg("Report persistence failed")
	}
}

// validateDesired runs the structural validations that must pass before any
// provider call, the schedule expression included.
func validateDesired(desired *DesiredDeployment) error {
	if desired == nil {
		return NewPlanError("desired", "desired deployment is nil")
	}
	return desired.Validate()
}
