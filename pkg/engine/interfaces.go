package engine

import (
	"context"
)

// Observer builds the observed-state snapshot of a named deployment from
// provider queries. A missing sub-resource is represented as absent, not
// propagated as an error; the lookup failing for any reason other than
// not-found aborts with an ObserveError.
type Observer interface {
	// Observe queries every sub-resource of the deployment and aggregates
	// the results into one snapshot.
	Observe(ctx context.Context, name string) (*ObservedDeployment, error)
}

// Planner computes the ordered reconciliation plan from desired and observed
// state. It is a pure function of its inputs: no I/O, no provider calls.
type Planner interface {
	// Plan diffs desired against observed and returns the ordered action
	// list, noops included for audit completeness.
	Plan(desired *DesiredDeployment, observed *ObservedDeployment) (*Plan, error)
}

// ActionExecutor dispatches a single planned action against the provider and
// verifies its post-condition. Implementations carry the desired document
// and the derived names; the reconciler owns retries and sequencing.
type ActionExecutor interface {
	// Execute issues the provider mutation for the action.
	Execute(ctx context.Context, action Action) error

	// Verify re-queries the sub-resource to confirm the mutation landed,
	// defending against eventually-consistent provider reads. A mismatch
	// returns a transient CloudError so the attempt is retried.
	Verify(ctx context.Context, action Action) error
}

// Reconciler executes an ordered plan against the provider: sequential
// dispatch in plan order, per-action retry with backoff, post-condition
// verification, and a ConvergenceReport covering every action.
type Reconciler interface {
	// Apply executes the plan's actions strictly in order and returns the
	// convergence report. The observed snapshot the plan was computed from
	// is passed through so the executor can seed resolved identifiers and
	// merge live-only environment keys. A terminal action failure stops the
	// remaining plan; completed actions are never rolled back.
	Apply(ctx context.Context, desired *DesiredDeployment, observed *ObservedDeployment, plan *Plan) (*ConvergenceReport, error)
}

// ReportSink persists convergence reports for audit and history. The engine
// writes to the sink but never reads it to make decisions: observed truth is
// always recomputed from the provider.
type ReportSink interface {
	// SaveReport persists a finished convergence report.
	SaveReport(ctx context.Context, report *ConvergenceReport) error
}

// EventPublisher receives timeline events while a run executes. Publishing
// must not block or fail the run.
type EventPublisher interface {
	// Publish records a run timeline event.
	Publish(ctx context.Context, event *Event) error
}

// MetricsRecorder receives counters and timings from the engine. The nil
// recorder is valid; instrumentation is optional everywhere.
type MetricsRecorder interface {
	// RecordRun records a finished run and its terminal status.
	RecordRun(report *ConvergenceReport)

	// RecordAction records one finished action result.
	RecordAction(result ActionResult)

	// RecordRetry counts a retried attempt for an action kind.
	RecordRetry(kind ActionKind)

	// RecordObservation records an observation and whether it succeeded.
	RecordObservation(deployment string, err error)
}
