package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultMaxAttempts is the per-action attempt budget, first try included.
	DefaultMaxAttempts = 3

	// DefaultActionTimeout bounds a single attempt, verification included.
	DefaultActionTimeout = 2 * time.Minute
)

// SequentialReconciler implements the Reconciler interface. Actions are
// dispatched strictly in plan order, one at a time: the fixed sequence is
// what makes each action's preconditions hold without cross-resource
// coordination, so there is no parallelism to exploit here.
type SequentialReconciler struct {
	// provider executes the underlying control-plane calls.
	provider CloudProvider

	// maxAttempts is the per-action attempt budget.
	maxAttempts int

	// actionTimeout bounds each attempt.
	actionTimeout time.Duration

	// events receives the run timeline, nil to disable.
	events EventPublisher

	// metrics receives counters and timings, nil to disable.
	metrics MetricsRecorder

	// backoff computes the delay before the next attempt.
	backoff func(attempt int, err error) time.Duration
}

// ReconcilerOption configures a SequentialReconciler.
type ReconcilerOption func(*SequentialReconciler)

// WithMaxAttempts sets the per-action attempt budget.
func WithMaxAttempts(n int) ReconcilerOption {
	return func(r *SequentialReconciler) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithActionTimeout sets the per-attempt timeout.
func WithActionTimeout(d time.Duration) ReconcilerOption {
	return func(r *SequentialReconciler) {
		if d > 0 {
			r.actionTimeout = d
		}
	}
}

// WithEventPublisher attaches a run event publisher.
func WithEventPublisher(p EventPublisher) ReconcilerOption {
	return func(r *SequentialReconciler) {
		r.events = p
	}
}

// WithMetricsRecorder attaches a metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) ReconcilerOption {
	return func(r *SequentialReconciler) {
		r.metrics = m
	}
}

// WithBackoff replaces the backoff schedule.
func WithBackoff(fn func(attempt int, err error) time.Duration) ReconcilerOption {
	return func(r *SequentialReconciler) {
		if fn != nil {
			r.backoff = fn
		}
	}
}

// NewReconciler creates a sequential reconciler over the given provider.
func NewReconciler(provider CloudProvider, opts ...ReconcilerOption) *SequentialReconciler {
	r := &SequentialReconciler{
		provider:      provider,
		maxAttempts:   DefaultMaxAttempts,
		actionTimeout: DefaultActionTimeout,
		backoff:       backoffDelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Apply executes the plan and returns the convergence report. A terminal
// action failure halts the remaining mutating actions; cancellation between
// actions does the same. Successfully applied actions are never rolled back,
// the next run re-observes and converges the remainder.
func (r *SequentialReconciler) Apply(
	ctx context.Context,
	desired *DesiredDeployment,
	observed *ObservedDeployment,
	plan *Plan,
) (*ConvergenceReport, error) {
	if plan == nil {
		return nil, NewPlanError("plan", "plan is nil")
	}
	if desired == nil {
		return nil, NewPlanError("desired", "desired deployment is nil")
	}

	report := &ConvergenceReport{
		RunID:      uuid.New().String(),
		Deployment: desired.Name,
		StartedAt:  time.Now(),
		Results:    make([]ActionResult, 0, len(plan.Actions)),
	}

	log.Info().
		Str("run_id", report.RunID).
		Str("deployment", desired.Name).
		Int("actions", len(plan.Actions)).
		Int("mutations", len(plan.MutatingActions())).
		Msg("Starting convergence run")

	r.publishEvent(ctx, report.RunID, desired.Name, "", EventTypeRunStarted,
		fmt.Sprintf("Converging %s: %d actions planned", desired.Name, len(plan.Actions)))

	executor := NewExecutor(r.provider, desired, observed)

	var halted *CloudError
	for _, action := range plan.Actions {
		if action.Kind == ActionNoop {
			report.Results = append(report.Results, ActionResult{
				Action:    action,
				Outcome:   OutcomeApplied,
				Attempts:  0,
				StartedAt: time.Now(),
			})
			continue
		}

		if halted != nil {
			report.Results = append(report.Results, r.skippedResult(action,
				"earlier action failed", halted))
			continue
		}

		if err := ctx.Err(); err != nil {
			halted = cancellationError(err)
			report.Results = append(report.Results, r.skippedResult(action,
				"run cancelled", halted))
			continue
		}

		result := r.executeAction(ctx, report.RunID, desired.Name, executor, action)
		report.Results = append(report.Results, result)

		if r.metrics != nil {
			r.metrics.RecordAction(result)
		}
		if result.Outcome == OutcomeFailed {
			halted = result.Error
		}
	}

	report.CompletedAt = time.Now()
	report.Duration = report.CompletedAt.Sub(report.StartedAt)
	report.Summary = reportSummary(report.Results)
	report.Status = terminalStatus(report.Summary)
	if halted != nil {
		report.FailureReason = halted.Error()
	}

	r.finishRun(ctx, report)
	return report, nil
}

// executeAction runs one mutating action through the retry loop. Each
// attempt executes the provider call and then verifies the post-condition
// under a shared per-attempt timeout. Only transient and throttled failures
// are retried; conflicts signal a concurrent writer and permission failures
// cannot succeed again without operator intervention.
func (r *SequentialReconciler) executeAction(
	ctx context.Context,
	runID, deployment string,
	executor ActionExecutor,
	action Action,
) ActionResult {
	result := ActionResult{
		Action:    action,
		StartedAt: time.Now(),
	}

	r.publishEvent(ctx, runID, deployment, string(action.Kind), EventTypeActionStarted,
		fmt.Sprintf("Applying %s: %s", action.Kind, action.Reason))

	var lastErr error
retry:
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		result.Attempts = attempt + 1

		attemptCtx, cancel := context.WithTimeout(ctx, r.actionTimeout)
		err := executor.Execute(attemptCtx, action)
		if err == nil {
			err = executor.Verify(attemptCtx, action)
		}
		cancel()

		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err

		log.Warn().
			Str("run_id", runID).
			Str("action", string(action.Kind)).
			Int("attempt", attempt+1).
			Int("max_attempts", r.maxAttempts).
			Err(err).
			Msg("Action attempt failed")

		if !IsRetryable(err) {
			break
		}
		if attempt == r.maxAttempts-1 {
			break
		}

		r.publishEvent(ctx, runID, deployment, string(action.Kind), EventTypeActionRetried,
			fmt.Sprintf("Retrying %s after failure (attempt %d/%d)", action.Kind, attempt+1, r.maxAttempts))
		if r.metrics != nil {
			r.metrics.RecordRetry(action.Kind)
		}

		select {
		case <-time.After(r.backoff(attempt, lastErr)):
		case <-ctx.Done():
			lastErr = cancellationError(ctx.Err())
			break retry
		}
	}

	result.Duration = time.Since(result.StartedAt)

	if lastErr != nil {
		result.Outcome = OutcomeFailed
		result.Error = toCloudError(lastErr)
		r.publishEvent(ctx, runID, deployment, string(action.Kind), EventTypeActionFailed,
			fmt.Sprintf("Action %s failed after %d attempts: %v", action.Kind, result.Attempts, lastErr))
		return result
	}

	result.Outcome = OutcomeApplied
	r.publishEvent(ctx, runID, deployment, string(action.Kind), EventTypeActionApplied,
		fmt.Sprintf("Applied %s in %d attempts", action.Kind, result.Attempts))
	return result
}

// skippedResult records an action the run never attempted.
func (r *SequentialReconciler) skippedResult(action Action, reason string, cause *CloudError) ActionResult {
	err := NewUnknownError(reason, cause).
		WithCode(ErrCodeDependencyFailed).
		WithResource(string(action.Facet))
	if cause != nil && cause.Code == ErrCodeCancelled {
		err.Code = ErrCodeCancelled
	}

	return ActionResult{
		Action:    action,
		Outcome:   OutcomeSkipped,
		Attempts:  0,
		Error:     err,
		StartedAt: time.Now(),
	}
}

// finishRun emits the terminal log line, event, and metrics for a report.
func (r *SequentialReconciler) finishRun(ctx context.Context, report *ConvergenceReport) {
	evt := log.Info()
	if !report.Status.Succeeded() {
		evt = log.Error()
	}
	evt.
		Str("run_id", report.RunID).
		Str("deployment", report.Deployment).
		Str("status", string(report.Status)).
		Int("applied", report.Summary.Applied).
		Int("skipped", report.Summary.Skipped).
		Int("failed", report.Summary.Failed).
		Dur("duration", report.Duration).
		Msg("Convergence run finished")

	r.publishEvent(ctx, report.RunID, report.Deployment, "", EventTypeRunCompleted,
		fmt.Sprintf("Run finished with status %s", report.Status))
	if r.metrics != nil {
		r.metrics.RecordRun(report)
	}
}

// publishEvent publishes a run timeline event without blocking execution.
func (r *SequentialReconciler) publishEvent(
	ctx context.Context,
	runID, deployment, action string,
	eventType EventType,
	message string,
) {
	if r.events == nil {
		return
	}

	event := &Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now(),
		RunID:      runID,
		Deployment: deployment,
		Action:     ActionKind(action),
		Message:    message,
		Level:      eventType.Severity(),
	}

	go func() {
		if err := r.events.Publish(ctx, event); err != nil {
			log.Debug().Err(err).Str("event_type", string(eventType)).
				Msg("Event publish failed")
		}
	}()
}

// backoffDelay computes the exponential backoff with jitter before the next
// attempt. Throttled failures start from a larger base since the provider
// asked us to slow down.
func backoffDelay(attempt int, err error) time.Duration {
	baseDelay := 1 * time.Second
	if IsThrottled(err) {
		baseDelay = 5 * time.Second
	}

	delay := baseDelay * time.Duration(math.Pow(2, float64(attempt)))
	if delay > time.Minute {
		delay = time.Minute
	}

	// Add jitter (25%) so synchronized runs spread out.
	jitter := time.Duration(float64(delay) * 0.25)
	delay = delay + jitter/2

	return delay
}

// reportSummary tallies results by outcome. Noops count as applied and are
// also tracked separately so the mutation count stays visible.
func reportSummary(results []ActionResult) ReportSummary {
	s := ReportSummary{Total: len(results)}
	for _, res := range results {
		switch res.Outcome {
		case OutcomeApplied:
			s.Applied++
			if res.Action.Kind == ActionNoop {
				s.Noop++
			}
		case OutcomeSkipped:
			s.Skipped++
		case OutcomeFailed:
			s.Failed++
		}
	}
	return s
}

// terminalStatus maps a result summary to the run status. A run that failed
// before applying any mutation reports Failed; a run that applied some
// mutations but not all reports PartiallyConverged.
func terminalStatus(s ReportSummary) ConvergenceStatus {
	if s.Failed == 0 && s.Skipped == 0 {
		return StatusConverged
	}
	if s.Applied-s.Noop > 0 {
		return StatusPartiallyConverged
	}
	return StatusFailed
}

// toCloudError normalizes any failure into a classified CloudError.
func toCloudError(err error) *CloudError {
	if err == nil {
		return nil
	}
	if cloudErr := AsCloudError(err); cloudErr != nil {
		return cloudErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTransientError("action timed out", err).WithCode(ErrCodeTimeout)
	}
	if errors.Is(err, context.Canceled) {
		return cancellationError(err)
	}
	return NewUnknownError("action failed", err).WithCode(ErrCodeInternal)
}

// cancellationError wraps a context cancellation as a non-retryable failure.
func cancellationError(err error) *CloudError {
	return NewUnknownError("run cancelled", err).WithCode(ErrCodeCancelled)
}
