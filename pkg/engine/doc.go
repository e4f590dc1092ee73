// Package engine provides the core types and interfaces for the Cronverge
// convergence engine.
//
// # Overview
//
// Cronverge converges scheduled serverless deployments toward a declared
// document. A deployment is one function, its execution role, one schedule
// rule, the rule-to-function target binding, and the scheduler's invoke
// permission. Each run walks a 4-phase pipeline:
//
//  1. Observe - Query the provider for the live state of every sub-resource (Observer)
//  2. Plan - Diff desired against observed and order the actions (Planner)
//  3. Apply - Execute the actions sequentially with retry (Reconciler)
//  4. Report - Capture every outcome in a ConvergenceReport
//
// # Core Domain Types
//
// The package defines the types that represent the convergence model:
//
//   - DesiredDeployment: The declared target state, decoded from a manifest
//   - ObservedDeployment: The live snapshot, one field per sub-resource
//   - Action: A unit of work with kind, facet, reason, and field changes
//   - Plan: The ordered action list for one run
//   - ActionResult: The outcome of executing one action
//   - ConvergenceReport: The terminal artifact covering every action
//   - Event: Timeline events emitted while a run executes
//
// # Provider Interface
//
// Cloud control planes are abstracted behind the CloudProvider interface:
// one method per primitive, typed requests, classified errors, no internal
// retry. The AWS implementation lives in pkg/providers/aws.
//
// # Workflow Interfaces
//
// The pipeline is defined through small interfaces so each stage can be
// tested and replaced independently:
//
//   - Observer: Builds the observed snapshot from parallel facet lookups
//   - Planner: Pure diff from desired and observed to an ordered plan
//   - ActionExecutor: Dispatches one action and verifies its post-condition
//   - Reconciler: Sequential apply with per-action retry and backoff
//   - ReportSink: Persists reports for audit, never read for decisions
//   - EventPublisher: Receives the run timeline without blocking it
//
// # Error Classification
//
// Provider failures are classified for retry policy:
//
//   - Transient: Temporary failures that may succeed on retry
//   - Throttled: Rate limiting that requires a longer backoff
//   - Conflict: A concurrent writer; never retried within a run
//   - NotFound: Absence, normally folded into the observed snapshot
//   - PermissionDenied: Caller lacks rights; never retried
//
// Use the helper predicates to inspect errors:
//
//	if engine.IsRetryable(err) {
//	    // transient or throttled
//	}
//
// # Convergence Semantics
//
// Deployment names are the only join key between desired and observed
// state. Absence of an optional desired field means "leave the observed
// value alone"; the engine never deletes resources or environment keys the
// document does not mention. Plans are recomputed from a fresh observation
// every run, so re-running a converged deployment yields a plan of noops.
//
// # Example Usage
//
// Basic pipeline for converging a deployment:
//
//	eng := engine.New(provider,
//	    engine.WithReportSink(store),
//	    engine.WithRetryAttempts(3),
//	)
//
//	report, err := eng.Converge(ctx, desired)
//	if err != nil {
//	    // validation or observation failed before any mutation
//	}
//	os.Exit(report.Status.ExitCode())
//
// # Thread Safety
//
// Observer implementations fan out lookups internally; everything else runs
// sequentially within one run. Engines are safe for concurrent use as long
// as each Converge call receives its own context.
package engine
