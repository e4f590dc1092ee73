package engine_test

import (
	"time"

	"github.com/cronverge/cronverge/pkg/engine"
)

// Example_workflow demonstrates how the core types compose together in a
// typical convergence run.
func Example_workflow() {
	// 1. Declare the desired deployment
	desired := engine.DesiredDeployment{
		Name:        "nightly-export",
		Description: "Exports the nightly report to S3",
		Code: engine.CodeArtifact{
			S3Bucket: "deploy-artifacts",
			S3Key:    "nightly-export/v42.zip",
			SHA256:   "q1w2e3r4t5y6u7i8o9p0",
		},
		Runtime: "python3.12",
		Handler: "app.handler",
		Role: engine.RoleSpec{
			Statements: []engine.PolicyStatement{
				{
					Sid:       "ExportRead",
					Effect:    "Allow",
					Actions:   []string{"s3:GetObject"},
					Resources: []string{"arn:aws:s3:::exports/*"},
				},
			},
		},
		Resources:   engine.ResourceLimits{MemoryMB: 512, TimeoutSeconds: 300},
		Environment: map[string]string{"LOG_LEVEL": "info"},
		Schedule:    engine.ScheduleSpec{Expression: "rate(1 day)", Enabled: true},
	}

	// 2. Every sub-resource name derives from the deployment name
	names := engine.DeriveNames(desired.Name)

	// 3. Validate before touching the provider
	if err := desired.Validate(); err != nil {
		return
	}

	// 4. Diff against an observed snapshot; nothing deployed yet here
	observed := engine.ObservedDeployment{Name: desired.Name, ObservedAt: time.Now()}
	plan, err := engine.NewPlanner().Plan(&desired, &observed)
	if err != nil {
		return
	}

	// 5. The plan lists every action in dependency order, noops included
	for _, action := range plan.Actions {
		_ = action.Kind   // create_role, create_function, ...
		_ = action.Facet  // role, function, schedule, permission, target
		_ = action.Reason // "role does not exist", ...
	}

	// 6. Execution produces a result per action
	result := engine.ActionResult{
		Action:    plan.Actions[0],
		Outcome:   engine.OutcomeApplied,
		Attempts:  1,
		StartedAt: time.Now(),
		Duration:  2 * time.Second,
	}

	// 7. The report aggregates results into a terminal status
	report := engine.ConvergenceReport{
		RunID:      "run-001",
		Deployment: desired.Name,
		Status:     engine.StatusConverged,
		Results:    []engine.ActionResult{result},
		Summary:    engine.ReportSummary{Total: 1, Applied: 1},
	}

	// Types compose cleanly: DesiredDeployment -> Plan -> ActionResult -> ConvergenceReport
	_, _, _ = names, plan.Summary, report.Status.ExitCode()
}

// Example_errorHandling demonstrates error classification and handling.
func Example_errorHandling() {
	// Create different error types
	transientErr := engine.NewTransientError("network timeout", nil).
		WithResource("nightly-export").
		WithOperation("UpdateFunctionCode")

	conflictErr := engine.NewConflictError("role already exists", nil).
		WithCode(engine.ErrCodeAlreadyExists).
		WithDetail("role", "nightly-export-role")

	// Check error classification
	canRetry := engine.IsRetryable(transientErr)    // true - transient failures are retried
	cannotRetry := !engine.IsRetryable(conflictErr) // true - a conflict means a concurrent writer

	_, _, _ = transientErr, conflictErr, canRetry && cannotRetry
}

// Example_statusValidation demonstrates status enum validation.
func Example_statusValidation() {
	// Validate status enums
	status := engine.StatusPartiallyConverged
	isValid := status.Validate() == nil // Status is valid

	// Check status properties
	succeeded := status.Succeeded() // Only a fully converged run succeeds
	exitCode := status.ExitCode()   // Partial convergence exits 2

	// Facets carry the fixed dependency order
	first := engine.FacetRole.Order() // 0, the role precedes everything

	_, _, _, _ = isValid, succeeded, exitCode, first
}
