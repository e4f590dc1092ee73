package policy

import (
	"time"

	"github.com/cronverge/cronverge/pkg/engine"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that should be reviewed but do not
	// block an apply.
	SeverityWarning Severity = "warning"

	// SeverityError is for violations that block operations.
	SeverityError Severity = "error"

	// SeverityCritical is for violations that must never reach a provider.
	SeverityCritical Severity = "critical"
)

// Blocks reports whether a violation of this severity stops an apply.
func (s Severity) Blocks() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Metadata contains additional policy metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// CreatedAt is when the policy was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the policy was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// Violation represents a single policy violation.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Field is the deployment field the violation concerns, when known.
	Field string `json:"field,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`
}

// Result represents the result of evaluating all policies against one
// deployment document.
type Result struct {
	// Allowed indicates if the deployment may proceed to apply. It is false
	// when any violation carries a blocking severity.
	Allowed bool `json:"allowed"`

	// Violations lists all policy violations, blocking and advisory.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists policies that failed to evaluate. An evaluation
	// failure never blocks; it is surfaced so broken policies get fixed.
	Warnings []string `json:"warnings,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// EvaluatedAt is when the evaluation ran.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// Blocking returns the violations that stop an apply.
func (r *Result) Blocking() []Violation {
	out := []Violation{}
	for _, v := range r.Violations {
		if v.Severity.Blocks() {
			out = append(out, v)
		}
	}
	return out
}

// Advisory returns the violations that are reported but do not block.
func (r *Result) Advisory() []Violation {
	out := []Violation{}
	for _, v := range r.Violations {
		if !v.Severity.Blocks() {
			out = append(out, v)
		}
	}
	return out
}

// Input is the document handed to Rego evaluation. Policies address it as
// input.deployment and input.context.
type Input struct {
	// Deployment is the desired deployment under evaluation.
	Deployment *engine.DesiredDeployment `json:"deployment"`

	// Context provides additional evaluation context.
	Context *Context `json:"context"`
}

// Context provides context information for policy evaluation.
type Context struct {
	// Environment is the environment the apply targets, e.g. "production".
	Environment string `json:"environment,omitempty"`

	// Operation is the operation being performed ("validate", "apply").
	Operation string `json:"operation,omitempty"`

	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`

	// DryRun indicates if this is a dry-run evaluation.
	DryRun bool `json:"dry_run"`
}
