package engine

import (
	"encoding/json"
	"fmt"
)

// ActionKind represents the type of a reconciliation action.
type ActionKind string

const (
	// ActionCreateRole creates the execution role with its trust policy.
	ActionCreateRole ActionKind = "create_role"

	// ActionUpdateRolePolicy rewrites the role's inline policy statements.
	ActionUpdateRolePolicy ActionKind = "update_role_policy"

	// ActionCreateFunction creates the function from the code artifact.
	ActionCreateFunction ActionKind = "create_function"

	// ActionUpdateFunctionCode replaces the deployed artifact.
	ActionUpdateFunctionCode ActionKind = "update_function_code"

	// ActionUpdateFunctionConfig updates runtime configuration: memory,
	// timeout, environment, VPC placement, handler, dead-letter target.
	ActionUpdateFunctionConfig ActionKind = "update_function_config"

	// ActionPutScheduleRule creates or rewrites the schedule rule.
	ActionPutScheduleRule ActionKind = "put_schedule_rule"

	// ActionGrantInvokePermission grants the scheduler principal the right
	// to invoke the function.
	ActionGrantInvokePermission ActionKind = "grant_invoke_permission"

	// ActionBindTarget binds the function as the rule's invocation target.
	ActionBindTarget ActionKind = "bind_target"

	// ActionNoop records that a sub-resource already matches desired state.
	ActionNoop ActionKind = "noop"
)

// Validate checks if the action kind is valid.
func (k ActionKind) Validate() error {
	switch k {
	case ActionCreateRole, ActionUpdateRolePolicy, ActionCreateFunction,
		ActionUpdateFunctionCode, ActionUpdateFunctionConfig,
		ActionPutScheduleRule, ActionGrantInvokePermission,
		ActionBindTarget, ActionNoop:
		return nil
	default:
		return fmt.Errorf("invalid action kind: %s", k)
	}
}

// IsCreate returns true for actions that bring a sub-resource into existence.
func (k ActionKind) IsCreate() bool {
	return k == ActionCreateRole || k == ActionCreateFunction
}

// Facet returns the sub-resource an action kind operates on.
func (k ActionKind) Facet() Facet {
	switch k {
	case ActionCreateRole, ActionUpdateRolePolicy:
		return FacetRole
	case ActionCreateFunction, ActionUpdateFunctionCode, ActionUpdateFunctionConfig:
		return FacetFunction
	case ActionPutScheduleRule:
		return FacetSchedule
	case ActionGrantInvokePermission:
		return FacetPermission
	case ActionBindTarget:
		return FacetTarget
	default:
		return ""
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (k ActionKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(k))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (k *ActionKind) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*k = ActionKind(str)
	return k.Validate()
}

// Facet represents one of the five sub-resources of a deployment.
type Facet string

const (
	// FacetRole is the execution role.
	FacetRole Facet = "role"

	// FacetFunction is the function itself.
	FacetFunction Facet = "function"

	// FacetSchedule is the schedule rule.
	FacetSchedule Facet = "schedule"

	// FacetPermission is the scheduler's invoke grant.
	FacetPermission Facet = "permission"

	// FacetTarget is the rule target binding.
	FacetTarget Facet = "target"
)

// Order returns the facet's position in the fixed dependency order:
// role before function before schedule before permission before target.
// Each later stage's provider call requires the former to already exist.
func (f Facet) Order() int {
	switch f {
	case FacetRole:
		return 0
	case FacetFunction:
		return 1
	case FacetSchedule:
		return 2
	case FacetPermission:
		return 3
	case FacetTarget:
		return 4
	default:
		return 5
	}
}

// Validate checks if the facet is valid.
func (f Facet) Validate() error {
	switch f {
	case FacetRole, FacetFunction, FacetSchedule, FacetPermission, FacetTarget:
		return nil
	default:
		return fmt.Errorf("invalid facet: %s", f)
	}
}

// AllFacets returns the facets in dependency order.
func AllFacets() []Facet {
	return []Facet{FacetRole, FacetFunction, FacetSchedule, FacetPermission, FacetTarget}
}

// ActionOutcome represents the execution outcome of one planned action.
type ActionOutcome string

const (
	// OutcomeApplied indicates the action completed, or was a noop whose
	// sub-resource already matched desired state.
	OutcomeApplied ActionOutcome = "applied"

	// OutcomeSkipped indicates the action was never attempted because an
	// earlier action failed or the run was cancelled.
	OutcomeSkipped ActionOutcome = "skipped"

	// OutcomeFailed indicates the action failed terminally after exhausting
	// its retry budget or hitting a non-retryable failure.
	OutcomeFailed ActionOutcome = "failed"
)

// Validate checks if the outcome is valid.
func (o ActionOutcome) Validate() error {
	switch o {
	case OutcomeApplied, OutcomeSkipped, OutcomeFailed:
		return nil
	default:
		return fmt.Errorf("invalid action outcome: %s", o)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (o ActionOutcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(o))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (o *ActionOutcome) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*o = ActionOutcome(str)
	return o.Validate()
}

// ConvergenceStatus represents the overall status of a run.
type ConvergenceStatus string

const (
	// StatusConverged indicates observed state matches desired state for
	// every sub-resource: all actions applied, or the plan was all noops.
	StatusConverged ConvergenceStatus = "converged"

	// StatusPartiallyConverged indicates at least one mutation was applied
	// before a terminal failure stopped the plan. The next run continues
	// converging; already-applied actions re-diff to noops.
	StatusPartiallyConverged ConvergenceStatus = "partially_converged"

	// StatusFailed indicates the run failed before any mutation landed:
	// observation broke, the document was invalid, or the first mutating
	// action failed terminally.
	StatusFailed ConvergenceStatus = "failed"
)

// IsTerminal returns true; every convergence status is final. The method
// exists so callers can treat the enum uniformly with other statuses.
func (s ConvergenceStatus) IsTerminal() bool {
	return true
}

// Succeeded returns true only for a fully converged run. Partial convergence
// is a valid, inspectable state but not success.
func (s ConvergenceStatus) Succeeded() bool {
	return s == StatusConverged
}

// ExitCode maps the status to a process exit code: converged 0, failed 1,
// partially converged 2.
func (s ConvergenceStatus) ExitCode() int {
	switch s {
	case StatusConverged:
		return 0
	case StatusPartiallyConverged:
		return 2
	default:
		return 1
	}
}

// Validate checks if the convergence status is valid.
func (s ConvergenceStatus) Validate() error {
	switch s {
	case StatusConverged, StatusPartiallyConverged, StatusFailed:
		return nil
	default:
		return fmt.Errorf("invalid convergence status: %s", s)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s ConvergenceStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *ConvergenceStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = ConvergenceStatus(str)
	return s.Validate()
}

// EventType represents the type of event in the run timeline.
type EventType string

const (
	// EventTypeRunStarted indicates a convergence run has started.
	EventTypeRunStarted EventType = "run_started"

	// EventTypeRunCompleted indicates a run finished with a final status.
	EventTypeRunCompleted EventType = "run_completed"

	// EventTypeObserved indicates the state snapshot was taken.
	EventTypeObserved EventType = "observed"

	// EventTypePlanned indicates the action plan was computed.
	EventTypePlanned EventType = "planned"

	// EventTypeActionStarted indicates an action dispatch began.
	EventTypeActionStarted EventType = "action_started"

	// EventTypeActionApplied indicates an action applied and verified.
	EventTypeActionApplied EventType = "action_applied"

	// EventTypeActionFailed indicates an action failed terminally.
	EventTypeActionFailed EventType = "action_failed"

	// EventTypeActionRetried indicates an attempt failed and will be retried.
	EventTypeActionRetried EventType = "action_retried"

	// EventTypeDriftDetected indicates the plan contains mutating actions.
	EventTypeDriftDetected EventType = "drift_detected"
)

// Severity returns the log level of the event type.
func (e EventType) Severity() string {
	switch e {
	case EventTypeActionFailed:
		return "error"
	case EventTypeActionRetried, EventTypeDriftDetected:
		return "warning"
	default:
		return "info"
	}
}
