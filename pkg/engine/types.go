package engine

import (
	"fmt"
	"time"
)

// DesiredDeployment is the declared target state for one deployable unit:
// a function, its execution role, a schedule rule, the scheduler's invoke
// permission, and the rule target binding. It is immutable once passed into
// a reconciliation run; a new run takes a new document.
type DesiredDeployment struct {
	// Name is the unique identifier for the deployment. It is the sole join
	// key across all sub-resources; identity is never inferred from content.
	Name string `json:"name"`

	// Description is an optional human-readable description.
	Description string `json:"description,omitempty"`

	// Code is the reference to the code artifact and its content digest.
	Code CodeArtifact `json:"code"`

	// Runtime is the function runtime identifier (e.g., "python3.12").
	Runtime string `json:"runtime"`

	// Handler is the function entry point within the artifact.
	Handler string `json:"handler"`

	// Role is the execution role specification.
	Role RoleSpec `json:"role"`

	// VPC is the optional VPC placement. Nil means the function runs outside
	// any VPC the engine manages; an observed placement is left untouched.
	VPC *VPCPlacement `json:"vpc,omitempty"`

	// Resources are the function resource limits.
	Resources ResourceLimits `json:"resources"`

	// Environment maps variable names to values. Values may be references to
	// secret handles; the engine never persists or logs them.
	Environment map[string]string `json:"environment,omitempty"`

	// Schedule is the invocation schedule for the function.
	Schedule ScheduleSpec `json:"schedule"`

	// FailurePolicy is the optional failure handling policy.
	FailurePolicy *FailurePolicy `json:"failure_policy,omitempty"`

	// Tags are provider tags applied to created resources.
	Tags map[string]string `json:"tags,omitempty"`
}

// CodeArtifact is an opaque reference to a code bundle plus its content digest.
type CodeArtifact struct {
	// S3Bucket is the bucket holding the artifact.
	S3Bucket string `json:"s3_bucket"`

	// S3Key is the object key of the artifact.
	S3Key string `json:"s3_key"`

	// S3ObjectVersion optionally pins a specific object version.
	S3ObjectVersion string `json:"s3_object_version,omitempty"`

	// SHA256 is the base64-encoded SHA-256 digest of the artifact, used to
	// detect code drift against the deployed function.
	SHA256 string `json:"sha256"`
}

// RoleSpec declares the execution role: who may assume it and what it may do.
type RoleSpec struct {
	// TrustedServices are the service principals allowed to assume the role.
	TrustedServices []string `json:"trusted_services"`

	// Statements are the inline policy statements attached to the role.
	// Compared as an order-independent set against the observed role.
	Statements []PolicyStatement `json:"statements"`
}

// PolicyStatement is a single permission statement in a role policy.
type PolicyStatement struct {
	// Sid is the optional statement identifier.
	Sid string `json:"sid,omitempty"`

	// Effect is "Allow" or "Deny".
	Effect string `json:"effect"`

	// Actions are the permitted or denied operations.
	Actions []string `json:"actions"`

	// Resources are the resource identifiers the statement applies to.
	Resources []string `json:"resources"`
}

// VPCPlacement pins the function into subnets and security groups.
type VPCPlacement struct {
	// SubnetIDs are the subnet identifiers, compared as a set.
	SubnetIDs []string `json:"subnet_ids"`

	// SecurityGroupIDs are the security group identifiers, compared as a set.
	SecurityGroupIDs []string `json:"security_group_ids"`
}

// ResourceLimits are the function resource limits.
type ResourceLimits struct {
	// MemoryMB is the memory limit in megabytes.
	MemoryMB int32 `json:"memory_mb"`

	// TimeoutSeconds is the execution timeout in seconds.
	TimeoutSeconds int32 `json:"timeout_seconds"`
}

// ScheduleSpec is the desired invocation schedule.
type ScheduleSpec struct {
	// Expression is a rate or cron expression, e.g. "rate(1 day)" or
	// "cron(0 3 * * ? *)".
	Expression string `json:"expression"`

	// Enabled controls whether the rule fires. A disabled rule is kept in
	// place so the schedule can be paused without losing its configuration.
	Enabled bool `json:"enabled"`
}

// FailurePolicy configures retry and dead-letter behavior for invocations.
type FailurePolicy struct {
	// MaxRetryAttempts is the number of times a failed invocation is retried
	// by the scheduler before being given up or dead-lettered.
	MaxRetryAttempts int32 `json:"max_retry_attempts"`

	// DeadLetterTarget is the optional ARN of a queue or topic that receives
	// failed invocations. When set, the function's dead-letter config is
	// diffed and the role is granted publish rights on the target.
	DeadLetterTarget string `json:"dead_letter_target,omitempty"`
}

// ObservedDeployment mirrors DesiredDeployment's shape but is sourced
// entirely from provider queries. A nil facet means the sub-resource does
// not exist; absence is representable, not an error.
type ObservedDeployment struct {
	// Name is the deployment name the snapshot was taken for.
	Name string `json:"name"`

	// Role is the observed execution role, or nil if absent.
	Role *ObservedRole `json:"role,omitempty"`

	// Function is the observed function, or nil if absent.
	Function *ObservedFunction `json:"function,omitempty"`

	// Rule is the observed schedule rule, or nil if absent.
	Rule *ObservedRule `json:"rule,omitempty"`

	// Targets are the targets currently bound to the rule.
	Targets []ObservedTarget `json:"targets,omitempty"`

	// Permission is the scheduler's observed invoke grant, or nil if absent.
	Permission *ObservedPermission `json:"permission,omitempty"`

	// ObservedAt is when the snapshot was taken.
	ObservedAt time.Time `json:"observed_at"`
}

// FullyAbsent returns true when no sub-resource exists yet, i.e. nothing has
// ever been deployed under this name.
func (o *ObservedDeployment) FullyAbsent() bool {
	return o.Role == nil && o.Function == nil && o.Rule == nil &&
		len(o.Targets) == 0 && o.Permission == nil
}

// ObservedRole describes an execution role as stored by the provider.
type ObservedRole struct {
	// Name is the role name.
	Name string `json:"name"`

	// ARN is the provider-assigned role identifier.
	ARN string `json:"arn"`

	// TrustedServices are the service principals in the trust policy.
	TrustedServices []string `json:"trusted_services,omitempty"`

	// Statements are the inline policy statements currently attached.
	Statements []PolicyStatement `json:"statements,omitempty"`
}

// ObservedFunction describes a deployed function as stored by the provider.
type ObservedFunction struct {
	// Name is the function name.
	Name string `json:"name"`

	// ARN is the provider-assigned function identifier.
	ARN string `json:"arn"`

	// CodeSHA256 is the digest of the currently deployed artifact.
	CodeSHA256 string `json:"code_sha256"`

	// Runtime is the configured runtime identifier.
	Runtime string `json:"runtime"`

	// Handler is the configured entry point.
	Handler string `json:"handler"`

	// RoleARN is the execution role currently bound to the function.
	RoleARN string `json:"role_arn"`

	// MemoryMB is the configured memory limit.
	MemoryMB int32 `json:"memory_mb"`

	// TimeoutSeconds is the configured execution timeout.
	TimeoutSeconds int32 `json:"timeout_seconds"`

	// Environment are the configured environment variables.
	Environment map[string]string `json:"environment,omitempty"`

	// VPC is the current VPC placement, or nil when not VPC-attached.
	VPC *VPCPlacement `json:"vpc,omitempty"`

	// DeadLetterTarget is the configured dead-letter ARN, if any.
	DeadLetterTarget string `json:"dead_letter_target,omitempty"`

	// LastModified is the provider's last modification timestamp.
	LastModified time.Time `json:"last_modified,omitempty"`
}

// ObservedRule describes a schedule rule as stored by the provider.
type ObservedRule struct {
	// Name is the rule name.
	Name string `json:"name"`

	// ARN is the provider-assigned rule identifier.
	ARN string `json:"arn"`

	// Expression is the schedule expression currently configured.
	Expression string `json:"expression"`

	// Enabled reports whether the rule is currently firing.
	Enabled bool `json:"enabled"`
}

// ObservedTarget describes a target bound to the schedule rule.
type ObservedTarget struct {
	// ID is the target identifier within the rule.
	ID string `json:"id"`

	// ARN is the invocation target, normally the function ARN.
	ARN string `json:"arn"`

	// MaxRetryAttempts is the configured retry budget for failed
	// invocations, or -1 when the provider default applies.
	MaxRetryAttempts int32 `json:"max_retry_attempts"`
}

// ObservedPermission describes the scheduler's invoke grant on the function.
type ObservedPermission struct {
	// StatementID is the permission statement identifier.
	StatementID string `json:"statement_id"`

	// Principal is the service principal holding the grant.
	Principal string `json:"principal"`

	// Action is the granted action, normally the invoke action.
	Action string `json:"action"`

	// SourceARN restricts the grant to invocations from this source.
	SourceARN string `json:"source_arn,omitempty"`
}

// Names holds the derived identifiers of every sub-resource of a deployment.
// All identity derives from the deployment name so that the name remains the
// sole join key.
type Names struct {
	// Function is the function name.
	Function string `json:"function"`

	// Role is the execution role name.
	Role string `json:"role"`

	// RolePolicy is the inline policy name attached to the role.
	RolePolicy string `json:"role_policy"`

	// Rule is the schedule rule name.
	Rule string `json:"rule"`

	// StatementID is the invoke permission statement identifier.
	StatementID string `json:"statement_id"`

	// TargetID is the rule target identifier.
	TargetID string `json:"target_id"`
}

// DeriveNames computes the sub-resource names for a deployment name.
func DeriveNames(deployment string) Names {
	return Names{
		Function:    deployment,
		Role:        deployment + "-role",
		RolePolicy:  deployment + "-policy",
		Rule:        deployment + "-schedule",
		StatementID: deployment + "-scheduler-invoke",
		TargetID:    deployment + "-target",
	}
}

// Action is a single reconciliation step produced by the diff: one typed
// provider mutation, or a noop recorded for audit completeness.
type Action struct {
	// Kind is the action type.
	Kind ActionKind `json:"kind"`

	// Facet is the sub-resource this action operates on.
	Facet Facet `json:"facet"`

	// Reason is the human-readable explanation for why the action was
	// planned, e.g. "code digest mismatch".
	Reason string `json:"reason"`

	// Changes lists the field-level differences behind the action.
	// Environment values are redacted.
	Changes []FieldChange `json:"changes,omitempty"`

	// DependsOn lists action kinds that must complete before this action.
	DependsOn []ActionKind `json:"depends_on,omitempty"`
}

// IsMutating returns true when the action issues a provider mutation.
func (a Action) IsMutating() bool {
	return a.Kind != ActionNoop
}

// FieldChange describes a single field-level difference between desired and
// observed state.
type FieldChange struct {
	// Path is the field path, e.g. ".resources.memory_mb".
	Path string `json:"path"`

	// Before is the observed value, redacted for sensitive paths.
	Before interface{} `json:"before,omitempty"`

	// After is the desired value, redacted for sensitive paths.
	After interface{} `json:"after,omitempty"`

	// Op describes the change operation (add, modify).
	Op ChangeOp `json:"op"`
}

// ChangeOp represents the kind of field-level change.
type ChangeOp string

const (
	// ChangeOpAdd indicates a value is being added where none existed.
	ChangeOpAdd ChangeOp = "add"

	// ChangeOpModify indicates an existing value is being changed.
	ChangeOpModify ChangeOp = "modify"
)

// Plan is the ordered action list for one run. Noop actions are included so
// the report accounts for every sub-resource.
type Plan struct {
	// ID is the unique identifier for this plan.
	ID string `json:"id"`

	// Deployment is the deployment name the plan was computed for.
	Deployment string `json:"deployment"`

	// CreatedAt is when the plan was computed.
	CreatedAt time.Time `json:"created_at"`

	// Actions are the reconciliation actions in dependency order.
	Actions []Action `json:"actions"`

	// Summary provides counts by action disposition.
	Summary PlanSummary `json:"summary"`
}

// HasChanges returns true when the plan contains at least one mutating action.
func (p *Plan) HasChanges() bool {
	for _, a := range p.Actions {
		if a.IsMutating() {
			return true
		}
	}
	return false
}

// MutatingActions returns the plan's non-noop actions in order.
func (p *Plan) MutatingActions() []Action {
	out := make([]Action, 0, len(p.Actions))
	for _, a := range p.Actions {
		if a.IsMutating() {
			out = append(out, a)
		}
	}
	return out
}

// PlanSummary provides statistics about a plan.
type PlanSummary struct {
	// Total is the total number of actions, noops included.
	Total int `json:"total"`

	// ToCreate is the number of create actions.
	ToCreate int `json:"to_create"`

	// ToUpdate is the number of update/put/grant/bind actions.
	ToUpdate int `json:"to_update"`

	// Noop is the number of sub-resources already matching desired state.
	Noop int `json:"noop"`
}

// ActionResult records the outcome of executing one planned action.
type ActionResult struct {
	// Action is the planned action this result belongs to.
	Action Action `json:"action"`

	// Outcome is the execution outcome.
	Outcome ActionOutcome `json:"outcome"`

	// Attempts is the number of attempts made, zero for noops and skips.
	Attempts int `json:"attempts"`

	// Error is the classified failure for failed actions.
	Error *CloudError `json:"error,omitempty"`

	// StartedAt is when execution of the action began.
	StartedAt time.Time `json:"started_at"`

	// Duration is the total time spent on the action including retries.
	Duration time.Duration `json:"duration"`
}

// ConvergenceReport is the terminal artifact of a run: every action outcome
// in order plus the overall status. It is the single source of truth for
// what the run did.
type ConvergenceReport struct {
	// RunID is the unique identifier for this run.
	RunID string `json:"run_id"`

	// Deployment is the deployment name the run converged.
	Deployment string `json:"deployment"`

	// Status is the overall run status.
	Status ConvergenceStatus `json:"status"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the run completed.
	CompletedAt time.Time `json:"completed_at"`

	// Duration is the total run duration.
	Duration time.Duration `json:"duration"`

	// Results are the per-action outcomes in plan order.
	Results []ActionResult `json:"results"`

	// Summary provides counts by outcome.
	Summary ReportSummary `json:"summary"`

	// FailureReason carries the run-level failure when the run aborted
	// before or outside action execution, e.g. an observation failure.
	FailureReason string `json:"failure_reason,omitempty"`
}

// ReportSummary provides statistics about a run.
type ReportSummary struct {
	// Total is the total number of actions in the plan.
	Total int `json:"total"`

	// Applied is the number of actions applied successfully, noops included.
	Applied int `json:"applied"`

	// Skipped is the number of actions not attempted.
	Skipped int `json:"skipped"`

	// Failed is the number of actions that failed terminally.
	Failed int `json:"failed"`

	// Noop is the number of recorded noops.
	Noop int `json:"noop"`
}

// Event is a timeline record emitted while a run executes.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Type is the event type.
	Type EventType `json:"type"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// RunID is the run this event belongs to.
	RunID string `json:"run_id"`

	// Deployment is the deployment name, if applicable.
	Deployment string `json:"deployment,omitempty"`

	// Action is the action kind, if the event concerns one action.
	Action ActionKind `json:"action,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the log level (info, warning, error).
	Level string `json:"level"`
}

// Validate checks the structural integrity of a desired deployment beyond
// what the manifest layer enforces. Violations are PlanErrors: the run must
// abort before any provider call.
func (d *DesiredDeployment) Validate() error {
	if d.Name == "" {
		return NewPlanError("name", "name is required")
	}
	if d.Code.S3Bucket == "" || d.Code.S3Key == "" {
		return NewPlanError("code", "artifact bucket and key are required")
	}
	if d.Runtime == "" {
		return NewPlanError("runtime", "runtime is required")
	}
	if d.Handler == "" {
		return NewPlanError("handler", "handler is required")
	}
	if len(d.Role.Statements) == 0 {
		return NewPlanError("role.statements", "at least one policy statement is required")
	}
	for i, s := range d.Role.Statements {
		if s.Effect != "Allow" && s.Effect != "Deny" {
			return NewPlanError(fmt.Sprintf("role.statements[%d].effect", i),
				fmt.Sprintf("effect must be Allow or Deny, got %q", s.Effect))
		}
		if len(s.Actions) == 0 {
			return NewPlanError(fmt.Sprintf("role.statements[%d].actions", i),
				"at least one action is required")
		}
	}
	if d.Resources.MemoryMB <= 0 {
		return NewPlanError("resources.memory_mb", "memory must be positive")
	}
	if d.Resources.TimeoutSeconds <= 0 {
		return NewPlanError("resources.timeout_seconds", "timeout must be positive")
	}
	if err := ValidateScheduleExpression(d.Schedule.Expression); err != nil {
		return err
	}
	if d.FailurePolicy != nil && d.FailurePolicy.MaxRetryAttempts < 0 {
		return NewPlanError("failure_policy.max_retry_attempts", "retry attempts must not be negative")
	}
	return nil
}
