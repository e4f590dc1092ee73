package engine

import (
	"context"
)

// CloudProvider is the adapter over the cloud control-plane operations the
// engine invokes: one operation per provider primitive, each taking a typed
// request and returning the resulting resource descriptor or a classified
// CloudError. Implementations must not retry internally; retry policy
// belongs to the Reconciler so attempt counts and backoff stay observable
// in one place. One network call per invocation, no caching.
//
// This boundary is the only place provider-specific wire formats appear,
// and the only component holding provider credentials.
type CloudProvider interface {
	// GetRole looks up the execution role and its inline policy statements.
	GetRole(ctx context.Context, req GetRoleRequest) (*ObservedRole, error)

	// CreateRole creates the execution role with its trust policy.
	CreateRole(ctx context.Context, req CreateRoleRequest) (*ObservedRole, error)

	// PutRolePolicy writes the role's inline policy statements.
	PutRolePolicy(ctx context.Context, req PutRolePolicyRequest) error

	// GetFunction looks up the function configuration and code digest.
	GetFunction(ctx context.Context, req GetFunctionRequest) (*ObservedFunction, error)

	// CreateFunction creates the function from the code artifact.
	CreateFunction(ctx context.Context, req CreateFunctionRequest) (*ObservedFunction, error)

	// UpdateFunctionCode replaces the deployed artifact.
	UpdateFunctionCode(ctx context.Context, req UpdateFunctionCodeRequest) (*ObservedFunction, error)

	// UpdateFunctionConfig updates the function's runtime configuration.
	UpdateFunctionConfig(ctx context.Context, req UpdateFunctionConfigRequest) (*ObservedFunction, error)

	// GetRule looks up the schedule rule.
	GetRule(ctx context.Context, req GetRuleRequest) (*ObservedRule, error)

	// PutRule creates or rewrites the schedule rule.
	PutRule(ctx context.Context, req PutRuleRequest) (*ObservedRule, error)

	// ListTargets lists the targets bound to the schedule rule.
	ListTargets(ctx context.Context, req ListTargetsRequest) ([]ObservedTarget, error)

	// PutTargets binds the function as the rule's invocation target.
	PutTargets(ctx context.Context, req PutTargetsRequest) error

	// GetFunctionPolicy reads the function's resource policy statements.
	GetFunctionPolicy(ctx context.Context, req GetFunctionPolicyRequest) ([]ObservedPermission, error)

	// AddPermission grants a principal the right to invoke the function.
	AddPermission(ctx context.Context, req AddPermissionRequest) error
}

// SchedulerPrincipal is the service principal of the schedule rule engine;
// permission grants and target bindings are issued against it.
const SchedulerPrincipal = "events.amazonaws.com"

// InvokeAction is the provider action granted to the scheduler principal.
const InvokeAction = "lambda:InvokeFunction"

// GetRoleRequest contains the parameters for a GetRole operation.
type GetRoleRequest struct {
	// RoleName is the role to look up.
	RoleName string `json:"role_name"`

	// PolicyName is the inline policy whose statements are fetched alongside
	// the role. Empty skips the policy lookup.
	PolicyName string `json:"policy_name,omitempty"`
}

// CreateRoleRequest contains the parameters for a CreateRole operation.
type CreateRoleRequest struct {
	// RoleName is the role to create.
	RoleName string `json:"role_name"`

	// TrustedServices are the service principals allowed to assume the role.
	TrustedServices []string `json:"trusted_services"`

	// Description is the role description.
	Description string `json:"description,omitempty"`

	// Tags are provider tags applied to the role.
	Tags map[string]string `json:"tags,omitempty"`
}

// PutRolePolicyRequest contains the parameters for a PutRolePolicy operation.
type PutRolePolicyRequest struct {
	// RoleName is the role the policy attaches to.
	RoleName string `json:"role_name"`

	// PolicyName is the inline policy name.
	PolicyName string `json:"policy_name"`

	// Statements are the policy statements to write.
	Statements []PolicyStatement `json:"statements"`
}

// GetFunctionRequest contains the parameters for a GetFunction operation.
type GetFunctionRequest struct {
	// FunctionName is the function to look up.
	FunctionName string `json:"function_name"`
}

// CreateFunctionRequest contains the parameters for a CreateFunction operation.
type CreateFunctionRequest struct {
	// FunctionName is the function to create.
	FunctionName string `json:"function_name"`

	// Code is the artifact reference to deploy.
	Code CodeArtifact `json:"code"`

	// Runtime is the runtime identifier.
	Runtime string `json:"runtime"`

	// Handler is the entry point within the artifact.
	Handler string `json:"handler"`

	// RoleARN is the execution role the function runs under.
	RoleARN string `json:"role_arn"`

	// MemoryMB is the memory limit in megabytes.
	MemoryMB int32 `json:"memory_mb"`

	// TimeoutSeconds is the execution timeout in seconds.
	TimeoutSeconds int32 `json:"timeout_seconds"`

	// Environment are the environment variables.
	Environment map[string]string `json:"environment,omitempty"`

	// VPC is the optional VPC placement.
	VPC *VPCPlacement `json:"vpc,omitempty"`

	// DeadLetterTarget is the optional dead-letter ARN.
	DeadLetterTarget string `json:"dead_letter_target,omitempty"`

	// Description is the function description.
	Description string `json:"description,omitempty"`

	// Tags are provider tags applied to the function.
	Tags map[string]string `json:"tags,omitempty"`
}

// UpdateFunctionCodeRequest contains the parameters for an UpdateFunctionCode operation.
type UpdateFunctionCodeRequest struct {
	// FunctionName is the function whose code is replaced.
	FunctionName string `json:"function_name"`

	// Code is the artifact reference to deploy.
	Code CodeArtifact `json:"code"`
}

// UpdateFunctionConfigRequest contains the parameters for an UpdateFunctionConfig operation.
type UpdateFunctionConfigRequest struct {
	// FunctionName is the function whose configuration is updated.
	FunctionName string `json:"function_name"`

	// Runtime is the runtime identifier.
	Runtime string `json:"runtime"`

	// Handler is the entry point within the artifact.
	Handler string `json:"handler"`

	// RoleARN is the execution role the function runs under.
	RoleARN string `json:"role_arn"`

	// MemoryMB is the memory limit in megabytes.
	MemoryMB int32 `json:"memory_mb"`

	// TimeoutSeconds is the execution timeout in seconds.
	TimeoutSeconds int32 `json:"timeout_seconds"`

	// Environment are the environment variables. The full desired map is
	// written; the engine merges observed-only keys in beforehand so that
	// absence never deletes (see the no-implicit-deletion invariant).
	Environment map[string]string `json:"environment,omitempty"`

	// VPC is the VPC placement to configure, nil to leave unmanaged.
	VPC *VPCPlacement `json:"vpc,omitempty"`

	// DeadLetterTarget is the dead-letter ARN, empty to leave unmanaged.
	DeadLetterTarget string `json:"dead_letter_target,omitempty"`
}

// GetRuleRequest contains the parameters for a GetRule operation.
type GetRuleRequest struct {
	// RuleName is the rule to look up.
	RuleName string `json:"rule_name"`
}

// PutRuleRequest contains the parameters for a PutRule operation.
type PutRuleRequest struct {
	// RuleName is the rule to create or rewrite.
	RuleName string `json:"rule_name"`

	// Expression is the schedule expression.
	Expression string `json:"expression"`

	// Enabled controls whether the rule fires.
	Enabled bool `json:"enabled"`

	// Description is the rule description.
	Description string `json:"description,omitempty"`

	// Tags are provider tags applied to the rule.
	Tags map[string]string `json:"tags,omitempty"`
}

// ListTargetsRequest contains the parameters for a ListTargets operation.
type ListTargetsRequest struct {
	// RuleName is the rule whose targets are listed.
	RuleName string `json:"rule_name"`
}

// PutTargetsRequest contains the parameters for a PutTargets operation.
type PutTargetsRequest struct {
	// RuleName is the rule the target binds to.
	RuleName string `json:"rule_name"`

	// TargetID is the target identifier within the rule.
	TargetID string `json:"target_id"`

	// TargetARN is the invocation target, normally the function ARN.
	TargetARN string `json:"target_arn"`

	// MaxRetryAttempts is the retry budget for failed invocations, or -1 to
	// keep the provider default.
	MaxRetryAttempts int32 `json:"max_retry_attempts"`
}

// GetFunctionPolicyRequest contains the parameters for a GetFunctionPolicy operation.
type GetFunctionPolicyRequest struct {
	// FunctionName is the function whose resource policy is read.
	FunctionName string `json:"function_name"`
}

// AddPermissionRequest contains the parameters for an AddPermission operation.
type AddPermissionRequest struct {
	// FunctionName is the function the grant applies to.
	FunctionName string `json:"function_name"`

	// StatementID is the permission statement identifier.
	StatementID string `json:"statement_id"`

	// Principal is the service principal receiving the grant.
	Principal string `json:"principal"`

	// Action is the granted action.
	Action string `json:"action"`

	// SourceARN restricts the grant to invocations from this source,
	// normally the schedule rule ARN.
	SourceARN string `json:"source_arn,omitempty"`
}
