package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// ProviderExecutor implements ActionExecutor against a CloudProvider. One
// executor serves one run: it carries the desired document, the pre-run
// snapshot, and the resource identifiers resolved while applying, so later
// actions can reference resources created by earlier ones (the function
// needs the role ARN, the permission grant needs the rule ARN).
type ProviderExecutor struct {
	provider CloudProvider
	desired  *DesiredDeployment
	observed *ObservedDeployment
	names    Names

	roleARN     string
	functionARN string
	ruleARN     string
}

// NewExecutor creates an executor for one convergence run. Identifiers
// already present in the observed snapshot seed the resolved set.
func NewExecutor(provider CloudProvider, desired *DesiredDeployment, observed *ObservedDeployment) *ProviderExecutor {
	e := &ProviderExecutor{
		provider: provider,
		desired:  desired,
		observed: observed,
		names:    DeriveNames(desired.Name),
	}
	if observed != nil {
		if observed.Role != nil {
			e.roleARN = observed.Role.ARN
		}
		if observed.Function != nil {
			e.functionARN = observed.Function.ARN
		}
		if observed.Rule != nil {
			e.ruleARN = observed.Rule.ARN
		}
	}
	return e
}

// Execute performs the provider mutation for one action. Errors come back
// classified; the caller owns retry policy.
func (e *ProviderExecutor) Execute(ctx context.Context, action Action) error {
	switch action.Kind {
	case ActionNoop:
		return nil
	case ActionCreateRole:
		return e.createRole(ctx)
	case ActionUpdateRolePolicy:
		return e.updateRolePolicy(ctx)
	case ActionCreateFunction:
		return e.createFunction(ctx)
	case ActionUpdateFunctionCode:
		return e.updateFunctionCode(ctx)
	case ActionUpdateFunctionConfig:
		return e.updateFunctionConfig(ctx)
	case ActionPutScheduleRule:
		return e.putScheduleRule(ctx)
	case ActionGrantInvokePermission:
		return e.grantInvokePermission(ctx)
	case ActionBindTarget:
		return e.bindTarget(ctx)
	default:
		return NewUnknownError(fmt.Sprintf("unsupported action kind: %s", action.Kind), nil).
			WithCode(ErrCodeValidation)
	}
}

// Verify re-queries the provider and checks the postcondition the action was
// meant to establish. A missing or mismatched postcondition is reported as a
// transient verification error so the retry loop re-attempts the action.
func (e *ProviderExecutor) Verify(ctx context.Context, action Action) error {
	switch action.Kind {
	case ActionNoop:
		return nil
	case ActionCreateRole, ActionUpdateRolePolicy:
		return e.verifyRole(ctx)
	case ActionCreateFunction:
		return e.verifyFunctionExists(ctx)
	case ActionUpdateFunctionCode:
		return e.verifyFunctionCode(ctx)
	case ActionUpdateFunctionConfig:
		return e.verifyFunctionConfig(ctx)
	case ActionPutScheduleRule:
		return e.verifyRule(ctx)
	case ActionGrantInvokePermission:
		return e.verifyPermission(ctx)
	case ActionBindTarget:
		return e.verifyTarget(ctx)
	default:
		return nil
	}
}

func (e *ProviderExecutor) createRole(ctx context.Context) error {
	role, err := e.provider.CreateRole(ctx, CreateRoleRequest{
		RoleName:        e.names.Role,
		TrustedServices: e.trustedServices(),
		Description:     fmt.Sprintf("Execution role for %s", e.desired.Name),
		Tags:            e.desired.Tags,
	})
	if err != nil {
		if !IsConflict(err) {
			return err
		}
		// A conflict here means an earlier attempt of this run already
		// created the role; re-fetch it so the create stays idempotent.
		role, err = e.provider.GetRole(ctx, GetRoleRequest{RoleName: e.names.Role})
		if err != nil {
			return err
		}
	}
	e.roleARN = role.ARN

	return e.provider.PutRolePolicy(ctx, PutRolePolicyRequest{
		RoleName:   e.names.Role,
		PolicyName: e.names.RolePolicy,
		Statements: EffectiveStatements(e.desired),
	})
}

func (e *ProviderExecutor) updateRolePolicy(ctx context.Context) error {
	return e.provider.PutRolePolicy(ctx, PutRolePolicyRequest{
		RoleName:   e.names.Role,
		PolicyName: e.names.RolePolicy,
		Statements: EffectiveStatements(e.desired),
	})
}

func (e *ProviderExecutor) createFunction(ctx context.Context) error {
	if e.roleARN == "" {
		return NewUnknownError("execution role ARN not resolved before function creation", nil).
			WithResource(e.names.Function).
			WithOperation("create_function")
	}

	req := CreateFunctionRequest{
		FunctionName:   e.names.Function,
		Code:           e.desired.Code,
		Runtime:        e.desired.Runtime,
		Handler:        e.desired.Handler,
		RoleARN:        e.roleARN,
		MemoryMB:       e.desired.Resources.MemoryMB,
		TimeoutSeconds: e.desired.Resources.TimeoutSeconds,
		Environment:    e.desired.Environment,
		VPC:            e.desired.VPC,
		Description:    e.desired.Description,
		Tags:           e.desired.Tags,
	}
	if e.desired.FailurePolicy != nil {
		req.DeadLetterTarget = e.desired.FailurePolicy.DeadLetterTarget
	}

	fn, err := e.provider.CreateFunction(ctx, req)
	if err != nil {
		if !IsConflict(err) {
			return err
		}
		// Created by an earlier attempt of this run. Re-fetch for the ARN;
		// verification checks the rest.
		fn, err = e.provider.GetFunction(ctx, GetFunctionRequest{FunctionName: e.names.Function})
		if err != nil {
			return err
		}
	}
	e.functionARN = fn.ARN
	return nil
}

func (e *ProviderExecutor) updateFunctionCode(ctx context.Context) error {
	fn, err := e.provider.UpdateFunctionCode(ctx, UpdateFunctionCodeRequest{
		FunctionName: e.names.Function,
		Code:         e.desired.Code,
	})
	if err != nil {
		return err
	}
	e.functionARN = fn.ARN
	return nil
}

func (e *ProviderExecutor) updateFunctionConfig(ctx context.Context) error {
	if e.roleARN == "" {
		return NewUnknownError("execution role ARN not resolved before function update", nil).
			WithResource(e.names.Function).
			WithOperation("update_function_config")
	}

	req := UpdateFunctionConfigRequest{
		FunctionName:   e.names.Function,
		Runtime:        e.desired.Runtime,
		Handler:        e.desired.Handler,
		RoleARN:        e.roleARN,
		MemoryMB:       e.desired.Resources.MemoryMB,
		TimeoutSeconds: e.desired.Resources.TimeoutSeconds,
		Environment:    e.mergedEnvironment(),
		VPC:            e.desired.VPC,
	}
	if e.desired.FailurePolicy != nil {
		req.DeadLetterTarget = e.desired.FailurePolicy.DeadLetterTarget
	}

	fn, err := e.provider.UpdateFunctionConfig(ctx, req)
	if err != nil {
		return err
	}
	e.functionARN = fn.ARN
	return nil
}

func (e *ProviderExecutor) putScheduleRule(ctx context.Context) error {
	rule, err := e.provider.PutRule(ctx, PutRuleRequest{
		RuleName:    e.names.Rule,
		Expression:  e.desired.Schedule.Expression,
		Enabled:     e.desired.Schedule.Enabled,
		Description: fmt.Sprintf("Schedule for %s", e.desired.Name),
		Tags:        e.desired.Tags,
	})
	if err != nil {
		return err
	}
	e.ruleARN = rule.ARN
	return nil
}

func (e *ProviderExecutor) grantInvokePermission(ctx context.Context) error {
	err := e.provider.AddPermission(ctx, AddPermissionRequest{
		FunctionName: e.names.Function,
		StatementID:  e.names.StatementID,
		Principal:    SchedulerPrincipal,
		Action:       InvokeAction,
		SourceARN:    e.ruleARN,
	})
	if err != nil && IsConflict(err) {
		// The statement landed on an earlier attempt; verification confirms
		// it grants what we want.
		return nil
	}
	return err
}

func (e *ProviderExecutor) bindTarget(ctx context.Context) error {
	arn := e.functionARN
	if arn == "" {
		// Target binding without a resolved function ARN means the function
		// facet was observed absent and its create failed or was skipped.
		return NewUnknownError("function ARN not resolved before target binding", nil).
			WithResource(e.names.Rule).
			WithOperation("bind_target")
	}

	retries := int32(-1)
	if e.desired.FailurePolicy != nil {
		retries = e.desired.FailurePolicy.MaxRetryAttempts
	}

	return e.provider.PutTargets(ctx, PutTargetsRequest{
		RuleName:         e.names.Rule,
		TargetID:         e.names.TargetID,
		TargetARN:        arn,
		MaxRetryAttempts: retries,
	})
}

func (e *ProviderExecutor) verifyRole(ctx context.Context) error {
	role, err := e.provider.GetRole(ctx, GetRoleRequest{
		RoleName:   e.names.Role,
		PolicyName: e.names.RolePolicy,
	})
	if err != nil {
		return verificationFailed(e.names.Role, "role lookup after write", err)
	}
	e.roleARN = role.ARN

	if !StatementsEqual(EffectiveStatements(e.desired), role.Statements) {
		return verificationMismatch(e.names.Role, "role policy statements still differ")
	}
	return nil
}

func (e *ProviderExecutor) verifyFunctionExists(ctx context.Context) error {
	fn, err := e.provider.GetFunction(ctx, GetFunctionRequest{FunctionName: e.names.Function})
	if err != nil {
		return verificationFailed(e.names.Function, "function lookup after create", err)
	}
	e.functionARN = fn.ARN
	return nil
}

func (e *ProviderExecutor) verifyFunctionCode(ctx context.Context) error {
	fn, err := e.provider.GetFunction(ctx, GetFunctionRequest{FunctionName: e.names.Function})
	if err != nil {
		return verificationFailed(e.names.Function, "function lookup after code update", err)
	}
	e.functionARN = fn.ARN

	if e.desired.Code.SHA256 != "" && fn.CodeSHA256 != e.desired.Code.SHA256 {
		return verificationMismatch(e.names.Function,
			fmt.Sprintf("code digest is %s, want %s", fn.CodeSHA256, e.desired.Code.SHA256))
	}
	return nil
}

func (e *ProviderExecutor) verifyFunctionConfig(ctx context.Context) error {
	fn, err := e.provider.GetFunction(ctx, GetFunctionRequest{FunctionName: e.names.Function})
	if err != nil {
		return verificationFailed(e.names.Function, "function lookup after config update", err)
	}
	e.functionARN = fn.ARN

	if changes := configChanges(e.desired, fn); len(changes) > 0 {
		return verificationMismatch(e.names.Function,
			fmt.Sprintf("%d configuration fields still differ", len(changes)))
	}
	return nil
}

func (e *ProviderExecutor) verifyRule(ctx context.Context) error {
	rule, err := e.provider.GetRule(ctx, GetRuleRequest{RuleName: e.names.Rule})
	if err != nil {
		return verificationFailed(e.names.Rule, "rule lookup after write", err)
	}
	e.ruleARN = rule.ARN

	if rule.Expression != e.desired.Schedule.Expression {
		return verificationMismatch(e.names.Rule,
			fmt.Sprintf("expression is %q, want %q", rule.Expression, e.desired.Schedule.Expression))
	}
	if rule.Enabled != e.desired.Schedule.Enabled {
		return verificationMismatch(e.names.Rule,
			fmt.Sprintf("enabled is %t, want %t", rule.Enabled, e.desired.Schedule.Enabled))
	}
	return nil
}

func (e *ProviderExecutor) verifyPermission(ctx context.Context) error {
	grants, err := e.provider.GetFunctionPolicy(ctx, GetFunctionPolicyRequest{
		FunctionName: e.names.Function,
	})
	if err != nil {
		return verificationFailed(e.names.Function, "function policy lookup after grant", err)
	}

	for _, g := range grants {
		if g.StatementID == e.names.StatementID &&
			g.Principal == SchedulerPrincipal &&
			g.Action == InvokeAction {
			return nil
		}
	}
	return verificationMismatch(e.names.Function, "scheduler invoke grant not present after write")
}

func (e *ProviderExecutor) verifyTarget(ctx context.Context) error {
	targets, err := e.provider.ListTargets(ctx, ListTargetsRequest{RuleName: e.names.Rule})
	if err != nil {
		return verificationFailed(e.names.Rule, "target lookup after write", err)
	}

	for _, t := range targets {
		if t.ID == e.names.TargetID {
			return nil
		}
	}
	return verificationMismatch(e.names.Rule, "rule target not present after write")
}

// mergedEnvironment overlays the desired environment on the observed one.
// Keys present only on the live function survive the write, so a rendered
// configuration update cannot delete variables the document never mentions.
func (e *ProviderExecutor) mergedEnvironment() map[string]string {
	var live map[string]string
	if e.observed != nil && e.observed.Function != nil {
		live = e.observed.Function.Environment
	}
	if len(live) == 0 {
		return e.desired.Environment
	}

	merged := make(map[string]string, len(live)+len(e.desired.Environment))
	for k, v := range live {
		merged[k] = v
	}
	for k, v := range e.desired.Environment {
		merged[k] = v
	}
	return merged
}

func (e *ProviderExecutor) trustedServices() []string {
	if len(e.desired.Role.TrustedServices) > 0 {
		return e.desired.Role.TrustedServices
	}
	return []string{"lambda.amazonaws.com"}
}

// verificationFailed wraps a provider error raised while re-querying a
// postcondition. The wrapped classification is preserved unless it is
// terminal for the read itself.
func verificationFailed(resource, what string, err error) error {
	if cloudErr := AsCloudError(err); cloudErr != nil && IsRetryable(cloudErr) {
		return cloudErr
	}
	return NewTransientError(fmt.Sprintf("verification failed: %s", what), err).
		WithResource(resource).
		WithCode(ErrCodeVerification)
}

// verificationMismatch reports a postcondition that did not hold after a
// successful write. Classified transient so the retry loop re-attempts.
func verificationMismatch(resource, detail string) error {
	log.Warn().
		Str("resource", resource).
		Str("detail", detail).
		Msg("Postcondition not satisfied after apply")

	return NewTransientError(fmt.Sprintf("verification failed: %s", detail), nil).
		WithResource(resource).
		WithCode(ErrCodeVerification)
}
