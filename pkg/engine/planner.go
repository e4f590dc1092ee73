package engine

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultPlanner implements the Planner interface. It diffs desired against
// observed state facet by facet and emits the ordered reconciliation plan.
// Planning is pure: no I/O, no provider calls, no clock beyond timestamps.
type DefaultPlanner struct{}

// NewPlanner creates the default planner implementation.
func NewPlanner() *DefaultPlanner {
	return &DefaultPlanner{}
}

// Plan computes the ordered action list for one run. Every facet produces
// exactly one disposition: a mutating action set or a recorded noop, so the
// report accounts for all five sub-resources. Absence of a desired optional
// field means "leave as observed", never "remove".
func (p *DefaultPlanner) Plan(desired *DesiredDeployment, observed *ObservedDeployment) (*Plan, error) {
	if desired == nil {
		return nil, NewPlanError("desired", "desired deployment is nil")
	}
	if observed == nil {
		return nil, NewPlanError("observed", "observed snapshot is nil")
	}
	if err := desired.Validate(); err != nil {
		return nil, err
	}
	if observed.Name != "" && observed.Name != desired.Name {
		return nil, NewPlanError("observed",
			fmt.Sprintf("snapshot is for %q, desired is %q", observed.Name, desired.Name))
	}

	names := DeriveNames(desired.Name)
	actions := make([]Action, 0, facetLookupCount+2)

	actions = append(actions, p.diffRole(desired, observed, names)...)
	actions = append(actions, p.diffFunction(desired, observed, names)...)
	actions = append(actions, p.diffSchedule(desired, observed, names))
	actions = append(actions, p.diffPermission(desired, observed, names))
	actions = append(actions, p.diffTarget(desired, observed, names))

	present := make(map[ActionKind]bool, len(actions))
	for _, a := range actions {
		if a.IsMutating() {
			present[a.Kind] = true
		}
	}
	for i := range actions {
		if actions[i].IsMutating() {
			actions[i].DependsOn = dependencies(actions[i].Kind, present)
		}
	}

	ordered, err := OrderActions(actions)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		ID:         uuid.New().String(),
		Deployment: desired.Name,
		CreatedAt:  time.Now(),
		Actions:    ordered,
	}
	plan.Summary = summarize(ordered)
	return plan, nil
}

// dependencies returns the predecessor kinds of an action, filtered to the
// kinds actually present in this plan. The fixed sequence is role, function,
// schedule rule, permission, target: each later stage's provider call
// requires the former to already exist.
func dependencies(kind ActionKind, present map[ActionKind]bool) []ActionKind {
	var wanted []ActionKind
	switch kind {
	case ActionCreateFunction, ActionUpdateFunctionCode, ActionUpdateFunctionConfig:
		wanted = []ActionKind{ActionCreateRole, ActionUpdateRolePolicy}
	case ActionPutScheduleRule:
		wanted = []ActionKind{ActionCreateFunction, ActionUpdateFunctionCode, ActionUpdateFunctionConfig}
	case ActionGrantInvokePermission:
		wanted = []ActionKind{ActionCreateFunction, ActionPutScheduleRule}
	case ActionBindTarget:
		wanted = []ActionKind{ActionCreateFunction, ActionPutScheduleRule, ActionGrantInvokePermission}
	default:
		return nil
	}

	deps := make([]ActionKind, 0, len(wanted))
	for _, k := range wanted {
		if present[k] {
			deps = append(deps, k)
		}
	}
	if len(deps) == 0 {
		return nil
	}
	return deps
}

// diffRole compares the desired role spec against the observed role. The
// compared statement set includes the derived dead-letter publish statement
// when a dead-letter target is declared.
func (p *DefaultPlanner) diffRole(desired *DesiredDeployment, observed *ObservedDeployment, names Names) []Action {
	want := EffectiveStatements(desired)

	if observed.Role == nil {
		return []Action{{
			Kind:   ActionCreateRole,
			Facet:  FacetRole,
			Reason: "role does not exist",
			Changes: []FieldChange{
				{Path: ".role", Op: ChangeOpAdd, After: names.Role},
			},
		}}
	}

	if !StatementsEqual(want, observed.Role.Statements) {
		return []Action{{
			Kind:   ActionUpdateRolePolicy,
			Facet:  FacetRole,
			Reason: "role policy statements differ",
			Changes: []FieldChange{
				{
					Path:   ".role.statements",
					Op:     ChangeOpModify,
					Before: fmt.Sprintf("%d statements", len(observed.Role.Statements)),
					After:  fmt.Sprintf("%d statements", len(want)),
				},
			},
		}}
	}

	return []Action{{
		Kind:   ActionNoop,
		Facet:  FacetRole,
		Reason: "role matches desired state",
	}}
}

// diffFunction compares the desired function against the observed one. Code
// and configuration diffs are independent actions since the provider exposes
// them as separate calls; both may be planned in the same run.
func (p *DefaultPlanner) diffFunction(desired *DesiredDeployment, observed *ObservedDeployment, names Names) []Action {
	if observed.Function == nil {
		return []Action{{
			Kind:   ActionCreateFunction,
			Facet:  FacetFunction,
			Reason: "function does not exist",
			Changes: []FieldChange{
				{Path: ".function", Op: ChangeOpAdd, After: names.Function},
			},
		}}
	}

	actions := make([]Action, 0, 2)

	if desired.Code.SHA256 != "" && desired.Code.SHA256 != observed.Function.CodeSHA256 {
		actions = append(actions, Action{
			Kind:   ActionUpdateFunctionCode,
			Facet:  FacetFunction,
			Reason: "code digest mismatch",
			Changes: []FieldChange{
				{
					Path:   ".code.sha256",
					Op:     ChangeOpModify,
					Before: observed.Function.CodeSHA256,
					After:  desired.Code.SHA256,
				},
			},
		})
	}

	if changes := configChanges(desired, observed.Function); len(changes) > 0 {
		fields := make([]string, 0, len(changes))
		for _, c := range changes {
			fields = append(fields, strings.TrimPrefix(c.Path, "."))
		}
		actions = append(actions, Action{
			Kind:    ActionUpdateFunctionConfig,
			Facet:   FacetFunction,
			Reason:  fmt.Sprintf("function configuration differs (%s)", strings.Join(fields, ", ")),
			Changes: changes,
		})
	}

	if len(actions) == 0 {
		return []Action{{
			Kind:   ActionNoop,
			Facet:  FacetFunction,
			Reason: "function matches desired state",
		}}
	}
	return actions
}

// configChanges lists the function configuration fields that differ. The
// environment comparison is exact string equality per desired key; observed
// keys absent from the desired map are left alone, and values never appear
// in the change list because they may be secret handles.
func configChanges(desired *DesiredDeployment, fn *ObservedFunction) []FieldChange {
	changes := make([]FieldChange, 0, 4)

	if desired.Runtime != fn.Runtime {
		changes = append(changes, FieldChange{
			Path: ".runtime", Op: ChangeOpModify, Before: fn.Runtime, After: desired.Runtime,
		})
	}
	if desired.Handler != fn.Handler {
		changes = append(changes, FieldChange{
			Path: ".handler", Op: ChangeOpModify, Before: fn.Handler, After: desired.Handler,
		})
	}
	if desired.Resources.MemoryMB != fn.MemoryMB {
		changes = append(changes, FieldChange{
			Path: ".resources.memory_mb", Op: ChangeOpModify,
			Before: fn.MemoryMB, After: desired.Resources.MemoryMB,
		})
	}
	if desired.Resources.TimeoutSeconds != fn.TimeoutSeconds {
		changes = append(changes, FieldChange{
			Path: ".resources.timeout_seconds", Op: ChangeOpModify,
			Before: fn.TimeoutSeconds, After: desired.Resources.TimeoutSeconds,
		})
	}

	if keys := environmentDrift(desired.Environment, fn.Environment); len(keys) > 0 {
		changes = append(changes, FieldChange{
			Path: ".environment", Op: ChangeOpModify,
			Before: "(redacted)", After: fmt.Sprintf("(redacted, %d keys: %s)", len(keys), strings.Join(keys, ", ")),
		})
	}

	if desired.VPC != nil {
		if fn.VPC == nil {
			changes = append(changes, FieldChange{
				Path: ".vpc", Op: ChangeOpAdd,
				After: fmt.Sprintf("%d subnets, %d security groups",
					len(desired.VPC.SubnetIDs), len(desired.VPC.SecurityGroupIDs)),
			})
		} else if !StringSetEqual(desired.VPC.SubnetIDs, fn.VPC.SubnetIDs) ||
			!StringSetEqual(desired.VPC.SecurityGroupIDs, fn.VPC.SecurityGroupIDs) {
			changes = append(changes, FieldChange{
				Path: ".vpc", Op: ChangeOpModify,
				Before: fmt.Sprintf("%d subnets, %d security groups",
					len(fn.VPC.SubnetIDs), len(fn.VPC.SecurityGroupIDs)),
				After: fmt.Sprintf("%d subnets, %d security groups",
					len(desired.VPC.SubnetIDs), len(desired.VPC.SecurityGroupIDs)),
			})
		}
	}

	if desired.FailurePolicy != nil && desired.FailurePolicy.DeadLetterTarget != "" &&
		desired.FailurePolicy.DeadLetterTarget != fn.DeadLetterTarget {
		op := ChangeOpModify
		if fn.DeadLetterTarget == "" {
			op = ChangeOpAdd
		}
		changes = append(changes, FieldChange{
			Path: ".failure_policy.dead_letter_target", Op: op,
			Before: fn.DeadLetterTarget, After: desired.FailurePolicy.DeadLetterTarget,
		})
	}

	if roleName := roleNameFromARN(fn.RoleARN); roleName != "" && roleName != DeriveNames(desired.Name).Role {
		changes = append(changes, FieldChange{
			Path: ".role", Op: ChangeOpModify, Before: roleName, After: DeriveNames(desired.Name).Role,
		})
	}

	return changes
}

// environmentDrift returns the sorted desired keys whose values are missing
// or different in the observed environment. Removals are never planned.
func environmentDrift(desired, observed map[string]string) []string {
	keys := make([]string, 0)
	for k, v := range desired {
		if got, ok := observed[k]; !ok || got != v {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// diffSchedule compares the desired schedule against the observed rule.
func (p *DefaultPlanner) diffSchedule(desired *DesiredDeployment, observed *ObservedDeployment, names Names) Action {
	if observed.Rule == nil {
		return Action{
			Kind:   ActionPutScheduleRule,
			Facet:  FacetSchedule,
			Reason: "schedule rule does not exist",
			Changes: []FieldChange{
				{Path: ".schedule", Op: ChangeOpAdd, After: desired.Schedule.Expression},
			},
		}
	}

	if observed.Rule.Expression != desired.Schedule.Expression {
		return Action{
			Kind:   ActionPutScheduleRule,
			Facet:  FacetSchedule,
			Reason: "schedule expression differs",
			Changes: []FieldChange{
				{
					Path: ".schedule.expression", Op: ChangeOpModify,
					Before: observed.Rule.Expression, After: desired.Schedule.Expression,
				},
			},
		}
	}

	if observed.Rule.Enabled != desired.Schedule.Enabled {
		return Action{
			Kind:   ActionPutScheduleRule,
			Facet:  FacetSchedule,
			Reason: "schedule enablement differs",
			Changes: []FieldChange{
				{
					Path: ".schedule.enabled", Op: ChangeOpModify,
					Before: observed.Rule.Enabled, After: desired.Schedule.Enabled,
				},
			},
		}
	}

	return Action{
		Kind:   ActionNoop,
		Facet:  FacetSchedule,
		Reason: "schedule rule matches desired state",
	}
}

// diffPermission checks whether the scheduler principal holds an invoke
// grant on the function.
func (p *DefaultPlanner) diffPermission(desired *DesiredDeployment, observed *ObservedDeployment, names Names) Action {
	if observed.Permission == nil {
		return Action{
			Kind:   ActionGrantInvokePermission,
			Facet:  FacetPermission,
			Reason: "scheduler invoke permission missing",
			Changes: []FieldChange{
				{Path: ".permission", Op: ChangeOpAdd, After: names.StatementID},
			},
		}
	}

	return Action{
		Kind:   ActionNoop,
		Facet:  FacetPermission,
		Reason: "invoke permission matches desired state",
	}
}

// diffTarget checks that the rule's target list includes this function with
// the desired retry policy.
func (p *DefaultPlanner) diffTarget(desired *DesiredDeployment, observed *ObservedDeployment, names Names) Action {
	var bound *ObservedTarget
	for i := range observed.Targets {
		if observed.Targets[i].ID == names.TargetID {
			bound = &observed.Targets[i]
			break
		}
	}

	if bound == nil {
		return Action{
			Kind:   ActionBindTarget,
			Facet:  FacetTarget,
			Reason: "rule target not bound",
			Changes: []FieldChange{
				{Path: ".target", Op: ChangeOpAdd, After: names.TargetID},
			},
		}
	}

	if desired.FailurePolicy != nil && bound.MaxRetryAttempts >= 0 &&
		bound.MaxRetryAttempts != desired.FailurePolicy.MaxRetryAttempts {
		return Action{
			Kind:   ActionBindTarget,
			Facet:  FacetTarget,
			Reason: "target retry policy differs",
			Changes: []FieldChange{
				{
					Path: ".failure_policy.max_retry_attempts", Op: ChangeOpModify,
					Before: bound.MaxRetryAttempts, After: desired.FailurePolicy.MaxRetryAttempts,
				},
			},
		}
	}

	return Action{
		Kind:   ActionNoop,
		Facet:  FacetTarget,
		Reason: "rule target matches desired state",
	}
}

// summarize counts the plan's actions by disposition.
func summarize(actions []Action) PlanSummary {
	s := PlanSummary{Total: len(actions)}
	for _, a := range actions {
		switch {
		case a.Kind == ActionNoop:
			s.Noop++
		case a.Kind.IsCreate():
			s.ToCreate++
		default:
			s.ToUpdate++
		}
	}
	return s
}

// EffectiveStatements returns the desired role policy statement set,
// including the derived dead-letter publish statement when the failure
// policy declares a dead-letter target. The dead-letter grant is diffed like
// any other statement rather than treated as a special case.
func EffectiveStatements(desired *DesiredDeployment) []PolicyStatement {
	statements := make([]PolicyStatement, len(desired.Role.Statements))
	copy(statements, desired.Role.Statements)

	if desired.FailurePolicy != nil && desired.FailurePolicy.DeadLetterTarget != "" {
		if s, ok := DeadLetterStatement(desired.FailurePolicy.DeadLetterTarget); ok {
			statements = append(statements, s)
		}
	}
	return statements
}

// DeadLetterStatement derives the role policy statement granting publish
// rights on a dead-letter target. The action depends on the target service:
// queues receive messages, topics receive publishes.
func DeadLetterStatement(targetARN string) (PolicyStatement, bool) {
	parts := strings.Split(targetARN, ":")
	if len(parts) < 6 {
		return PolicyStatement{}, false
	}

	var action string
	switch parts[2] {
	case "sqs":
		action = "sqs:SendMessage"
	case "sns":
		action = "sns:Publish"
	default:
		return PolicyStatement{}, false
	}

	return PolicyStatement{
		Sid:       "DeadLetterPublish",
		Effect:    "Allow",
		Actions:   []string{action},
		Resources: []string{targetARN},
	}, true
}

// StatementsEqual compares two policy statement sets order-independently.
// Actions and resources within each statement are also order-independent.
func StatementsEqual(a, b []PolicyStatement) bool {
	if len(a) != len(b) {
		return false
	}
	return statementSetKey(a) == statementSetKey(b)
}

// statementSetKey renders a statement set into a canonical comparison key.
func statementSetKey(statements []PolicyStatement) string {
	keys := make([]string, 0, len(statements))
	for _, s := range statements {
		c := PolicyStatement{
			Sid:       s.Sid,
			Effect:    s.Effect,
			Actions:   sortedCopy(s.Actions),
			Resources: sortedCopy(s.Resources),
		}
		raw, err := json.Marshal(c)
		if err != nil {
			continue
		}
		keys = append(keys, string(raw))
	}
	sort.Strings(keys)
	return strings.Join(keys, "\n")
}

// StringSetEqual compares two string slices as sets.
func StringSetEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as, bs := sortedCopy(a), sortedCopy(b)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// sortedCopy returns a sorted copy of a string slice.
func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}

// roleNameFromARN extracts the role name from a role ARN. Returns empty when
// the ARN does not look like a role identifier.
func roleNameFromARN(arn string) string {
	idx := strings.LastIndex(arn, "/")
	if idx < 0 || idx == len(arn)-1 {
		return ""
	}
	return arn[idx+1:]
}
