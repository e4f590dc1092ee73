package engine

import (
	"encoding/json"
	"testing"
)

func TestConvergenceStatus_ExitCode(t *testing.T) {
	tests := []struct {
		status ConvergenceStatus
		code   int
	}{
		{StatusConverged, 0},
		{StatusFailed, 1},
		{StatusPartiallyConverged, 2},
		{ConvergenceStatus("bogus"), 1},
	}

	for _, tt := range tests {
		if got := tt.status.ExitCode(); got != tt.code {
			t.Errorf("ExitCode(%s) = %d, want %d", tt.status, got, tt.code)
		}
	}
}

func TestConvergenceStatus_Succeeded(t *testing.T) {
	if !StatusConverged.Succeeded() {
		t.Error("Expected converged to count as success")
	}
	if StatusPartiallyConverged.Succeeded() {
		t.Error("Expected partial convergence not to count as success")
	}
	if StatusFailed.Succeeded() {
		t.Error("Expected failed not to count as success")
	}
}

func TestActionKind_Facet(t *testing.T) {
	tests := []struct {
		kind  ActionKind
		facet Facet
	}{
		{ActionCreateRole, FacetRole},
		{ActionUpdateRolePolicy, FacetRole},
		{ActionCreateFunction, FacetFunction},
		{ActionUpdateFunctionCode, FacetFunction},
		{ActionUpdateFunctionConfig, FacetFunction},
		{ActionPutScheduleRule, FacetSchedule},
		{ActionGrantInvokePermission, FacetPermission},
		{ActionBindTarget, FacetTarget},
	}

	for _, tt := range tests {
		if got := tt.kind.Facet(); got != tt.facet {
			t.Errorf("Facet(%s) = %s, want %s", tt.kind, got, tt.facet)
		}
	}

	// Noops carry their facet on the Action, not the kind.
	if got := ActionNoop.Facet(); got != "" {
		t.Errorf("Expected empty facet for noop, got %s", got)
	}
}

func TestActionKind_IsCreate(t *testing.T) {
	if !ActionCreateRole.IsCreate() || !ActionCreateFunction.IsCreate() {
		t.Error("Expected create_role and create_function to be creates")
	}
	for _, k := range []ActionKind{
		ActionUpdateRolePolicy, ActionUpdateFunctionCode, ActionUpdateFunctionConfig,
		ActionPutScheduleRule, ActionGrantInvokePermission, ActionBindTarget, ActionNoop,
	} {
		if k.IsCreate() {
			t.Errorf("Expected %s not to be a create", k)
		}
	}
}

func TestActionKind_Validate(t *testing.T) {
	for _, k := range []ActionKind{
		ActionCreateRole, ActionUpdateRolePolicy, ActionCreateFunction,
		ActionUpdateFunctionCode, ActionUpdateFunctionConfig,
		ActionPutScheduleRule, ActionGrantInvokePermission, ActionBindTarget, ActionNoop,
	} {
		if err := k.Validate(); err != nil {
			t.Errorf("Expected %s to validate, got: %v", k, err)
		}
	}
	if err := ActionKind("delete_function").Validate(); err == nil {
		t.Error("Expected error for unknown action kind")
	}
}

func TestFacet_Order(t *testing.T) {
	facets := AllFacets()
	if len(facets) != 5 {
		t.Fatalf("Expected 5 facets, got %d", len(facets))
	}
	for i, f := range facets {
		if f.Order() != i {
			t.Errorf("Expected %s at position %d, got %d", f, i, f.Order())
		}
	}
	if facets[0] != FacetRole || facets[4] != FacetTarget {
		t.Errorf("Expected role first and target last, got %v", facets)
	}
	if Facet("queue").Order() <= FacetTarget.Order() {
		t.Error("Expected unknown facets to sort after known ones")
	}
}

func TestActionOutcome_Validate(t *testing.T) {
	for _, o := range []ActionOutcome{OutcomeApplied, OutcomeSkipped, OutcomeFailed} {
		if err := o.Validate(); err != nil {
			t.Errorf("Expected %s to validate, got: %v", o, err)
		}
	}
	if err := ActionOutcome("deferred").Validate(); err == nil {
		t.Error("Expected error for unknown outcome")
	}
}

func TestEventType_Severity(t *testing.T) {
	tests := []struct {
		event    EventType
		severity string
	}{
		{EventTypeActionFailed, "error"},
		{EventTypeActionRetried, "warning"},
		{EventTypeDriftDetected, "warning"},
		{EventTypeRunStarted, "info"},
		{EventTypeRunCompleted, "info"},
		{EventTypeActionApplied, "info"},
	}

	for _, tt := range tests {
		if got := tt.event.Severity(); got != tt.severity {
			t.Errorf("Severity(%s) = %s, want %s", tt.event, got, tt.severity)
		}
	}
}

func TestStatusEnums_UnmarshalRejectsUnknown(t *testing.T) {
	var kind ActionKind
	if err := json.Unmarshal([]byte(`"drop_table"`), &kind); err == nil {
		t.Error("Expected unmarshal to reject an unknown action kind")
	}

	var status ConvergenceStatus
	if err := json.Unmarshal([]byte(`"converged"`), &status); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if status != StatusConverged {
		t.Errorf("Expected converged, got %s", status)
	}
}
