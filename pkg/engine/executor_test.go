package engine

import (
	"context"
	"testing"
)

func TestExecutor_MergedEnvironmentKeepsLiveOnlyKeys(t *testing.T) {
	desired := plannerDesired()
	desired.Environment = map[string]string{"LOG_LEVEL": "debug", "REGION": "eu-west-1"}

	observed := plannerObserved(desired)
	observed.Function.Environment = map[string]string{
		"LOG_LEVEL":      "info",
		"OPERATOR_ADDED": "keep-me",
	}

	executor := NewExecutor(newMockCloudProvider(), desired, observed)
	merged := executor.mergedEnvironment()

	if merged["LOG_LEVEL"] != "debug" {
		t.Errorf("Expected desired value to win, got %s", merged["LOG_LEVEL"])
	}
	if merged["REGION"] != "eu-west-1" {
		t.Errorf("Expected desired-only key present, got %s", merged["REGION"])
	}
	if merged["OPERATOR_ADDED"] != "keep-me" {
		t.Error("Expected live-only key to survive the merge")
	}
}

func TestExecutor_MergedEnvironmentWithoutLiveFunction(t *testing.T) {
	desired := plannerDesired()
	executor := NewExecutor(newMockCloudProvider(), desired, &ObservedDeployment{Name: desired.Name})

	merged := executor.mergedEnvironment()
	if len(merged) != len(desired.Environment) {
		t.Errorf("Expected the desired environment unchanged, got %v", merged)
	}
}

func TestExecutor_CreateFunctionRequiresResolvedRole(t *testing.T) {
	desired := plannerDesired()
	executor := NewExecutor(newMockCloudProvider(), desired, &ObservedDeployment{Name: desired.Name})

	err := executor.Execute(context.Background(), Action{Kind: ActionCreateFunction, Facet: FacetFunction})
	if err == nil {
		t.Fatal("Expected an error when the role ARN is unresolved")
	}
	if IsRetryable(err) {
		t.Error("Expected a non-retryable failure")
	}
}

func TestExecutor_BindTargetRequiresResolvedFunction(t *testing.T) {
	desired := plannerDesired()
	executor := NewExecutor(newMockCloudProvider(), desired, &ObservedDeployment{Name: desired.Name})

	err := executor.Execute(context.Background(), Action{Kind: ActionBindTarget, Facet: FacetTarget})
	if err == nil {
		t.Fatal("Expected an error when the function ARN is unresolved")
	}
}

func TestExecutor_SeedsARNsFromSnapshot(t *testing.T) {
	desired := plannerDesired()
	observed := plannerObserved(desired)
	provider := newMockCloudProvider()
	provider.functions[desired.Name] = cloneFunction(observed.Function)
	rule := *observed.Rule
	provider.rules[rule.Name] = &rule

	executor := NewExecutor(provider, desired, observed)

	// Binding must use the ARN observed earlier, no create needed first.
	if err := executor.Execute(context.Background(), Action{Kind: ActionBindTarget, Facet: FacetTarget}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	targets := provider.targets[DeriveNames(desired.Name).Rule]
	if len(targets) != 1 {
		t.Fatalf("Expected 1 target bound, got %d", len(targets))
	}
	if targets[0].ARN != observed.Function.ARN {
		t.Errorf("Expected the observed function ARN, got %s", targets[0].ARN)
	}
}

func TestExecutor_TrustedServicesDefault(t *testing.T) {
	desired := plannerDesired()
	executor := NewExecutor(newMockCloudProvider(), desired, nil)

	services := executor.trustedServices()
	if len(services) != 1 || services[0] != "lambda.amazonaws.com" {
		t.Errorf("Expected the lambda principal by default, got %v", services)
	}

	desired.Role.TrustedServices = []string{"edgelambda.amazonaws.com"}
	services = executor.trustedServices()
	if len(services) != 1 || services[0] != "edgelambda.amazonaws.com" {
		t.Errorf("Expected the declared principal, got %v", services)
	}
}

func TestExecutor_GrantPermissionConflictIsSuccess(t *testing.T) {
	desired := plannerDesired()
	observed := plannerObserved(desired)
	provider := newMockCloudProvider()
	provider.functions[desired.Name] = cloneFunction(observed.Function)
	provider.permissions[desired.Name] = []ObservedPermission{*observed.Permission}

	executor := NewExecutor(provider, desired, observed)

	// The statement is already there; the duplicate grant must not fail.
	err := executor.Execute(context.Background(), Action{Kind: ActionGrantInvokePermission, Facet: FacetPermission})
	if err != nil {
		t.Fatalf("Expected conflict to be absorbed, got: %v", err)
	}
}
