package manifest

import (
	"testing"

	"github.com/cronverge/cronverge/pkg/engine"
)

func TestManifest_ToDeployment_FullDocument(t *testing.T) {
	m, err := Parse([]byte(validDocument))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	d := m.ToDeployment()

	if d.Name != "invoice-rollup" {
		t.Errorf("Expected name 'invoice-rollup', got %s", d.Name)
	}
	if d.Description != "nightly invoice aggregation" {
		t.Errorf("Unexpected description: %s", d.Description)
	}
	if d.Code.S3Bucket != "acme-artifacts" || d.Code.S3Key != "invoice-rollup/bundle.zip" {
		t.Errorf("Unexpected code artifact: %+v", d.Code)
	}
	if d.Code.SHA256 != m.Code.SHA256 {
		t.Errorf("Expected digest %s, got %s", m.Code.SHA256, d.Code.SHA256)
	}
	if d.Runtime != "python3.12" || d.Handler != "app.handler" {
		t.Errorf("Unexpected runtime/handler: %s / %s", d.Runtime, d.Handler)
	}
	if len(d.Role.TrustedServices) != 1 || d.Role.TrustedServices[0] != "lambda.amazonaws.com" {
		t.Errorf("Unexpected trusted services: %v", d.Role.TrustedServices)
	}
	if len(d.Role.Statements) != 1 {
		t.Fatalf("Expected 1 statement, got %d", len(d.Role.Statements))
	}
	stmt := d.Role.Statements[0]
	if stmt.Sid != "logs" || stmt.Effect != "Allow" || len(stmt.Actions) != 3 || len(stmt.Resources) != 1 {
		t.Errorf("Unexpected statement: %+v", stmt)
	}
	if d.VPC == nil {
		t.Fatal("Expected VPC placement to be set")
	}
	if len(d.VPC.SubnetIDs) != 2 || len(d.VPC.SecurityGroupIDs) != 1 {
		t.Errorf("Unexpected VPC placement: %+v", d.VPC)
	}
	if d.Resources.MemoryMB != 512 || d.Resources.TimeoutSeconds != 120 {
		t.Errorf("Unexpected resource limits: %+v", d.Resources)
	}
	if d.Environment["DB_SECRET"] == "" {
		t.Error("Expected environment to carry the secret reference")
	}
	if d.Schedule.Expression != "rate(1 day)" || !d.Schedule.Enabled {
		t.Errorf("Unexpected schedule: %+v", d.Schedule)
	}
	if d.FailurePolicy == nil {
		t.Fatal("Expected failure policy to be set")
	}
	if d.FailurePolicy.MaxRetryAttempts != 2 || d.FailurePolicy.DeadLetterTarget == "" {
		t.Errorf("Unexpected failure policy: %+v", d.FailurePolicy)
	}
	if d.Tags["team"] != "billing" {
		t.Errorf("Unexpected tags: %v", d.Tags)
	}
}

func TestManifest_ToDeployment_Defaults(t *testing.T) {
	m, err := Parse([]byte(minimalDocument))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	d := m.ToDeployment()

	if d.VPC != nil {
		t.Errorf("Expected nil VPC placement, got %+v", d.VPC)
	}
	if d.FailurePolicy != nil {
		t.Errorf("Expected nil failure policy, got %+v", d.FailurePolicy)
	}
	if len(d.Role.TrustedServices) != 0 {
		t.Errorf("Expected no trusted services, got %v", d.Role.TrustedServices)
	}
	if !d.Schedule.Enabled {
		t.Error("Expected omitted schedule.enabled to convert as enabled")
	}
}

func TestManifest_ToDeployment_DisabledSchedule(t *testing.T) {
	doc := minimalDocument + "  enabled: false\n"

	m, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if d := m.ToDeployment(); d.Schedule.Enabled {
		t.Error("Expected schedule.enabled false to convert as disabled")
	}
}

func TestManifest_ToDeployment_SatisfiesEngineValidation(t *testing.T) {
	for _, doc := range []string{validDocument, minimalDocument} {
		m, err := Parse([]byte(doc))
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if err := m.ToDeployment().Validate(); err != nil {
			t.Errorf("Expected converted deployment to pass engine validation, got: %v", err)
		}
	}
}

func TestManifest_ToDeployment_RoundTripsThroughPlanner(t *testing.T) {
	m, err := Parse([]byte(validDocument))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	d := m.ToDeployment()
	observed := &engine.ObservedDeployment{Name: d.Name}

	plan, err := engine.NewPlanner().Plan(d, observed)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if plan.Summary.ToCreate == 0 {
		t.Error("Expected a first-deploy plan to create resources")
	}
}
