package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validDocument = `
name: invoice-rollup
description: nightly invoice aggregation
code:
  s3_bucket: acme-artifacts
  s3_key: invoice-rollup/bundle.zip
  sha256: "qZ8JzG8hQn0rTm4vYw1xSg=="
runtime: python3.12
handler: app.handler
role:
  trusted_services: [lambda.amazonaws.com]
  statements:
    - sid: logs
      effect: Allow
      actions: [logs:CreateLogGroup, logs:CreateLogStream, logs:PutLogEvents]
      resources: ["*"]
vpc:
  subnet_ids: [subnet-aaa, subnet-bbb]
  security_group_ids: [sg-ccc]
resources:
  memory_mb: 512
  timeout_seconds: 120
environment:
  LOG_LEVEL: info
  DB_SECRET: arn:aws:secretsmanager:eu-west-1:123456789012:secret:db
schedule:
  expression: rate(1 day)
  enabled: true
failure_policy:
  max_retry_attempts: 2
  dead_letter_target: arn:aws:sqs:eu-west-1:123456789012:invoice-rollup-dlq
tags:
  team: billing
`

const minimalDocument = `
name: ping
code:
  s3_bucket: artifacts
  s3_key: ping.zip
  sha256: "abc123"
runtime: python3.12
handler: app.handler
role:
  statements:
    - effect: Allow
      actions: ["logs:PutLogEvents"]
      resources: ["*"]
resources:
  memory_mb: 128
  timeout_seconds: 30
schedule:
  expression: rate(5 minutes)
`

func TestLoader_Parse_ValidDocument(t *testing.T) {
	m, err := NewLoader().Parse([]byte(validDocument))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if m.Name != "invoice-rollup" {
		t.Errorf("Expected name 'invoice-rollup', got %s", m.Name)
	}
	if m.Code.S3Bucket != "acme-artifacts" || m.Code.S3Key != "invoice-rollup/bundle.zip" {
		t.Errorf("Unexpected code location: %+v", m.Code)
	}
	if m.Code.SHA256 == "" {
		t.Error("Expected code digest to be set")
	}
	if m.Runtime != "python3.12" || m.Handler != "app.handler" {
		t.Errorf("Unexpected runtime/handler: %s / %s", m.Runtime, m.Handler)
	}
	if len(m.Role.TrustedServices) != 1 || m.Role.TrustedServices[0] != "lambda.amazonaws.com" {
		t.Errorf("Unexpected trusted services: %v", m.Role.TrustedServices)
	}
	if len(m.Role.Statements) != 1 {
		t.Fatalf("Expected 1 statement, got %d", len(m.Role.Statements))
	}
	if m.Role.Statements[0].Sid != "logs" || len(m.Role.Statements[0].Actions) != 3 {
		t.Errorf("Unexpected statement: %+v", m.Role.Statements[0])
	}
	if m.VPC == nil || len(m.VPC.SubnetIDs) != 2 || len(m.VPC.SecurityGroupIDs) != 1 {
		t.Errorf("Unexpected VPC block: %+v", m.VPC)
	}
	if m.Resources.MemoryMB != 512 || m.Resources.TimeoutSeconds != 120 {
		t.Errorf("Unexpected resources: %+v", m.Resources)
	}
	if len(m.Environment) != 2 || m.Environment["LOG_LEVEL"] != "info" {
		t.Errorf("Unexpected environment: %v", m.Environment)
	}
	if m.Schedule.Expression != "rate(1 day)" {
		t.Errorf("Unexpected schedule expression: %s", m.Schedule.Expression)
	}
	if m.Schedule.Enabled == nil || !*m.Schedule.Enabled {
		t.Error("Expected schedule.enabled to parse as true")
	}
	if m.FailurePolicy == nil || m.FailurePolicy.MaxRetryAttempts != 2 {
		t.Errorf("Unexpected failure policy: %+v", m.FailurePolicy)
	}
	if m.Tags["team"] != "billing" {
		t.Errorf("Unexpected tags: %v", m.Tags)
	}
}

func TestLoader_Parse_MinimalDocument(t *testing.T) {
	m, err := NewLoader().Parse([]byte(minimalDocument))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if m.VPC != nil {
		t.Errorf("Expected no VPC block, got %+v", m.VPC)
	}
	if m.FailurePolicy != nil {
		t.Errorf("Expected no failure policy, got %+v", m.FailurePolicy)
	}
	if m.Schedule.Enabled != nil {
		t.Error("Expected schedule.enabled to stay unset when omitted")
	}
}

func TestLoader_Parse_UnknownFieldRejected(t *testing.T) {
	doc := strings.Replace(validDocument, "handler:", "handlr:", 1)

	_, err := NewLoader().Parse([]byte(doc))
	if err == nil {
		t.Fatal("Expected error for unknown field, got nil")
	}
	if !strings.Contains(err.Error(), "handlr") {
		t.Errorf("Expected error to name the unknown field, got: %v", err)
	}
}

func TestLoader_Parse_ValidationFailures(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(string) string
		wantField string
	}{
		{
			name:      "missing name",
			mutate:    func(doc string) string { return strings.Replace(doc, "name: ping\n", "", 1) },
			wantField: "name",
		},
		{
			name:      "missing runtime",
			mutate:    func(doc string) string { return strings.Replace(doc, "runtime: python3.12\n", "", 1) },
			wantField: "runtime",
		},
		{
			name:      "missing code digest",
			mutate:    func(doc string) string { return strings.Replace(doc, "  sha256: \"abc123\"\n", "", 1) },
			wantField: "code.sha256",
		},
		{
			name:      "missing schedule expression",
			mutate:    func(doc string) string { return strings.Replace(doc, "  expression: rate(5 minutes)\n", "  enabled: true\n", 1) },
			wantField: "schedule.expression",
		},
		{
			name: "no policy statements",
			mutate: func(doc string) string {
				return strings.Replace(doc,
					`role:
  statements:
    - effect: Allow
      actions: ["logs:PutLogEvents"]
      resources: ["*"]
`,
					"role:\n  statements: []\n", 1)
			},
			wantField: "role.statements",
		},
		{
			name:      "lowercase effect",
			mutate:    func(doc string) string { return strings.Replace(doc, "effect: Allow", "effect: allow", 1) },
			wantField: "role.statements[0].effect",
		},
		{
			name:      "statement without actions",
			mutate:    func(doc string) string { return strings.Replace(doc, "      actions: [\"logs:PutLogEvents\"]\n", "      actions: []\n", 1) },
			wantField: "role.statements[0].actions",
		},
		{
			name:      "zero memory",
			mutate:    func(doc string) string { return strings.Replace(doc, "memory_mb: 128", "memory_mb: 0", 1) },
			wantField: "resources.memory_mb",
		},
		{
			name:      "zero timeout",
			mutate:    func(doc string) string { return strings.Replace(doc, "timeout_seconds: 30", "timeout_seconds: 0", 1) },
			wantField: "resources.timeout_seconds",
		},
		{
			name: "vpc without subnets",
			mutate: func(doc string) string {
				return doc + "vpc:\n  subnet_ids: []\n  security_group_ids: [sg-1]\n"
			},
			wantField: "vpc.subnet_ids",
		},
		{
			name: "negative retry attempts",
			mutate: func(doc string) string {
				return doc + "failure_policy:\n  max_retry_attempts: -1\n"
			},
			wantField: "failure_policy.max_retry_attempts",
		},
	}

	loader := NewLoader()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loader.Parse([]byte(tt.mutate(minimalDocument)))
			if err == nil {
				t.Fatal("Expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantField) {
				t.Errorf("Expected error to name field %s, got: %v", tt.wantField, err)
			}
		})
	}
}

func TestLoader_Parse_EmptyDocument(t *testing.T) {
	for _, doc := range []string{"", "\n\n"} {
		_, err := NewLoader().Parse([]byte(doc))
		if err == nil {
			t.Fatal("Expected error for empty document, got nil")
		}
		if !strings.Contains(err.Error(), "empty") {
			t.Errorf("Expected empty-document error, got: %v", err)
		}
	}
}

func TestLoader_Parse_MalformedYAML(t *testing.T) {
	_, err := NewLoader().Parse([]byte("name: [unclosed"))
	if err == nil {
		t.Fatal("Expected error for malformed YAML, got nil")
	}
	if !strings.Contains(err.Error(), "failed to parse manifest YAML") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deploy.yaml")
	if err := os.WriteFile(path, []byte(validDocument), 0o644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if m.Name != "invoice-rollup" {
		t.Errorf("Expected name 'invoice-rollup', got %s", m.Name)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("Expected error for missing file, got nil")
	}
	if !strings.Contains(err.Error(), "failed to read manifest file") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestLoad_InvalidFileNamesPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(path, []byte("name: x\n"), 0o644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("Expected validation error, got nil")
	}
	if !strings.Contains(err.Error(), path) {
		t.Errorf("Expected error to include the file path, got: %v", err)
	}
}
