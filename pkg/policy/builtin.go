package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		resourceLimitsPolicy(),
		scheduleFrequencyPolicy(),
		iamWildcardsPolicy(),
		noLiteralSecretsPolicy(),
		deadLetterPolicy(),
	}
}

// resourceLimitsPolicy enforces platform bounds on memory and timeout.
func resourceLimitsPolicy() Policy {
	return Policy{
		Name:        "resource-limits",
		Description: "Enforces platform bounds on function memory and timeout",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"resources", "limits"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package cronverge.policies.resource_limits

import rego.v1

deny contains violation if {
	memory := input.deployment.resources.memory_mb
	memory < 128
	violation := {
		"message": sprintf("memory %dMB is below the platform minimum of 128MB", [memory]),
		"severity": "error",
		"field": "resources.memory_mb",
	}
}

deny contains violation if {
	memory := input.deployment.resources.memory_mb
	memory > 10240
	violation := {
		"message": sprintf("memory %dMB exceeds the platform maximum of 10240MB", [memory]),
		"severity": "error",
		"field": "resources.memory_mb",
	}
}

deny contains violation if {
	timeout := input.deployment.resources.timeout_seconds
	timeout > 900
	violation := {
		"message": sprintf("timeout %ds exceeds the platform maximum of 900s", [timeout]),
		"severity": "error",
		"field": "resources.timeout_seconds",
	}
}`,
	}
}

// scheduleFrequencyPolicy flags schedules that fire every minute. In
// production environments this blocks; elsewhere it warns.
func scheduleFrequencyPolicy() Policy {
	return Policy{
		Name:        "schedule-frequency",
		Description: "Flags schedules firing every minute; blocks them in production",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"schedule", "cost"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package cronverge.policies.schedule_frequency

import rego.v1

is_production if {
	input.context.environment == "production"
}

is_high_frequency if {
	input.deployment.schedule.expression == "rate(1 minute)"
}

is_high_frequency if {
	expr := input.deployment.schedule.expression
	startswith(expr, "cron(")

	# Minute field of cron(m h dom mon dow year)
	fields := split(substring(expr, 5, count(expr) - 6), " ")
	fields[0] == "*"
}

deny contains violation if {
	is_high_frequency
	is_production
	violation := {
		"message": sprintf("schedule '%s' fires every minute; not allowed in production", [input.deployment.schedule.expression]),
		"severity": "error",
		"field": "schedule.expression",
	}
}

deny contains violation if {
	is_high_frequency
	not is_production
	violation := {
		"message": sprintf("schedule '%s' fires every minute; verify the cost is intended", [input.deployment.schedule.expression]),
		"severity": "warning",
		"field": "schedule.expression",
	}
}`,
	}
}

// iamWildcardsPolicy rejects wildcard grants in the execution role.
func iamWildcardsPolicy() Policy {
	return Policy{
		Name:        "iam-wildcards",
		Description: "Rejects wildcard action grants in execution role statements",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"iam", "security"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package cronverge.policies.iam_wildcards

import rego.v1

deny contains violation if {
	some i
	stmt := input.deployment.role.statements[i]
	stmt.effect == "Allow"
	stmt.actions[_] == "*"
	violation := {
		"message": sprintf("role statement %d allows action '*'; grant specific actions instead", [i]),
		"severity": "error",
		"field": sprintf("role.statements[%d].actions", [i]),
	}
}

deny contains violation if {
	some i
	stmt := input.deployment.role.statements[i]
	stmt.effect == "Allow"
	action := stmt.actions[_]
	action != "*"
	endswith(action, ":*")
	stmt.resources[_] == "*"
	violation := {
		"message": sprintf("role statement %d grants '%s' on all resources; scope the resources", [i, action]),
		"severity": "warning",
		"field": sprintf("role.statements[%d]", [i]),
	}
}`,
	}
}

// noLiteralSecretsPolicy rejects secret-looking environment values that are
// not references to a secret store.
func noLiteralSecretsPolicy() Policy {
	return Policy{
		Name:        "no-literal-secrets",
		Description: "Rejects literal secret values in environment variables",
		Severity:    SeverityCritical,
		Enabled:     true,
		Tags:        []string{"secrets", "security"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package cronverge.policies.no_literal_secrets

import rego.v1

deny contains violation if {
	some key, value in input.deployment.environment
	regex.match("(?i)(password|secret|token|api_?key)", key)
	not startswith(value, "arn:")
	violation := {
		"message": sprintf("environment variable '%s' looks like a secret but holds a literal value; reference a secret store instead", [key]),
		"severity": "critical",
		"field": sprintf("environment.%s", [key]),
	}
}`,
	}
}

// deadLetterPolicy recommends a dead-letter target for failed invocations.
func deadLetterPolicy() Policy {
	return Policy{
		Name:        "dead-letter",
		Description: "Recommends a dead-letter target so failed invocations are not lost",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"reliability"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package cronverge.policies.dead_letter

import rego.v1

deny contains violation if {
	not input.deployment.failure_policy.dead_letter_target
	violation := {
		"message": "no dead-letter target configured; failed invocations will be dropped after retries",
		"severity": "warning",
		"field": "failure_policy.dead_letter_target",
	}
}`,
	}
}
