// Package policy provides Open Policy Agent (OPA) integration for cronverge.
//
// This package gates desired deployment documents before they reach a
// provider. Policies are written in Rego, evaluated against the deployment
// plus an evaluation context, and produce violations that either block an
// apply or are reported as advisory findings.
//
// # Usage
//
// Creating an engine and evaluating a deployment:
//
//	logger := zerolog.New(os.Stdout)
//	eng, err := policy.NewEngine(logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := eng.Evaluate(ctx, deployment, &policy.Context{
//	    Environment: "production",
//	    Operation:   "apply",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if !result.Allowed {
//	    for _, v := range result.Blocking() {
//	        fmt.Printf("%s: %s\n", v.Policy, v.Message)
//	    }
//	}
//
// Loading custom policies from files or directories:
//
//	err = eng.LoadPolicies(ctx, []string{"/etc/cronverge/policies"})
//
// # Built-in Policies
//
// The following policies are included by default:
//
//  1. resource-limits - Platform bounds on function memory and timeout
//  2. schedule-frequency - Flags every-minute schedules; blocks them in production
//  3. iam-wildcards - Rejects wildcard action grants in the execution role
//  4. no-literal-secrets - Rejects literal secret values in environment variables
//  5. dead-letter - Recommends a dead-letter target for failed invocations
//
// # Custom Policies
//
// Custom policies address the deployment as input.deployment, using the
// document's JSON field names:
//
//	package custom.policies.tagging
//
//	import rego.v1
//
//	deny contains violation if {
//	    not input.deployment.tags.team
//	    violation := {
//	        "message": "deployments must carry a team tag",
//	        "severity": "error",
//	        "field": "tags.team",
//	    }
//	}
//
// # Severity Levels
//
// Violations have four severity levels:
//
//   - info: informational messages
//   - warning: findings that should be reviewed but do not block an apply
//   - error: violations that block operations
//   - critical: violations that must never reach a provider
//
// A Result is Allowed only when no violation carries error or critical
// severity. A policy that fails to evaluate is surfaced as a warning string
// rather than blocking the run.
//
// # Hot Reload
//
// The loader can watch policy files and trigger a reload when they change:
//
//	loader := policy.NewLoader(logger)
//	err = loader.Watch(ctx, paths, func(policies []policy.Policy) error {
//	    return eng.LoadPolicies(ctx, paths)
//	})
//
// # Context Injection
//
// Evaluations can carry context so policies make environment-aware
// decisions: the target environment, the operation ("validate", "apply"),
// the evaluation timestamp, and whether the run is a dry run.
package policy
