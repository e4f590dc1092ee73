// Package config loads deployment documents in every supported format
// and converts them into the engine's desired-state form.
//
// # Formats
//
// Three document languages describe the same deployment vocabulary:
//
//   - YAML (.yaml, .yml): static manifests, decoded by pkg/manifest
//   - CUE (.cue): typed documents with constraints and overlay unification
//   - Starlark (.star): sandboxed scripts that compute the document
//
// Load picks the frontend by file extension. Every frontend produces the
// same manifest shape and the same engine.DesiredDeployment, so the rest
// of the system never cares how a document was authored.
//
//	deployment, err := config.Load(ctx, "deploy/nightly-report.cue")
//	if err != nil {
//	    return err
//	}
//
// # CUE Documents
//
// A CUE document declares its deployment under the top-level deployment
// field. Other top-level fields are free for intermediate values:
//
//	_bucket: "acme-artifacts"
//
//	deployment: {
//	    name:    "nightly-report"
//	    runtime: "python3.12"
//	    handler: "report.handler"
//	    code: {
//	        s3_bucket: _bucket
//	        s3_key:    "functions/nightly-report.zip"
//	        sha256:    "47DEQpj8HBSa+/TImW+5JCeuQeRkm5NMpJWZG3hSuFU="
//	    }
//	    role: statements: [{
//	        effect:    "Allow"
//	        actions:   ["s3:GetObject"]
//	        resources: ["arn:aws:s3:::acme-reports/*"]
//	    }]
//	    resources: {memory_mb: 256, timeout_seconds: 120}
//	    schedule: expression: "cron(0 3 * * ? *)"
//	}
//
// CUEParser.ParseFiles unifies several documents in order, so a base
// document can be layered with per-environment overlays. The built-in
// schema is closed: unknown fields fail the load instead of being
// silently dropped.
//
// # Starlark Scripts
//
// A Starlark script computes its document and leaves it in the deployment
// global. The predeclared rate and cron helpers build schedule
// expressions and reject malformed ones at evaluation time:
//
//	env = vars.get("env", "dev")
//
//	deployment = {
//	    "name":    "nightly-report-" + env,
//	    "runtime": "python3.12",
//	    "handler": "report.handler",
//	    "code": {
//	        "s3_bucket": "acme-artifacts",
//	        "s3_key":    "functions/nightly-report.zip",
//	        "sha256":    "47DEQpj8HBSa+/TImW+5JCeuQeRkm5NMpJWZG3hSuFU=",
//	    },
//	    "role": {"statements": [{
//	        "effect":    "Allow",
//	        "actions":   ["s3:GetObject"],
//	        "resources": ["arn:aws:s3:::acme-reports/*"],
//	    }]},
//	    "resources": {"memory_mb": 256, "timeout_seconds": 120},
//	    "schedule":  {"expression": rate(12, "hours")},
//	}
//
// The resulting dict goes through the same strict decoding and validation
// as a YAML manifest.
//
// # Variables
//
// LoadWithVars passes external variables into computed documents: CUE
// documents see them under the top-level vars field, Starlark scripts as
// the predeclared vars dict. YAML manifests are static; combining them
// with variables is an error.
//
// # Schema Validation
//
// SchemaRegistry holds the CUE definitions for the deployment document
// and its blocks (code, role, statement, vpc, resources, schedule,
// failure_policy). CUE documents are unified with the deployment schema
// during loading; Validate checks arbitrary Go data against any
// registered schema, and custom schemas can be registered for
// domain-specific checks.
//
// # Error Reporting
//
// Document problems are collected into ValidationErrors so one load
// reports everything at once. CUE errors carry file, line, and column:
//
//	ValidationError{
//	    File:    "deploy/nightly-report.cue",
//	    Line:    12,
//	    Column:  9,
//	    Path:    "role.statements.0.effect",
//	    Message: "2 errors in empty disjunction: ...",
//	}
//
// # Security
//
// Starlark execution is sandboxed. Scripts get no filesystem or network
// access, print output is discarded, and a hard timeout (default 30
// seconds) cancels the interpreter thread. Schedule expression syntax is
// still enforced by the engine before any provider call, whichever
// frontend produced the document.
//
// # Thread Safety
//
// All types in this package are safe for concurrent use.
package config
