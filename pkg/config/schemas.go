package config

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/cronverge/cronverge/pkg/manifest"
)

// SchemaRegistry manages the CUE schemas deployment documents are checked
// against.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a registry with the built-in deployment
// schemas registered. The parser passes its own context so document
// values can unify with schemas directly; passing nil creates a fresh
// context for standalone use.
func NewSchemaRegistry(ctx *cue.Context) *SchemaRegistry {
	if ctx == nil {
		ctx = cuecontext.New()
	}
	sr := &SchemaRegistry{
		ctx:     ctx,
		schemas: make(map[string]cue.Value),
	}
	sr.registerBuiltinSchemas()
	return sr
}

// registerBuiltinSchemas compiles the built-in schema source once and
// registers each definition under its document name.
func (sr *SchemaRegistry) registerBuiltinSchemas() {
	root := sr.ctx.CompileString(builtinDeploymentSchema)
	if err := root.Err(); err != nil {
		panic(fmt.Sprintf("config: built-in schema does not compile: %v", err))
	}

	builtins := map[string]string{
		"deployment":     "#Deployment",
		"code":           "#Code",
		"role":           "#Role",
		"statement":      "#Statement",
		"vpc":            "#VPC",
		"resources":      "#Resources",
		"schedule":       "#Schedule",
		"failure_policy": "#FailurePolicy",
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()
	for name, path := range builtins {
		sr.schemas[name] = root.LookupPath(cue.ParsePath(path))
	}
}

// RegisterSchema compiles and registers a schema under the given name.
// When the source declares exactly one top-level definition, that
// definition becomes the schema; otherwise the whole compiled value does.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	if def, ok := soleDefinition(val); ok {
		val = def
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.schemas[name] = val
	return nil
}

// soleDefinition returns the only definition in a compiled schema source,
// provided nothing else is declared beside it.
func soleDefinition(val cue.Value) (cue.Value, bool) {
	iter, err := val.Fields(cue.Definitions(true))
	if err != nil {
		return cue.Value{}, false
	}

	var def cue.Value
	count := 0
	for iter.Next() {
		if !iter.Selector().IsDefinition() {
			return cue.Value{}, false
		}
		def = iter.Value()
		count++
	}
	return def, count == 1
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// Validate checks Go data against a named schema. The data is encoded
// into CUE, unified with the schema, and must come out concrete.
func (sr *SchemaRegistry) Validate(name string, data interface{}) error {
	schema, ok := sr.GetSchema(name)
	if !ok {
		return fmt.Errorf("schema %s not found", name)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// ValidateDeployment validates a manifest document against the built-in
// deployment schema.
func (sr *SchemaRegistry) ValidateDeployment(m *manifest.Manifest) error {
	return sr.Validate("deployment", m)
}

// ListSchemas returns all registered schema names.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	return names
}

// builtinDeploymentSchema defines the deployment document vocabulary. The
// definitions are closed, so a typoed field name fails unification instead
// of being silently dropped.
const builtinDeploymentSchema = `
#NonEmpty: string & !=""

// Deployment is one scheduled function deployment: the code artifact,
// runtime and handler, execution role, optional VPC placement, resource
// limits, environment, schedule, and failure policy.
#Deployment: {
	// name joins every derived resource; identity is never inferred
	// from content.
	name: #NonEmpty

	description?: string

	code: #Code

	// runtime is the function runtime identifier, e.g. "python3.12".
	runtime: #NonEmpty

	// handler is the entry point within the artifact.
	handler: #NonEmpty

	role: #Role

	vpc?: #VPC

	resources: #Resources

	// Variable names follow the provider's environment key rules.
	environment?: {[=~"^[A-Za-z_][A-Za-z0-9_]*$"]: string}

	schedule: #Schedule

	failure_policy?: #FailurePolicy

	tags?: {[string]: string}
}

#Code: {
	s3_bucket: #NonEmpty
	s3_key:    #NonEmpty
	s3_object_version?: string

	// Base64-encoded SHA-256 of the artifact; drives code drift detection.
	sha256: #NonEmpty
}

#Role: {
	trusted_services?: [...#NonEmpty]

	// At least one inline policy statement.
	statements: [#Statement, ...#Statement]
}

#Statement: {
	sid?:   string
	effect: "Allow" | "Deny"
	actions: [#NonEmpty, ...#NonEmpty]
	resources: [#NonEmpty, ...#NonEmpty]
}

#VPC: {
	subnet_ids: [#NonEmpty, ...#NonEmpty]
	security_group_ids: [#NonEmpty, ...#NonEmpty]
}

#Resources: {
	memory_mb:       int & >0
	timeout_seconds: int & >0
}

#Schedule: {
	// rate(5 minutes) or cron(0 3 * * ? *); the engine checks the full
	// grammar before planning.
	expression: string & =~"^(rate|cron)\\(.+\\)$"

	// Omitted means enabled.
	enabled?: bool
}

#FailurePolicy: {
	max_retry_attempts: int & >=0
	dead_letter_target?: string
}
`
