package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/cronverge/cronverge/pkg/manifest"
	"github.com/go-playground/validator/v10"
)

// CUEParser loads deployment documents written in CUE. A document
// declares its deployment under the top-level deployment field; other
// top-level fields are free for intermediate values, so authors can
// factor shared fragments and compute fields before they land in the
// deployment.
type CUEParser struct {
	ctx       *cue.Context
	schemas   *SchemaRegistry
	validator *validator.Validate
}

// NewCUEParser creates a parser with the built-in deployment schemas. The
// registry shares the parser's context so document values unify with
// schemas directly.
func NewCUEParser() *CUEParser {
	ctx := cuecontext.New()
	return &CUEParser{
		ctx:       ctx,
		schemas:   NewSchemaRegistry(ctx),
		validator: newDocumentValidator(),
	}
}

// newDocumentValidator builds a struct validator reporting document field
// names, so errors name the paths authors actually wrote.
func newDocumentValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ParseFile loads a single CUE document. Variables are optional; the
// document sees them under the top-level vars field.
func (p *CUEParser) ParseFile(path string, vars map[string]string) (*manifest.Manifest, error) {
	return p.ParseFiles([]string{path}, vars)
}

// ParseFiles loads one or more CUE documents and unifies them in order,
// so a base document can be layered with environment overlays.
// Conflicting concrete values fail the unification.
func (p *CUEParser) ParseFiles(paths []string, vars map[string]string) (*manifest.Manifest, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no documents provided")
	}

	var root cue.Value
	for i, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read document: %w", err)
		}

		val := p.ctx.CompileString(string(content), cue.Filename(path))
		if err := val.Err(); err != nil {
			return nil, p.convertCUEErrors(err)
		}

		if i == 0 {
			root = val
		} else {
			root = root.Unify(val)
		}
	}

	return p.extract(root, paths[0], vars)
}

// ParseInline parses CUE content that is not backed by a file.
func (p *CUEParser) ParseInline(content string, vars map[string]string) (*manifest.Manifest, error) {
	val := p.ctx.CompileString(content, cue.Filename("inline.cue"))
	if err := val.Err(); err != nil {
		return nil, p.convertCUEErrors(err)
	}
	return p.extract(val, "inline.cue", vars)
}

// extract fills variables, unifies the document's deployment value with
// the schema, and decodes it into the manifest form.
func (p *CUEParser) extract(root cue.Value, file string, vars map[string]string) (*manifest.Manifest, error) {
	if len(vars) > 0 {
		root = root.FillPath(cue.ParsePath("vars"), vars)
	}
	if err := root.Err(); err != nil {
		return nil, p.convertCUEErrors(err)
	}

	depl := root.LookupPath(cue.ParsePath("deployment"))
	if !depl.Exists() {
		return nil, ValidationErrors{{
			File:     file,
			Path:     "deployment",
			Message:  "document does not declare a deployment",
			Severity: "error",
		}}
	}

	schema, ok := p.schemas.GetSchema("deployment")
	if !ok {
		return nil, fmt.Errorf("deployment schema not registered")
	}

	unified := schema.Unify(depl)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, p.convertCUEErrors(err)
	}

	var m manifest.Manifest
	if err := unified.Decode(&m); err != nil {
		return nil, p.convertCUEErrors(err)
	}

	if err := p.validateStruct(file, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// validateStruct runs the same struct validation the YAML frontend uses,
// converted into position-less document errors.
func (p *CUEParser) validateStruct(file string, m *manifest.Manifest) error {
	err := p.validator.Struct(m)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("document validation failed: %w", err)
	}

	out := make(ValidationErrors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, ValidationError{
			File:     file,
			Path:     strings.TrimPrefix(fe.Namespace(), "Manifest."),
			Message:  fmt.Sprintf("violates the %s constraint", fe.Tag()),
			Severity: "error",
		})
	}
	return out
}

// convertCUEErrors flattens a CUE error into position-carrying document
// errors.
func (p *CUEParser) convertCUEErrors(err error) ValidationErrors {
	var out ValidationErrors
	for _, e := range cueerrors.Errors(err) {
		ve := ValidationError{
			Path:     strings.Join(e.Path(), "."),
			Severity: "error",
		}
		if pos := cueerrors.Positions(e); len(pos) > 0 {
			ve.File = pos[0].Filename()
			ve.Line = pos[0].Line()
			ve.Column = pos[0].Column()
		}
		format, args := e.Msg()
		ve.Message = fmt.Sprintf(format, args...)
		out = append(out, ve)
	}
	return out
}
