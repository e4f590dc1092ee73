// Package manifest loads YAML desired-state documents and converts them
// into the engine's deployment form.
//
// A manifest describes one scheduled function deployment: the code
// artifact, runtime and handler, execution role, optional VPC placement,
// resource limits, environment, schedule, and failure policy. Decoding is
// strict (unknown fields are rejected) and documents are validated
// structurally before conversion; deeper semantic checks such as schedule
// expression syntax belong to the engine.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Loader parses and validates manifest documents.
type Loader struct {
	validator *validator.Validate
}

// NewLoader creates a loader with struct validation reporting YAML field
// names, so errors name the paths authors actually wrote.
func NewLoader() *Loader {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Loader{validator: v}
}

// Load reads and parses a manifest from a YAML file.
func (l *Loader) Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	m, err := l.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes and validates a manifest document. Decoding is strict:
// unknown fields are rejected so a typoed key cannot silently drop
// configuration.
func (l *Loader) Parse(data []byte) (*Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("manifest document is empty")
		}
		return nil, fmt.Errorf("failed to parse manifest YAML: %w", err)
	}

	if err := l.validate(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (l *Loader) validate(m *Manifest) error {
	err := l.validator.Struct(m)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("manifest validation failed: %w", err)
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		path := strings.TrimPrefix(fe.Namespace(), "Manifest.")
		fields = append(fields, fmt.Sprintf("%s (%s)", path, fe.Tag()))
	}
	return fmt.Errorf("manifest validation failed: %s", strings.Join(fields, ", "))
}

// Load reads and parses a manifest file using a default loader.
func Load(path string) (*Manifest, error) {
	return NewLoader().Load(path)
}

// Parse decodes and validates a manifest document using a default loader.
func Parse(data []byte) (*Manifest, error) {
	return NewLoader().Parse(data)
}
