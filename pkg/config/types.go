package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Format identifies the language a deployment document is written in.
type Format string

const (
	// FormatYAML is a static YAML manifest.
	FormatYAML Format = "yaml"

	// FormatCUE is a CUE document with types, constraints, and overlay
	// unification.
	FormatCUE Format = "cue"

	// FormatStarlark is a sandboxed Starlark script that computes the
	// document.
	FormatStarlark Format = "starlark"
)

// DetectFormat maps a document path to its format by file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".cue":
		return FormatCUE, nil
	case ".star", ".sky":
		return FormatStarlark, nil
	default:
		return "", fmt.Errorf("unsupported document format %q (expected .yaml, .yml, .cue, or .star)", filepath.Ext(path))
	}
}

// ValidationError describes one problem found in a deployment document,
// with the source position where the frontend can provide one.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed, 0 when unknown).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed, 0 when unknown).
	Column int `json:"column,omitempty"`

	// Path is the document path to the offending field, e.g.
	// "role.statements.0.effect".
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`

	// Severity is "error" or "warning".
	Severity string `json:"severity"`
}

// Error renders the error with its position prefix when one is known.
func (e ValidationError) Error() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", e.Line, e.Column)
		}
		b.WriteString(": ")
	}
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

// ValidationErrors aggregates every problem found in one document, so a
// single load reports all of them instead of the first.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return "no validation errors"
	case 1:
		return e[0].Error()
	}
	parts := make([]string, len(e))
	for i, ve := range e {
		parts[i] = ve.Error()
	}
	return fmt.Sprintf("%d validation errors:\n%s", len(e), strings.Join(parts, "\n"))
}

// StarlarkResult is the outcome of one Starlark evaluation.
type StarlarkResult struct {
	// Output maps exported global names to their converted Go values.
	Output map[string]interface{} `json:"output,omitempty"`

	// ExecutionTime is how long the script took to execute.
	ExecutionTime time.Duration `json:"execution_time"`

	// Error is any error that occurred.
	Error string `json:"error,omitempty"`
}
