package config

import (
	"context"
	"fmt"

	"github.com/cronverge/cronverge/pkg/engine"
	"github.com/cronverge/cronverge/pkg/manifest"
)

// Load reads a deployment document and converts it into the engine's
// desired-state form. The frontend is chosen by file extension.
func Load(ctx context.Context, path string) (*engine.DesiredDeployment, error) {
	return LoadWithVars(ctx, path, nil)
}

// LoadWithVars is Load with external variables. CUE documents see them
// under the top-level vars field; Starlark scripts see them as the
// predeclared vars dict. YAML manifests are static, so passing variables
// with a YAML path is an error rather than a silent no-op.
func LoadWithVars(ctx context.Context, path string, vars map[string]string) (*engine.DesiredDeployment, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	var m *manifest.Manifest
	switch format {
	case FormatYAML:
		if len(vars) > 0 {
			return nil, fmt.Errorf("%s: variables are not supported for YAML manifests", path)
		}
		m, err = manifest.Load(path)
	case FormatCUE:
		m, err = NewCUEParser().ParseFile(path, vars)
	case FormatStarlark:
		m, err = NewStarlarkEvaluator(0).LoadFile(ctx, path, vars)
	}
	if err != nil {
		return nil, err
	}

	return m.ToDeployment(), nil
}
