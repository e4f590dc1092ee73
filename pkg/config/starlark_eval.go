package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cronverge/cronverge/pkg/engine"
	"github.com/cronverge/cronverge/pkg/manifest"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"gopkg.in/yaml.v3"
)

// StarlarkEvaluator executes deployment scripts in a sandbox. Scripts
// get no filesystem or network access and are cancelled after a hard
// timeout.
type StarlarkEvaluator struct {
	timeout time.Duration
}

// NewStarlarkEvaluator creates an evaluator. A zero timeout means the
// default of 30 seconds.
func NewStarlarkEvaluator(timeout time.Duration) *StarlarkEvaluator {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &StarlarkEvaluator{
		timeout: timeout,
	}
}

// LoadFile evaluates a deployment script from disk. The script must leave
// a deployment dict in its globals; variables appear as the predeclared
// vars dict.
func (se *StarlarkEvaluator) LoadFile(ctx context.Context, path string, vars map[string]string) (*manifest.Manifest, error) {
	script, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return se.EvaluateDeployment(ctx, path, string(script), vars)
}

// EvaluateDeployment runs a script and decodes its deployment global into
// a manifest, applying the same strict decoding and validation as the
// YAML frontend.
func (se *StarlarkEvaluator) EvaluateDeployment(ctx context.Context, filename, script string, vars map[string]string) (*manifest.Manifest, error) {
	input := map[string]interface{}{
		"vars": varsInput(vars),
	}

	result, err := se.Evaluate(ctx, filename, script, input)
	if err != nil {
		return nil, err
	}

	raw, ok := result.Output["deployment"]
	if !ok {
		return nil, fmt.Errorf("%s: script must define a deployment value", filename)
	}
	doc, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%s: deployment must be a dict or struct, got %T", filename, raw)
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to encode deployment: %w", filename, err)
	}

	m, err := manifest.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return m, nil
}

// varsInput widens string variables for the converter. A nil map still
// yields a dict, so scripts can call vars.get unconditionally.
func varsInput(vars map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(vars))
	for k, v := range vars {
		out[k] = v
	}
	return out
}

// Evaluate executes a Starlark script with the given input and returns
// the exported globals. The script is cancelled when the timeout or the
// caller's context expires.
func (se *StarlarkEvaluator) Evaluate(ctx context.Context, filename, script string, input map[string]interface{}) (*StarlarkResult, error) {
	startTime := time.Now()

	evalCtx, cancel := context.WithTimeout(ctx, se.timeout)
	defer cancel()

	thread := &starlark.Thread{
		Name: "cronverge",
		Print: func(_ *starlark.Thread, msg string) {
			// Print is suppressed; scripts have no stdout.
		},
	}

	resultCh := make(chan *StarlarkResult, 1)
	errCh := make(chan error, 1)

	go func() {
		result, err := se.evaluateSync(thread, filename, script, input)
		if err != nil {
			errCh <- err
		} else {
			resultCh <- result
		}
	}()

	select {
	case <-evalCtx.Done():
		thread.Cancel("deadline")
		msg := fmt.Sprintf("execution timeout after %v", se.timeout)
		if !errors.Is(evalCtx.Err(), context.DeadlineExceeded) {
			msg = "execution cancelled"
		}
		return &StarlarkResult{
			ExecutionTime: time.Since(startTime),
			Error:         msg,
		}, fmt.Errorf("starlark %s", msg)
	case err := <-errCh:
		return &StarlarkResult{
			ExecutionTime: time.Since(startTime),
			Error:         err.Error(),
		}, err
	case result := <-resultCh:
		result.ExecutionTime = time.Since(startTime)
		return result, nil
	}
}

// evaluateSync performs the actual Starlark evaluation synchronously.
func (se *StarlarkEvaluator) evaluateSync(thread *starlark.Thread, filename, script string, input map[string]interface{}) (*StarlarkResult, error) {
	predeclared := starlark.StringDict{
		"struct": starlarkstruct.Default,
		"rate":   starlark.NewBuiltin("rate", builtinRate),
		"cron":   starlark.NewBuiltin("cron", builtinCron),
	}

	for key, val := range input {
		starlarkVal, err := toStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert input %s: %w", key, err)
		}
		predeclared[key] = starlarkVal
	}

	globals, err := starlark.ExecFile(thread, filename, script, predeclared)
	if err != nil {
		return nil, fmt.Errorf("starlark execution failed: %w", err)
	}

	// Convert globals to the output map. Underscore-prefixed names are
	// script-internal, and helper functions stay behind.
	output := make(map[string]interface{})
	for name, val := range globals {
		if strings.HasPrefix(name, "_") {
			continue
		}
		if _, isFunc := val.(*starlark.Function); isFunc {
			continue
		}
		goVal, err := fromStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert output %s: %w", name, err)
		}
		output[name] = goVal
	}

	return &StarlarkResult{
		Output: output,
	}, nil
}

// toStarlarkValue converts a Go value to a Starlark value.
func toStarlarkValue(v interface{}) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []interface{}:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			starlarkItem, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = starlarkItem
		}
		return starlark.NewList(list), nil
	case map[string]interface{}:
		dict := starlark.NewDict(len(val))
		for k, item := range val {
			starlarkVal, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), starlarkVal); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// fromStarlarkValue converts a Starlark value to a Go value.
func fromStarlarkValue(v starlark.Value) (interface{}, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		list := make([]interface{}, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromStarlarkValue(val.Index(i))
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case starlark.Tuple:
		list := make([]interface{}, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromStarlarkValue(val.Index(i))
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case *starlark.Dict:
		dict := make(map[string]interface{})
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string")
			}
			value, err := fromStarlarkValue(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = value
		}
		return dict, nil
	case *starlarkstruct.Struct:
		dict := make(map[string]interface{})
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			value, err := fromStarlarkValue(attr)
			if err != nil {
				return nil, err
			}
			dict[name] = value
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}

// Built-in Starlark functions. The interpreter's universe already carries
// the usual suspects (range, enumerate, zip); these add the schedule
// expression helpers.

// builtinRate builds a rate(...) schedule expression, keeping the unit's
// grammatical number in agreement with the value.
func builtinRate(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var value int64
	var unit string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "value", &value, "unit", &unit); err != nil {
		return nil, err
	}

	if value < 1 {
		return nil, fmt.Errorf("rate: value must be at least 1, got %d", value)
	}

	base := strings.TrimSuffix(strings.ToLower(unit), "s")
	switch base {
	case "minute", "hour", "day":
	default:
		return nil, fmt.Errorf("rate: unit must be minutes, hours, or days, got %q", unit)
	}

	if value > 1 {
		base += "s"
	}
	return starlark.String(fmt.Sprintf("rate(%d %s)", value, base)), nil
}

// builtinCron builds a cron(...) schedule expression, rejecting malformed
// field lists at evaluation time instead of during planning.
func builtinCron(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var fields string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "fields", &fields); err != nil {
		return nil, err
	}

	expr := fmt.Sprintf("cron(%s)", strings.TrimSpace(fields))
	if err := engine.ValidateScheduleExpression(expr); err != nil {
		return nil, fmt.Errorf("cron: %w", err)
	}
	return starlark.String(expr), nil
}
