// Package providers maps provider names to CloudProvider factories so the
// CLI can select a control plane by name. Provider packages register
// themselves from init; importing a provider package for side effects is
// enough to make it available.
package providers

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cronverge/cronverge/pkg/engine"
)

// Config carries the provider-agnostic connection settings a factory may use.
// Fields a provider has no use for are ignored.
type Config struct {
	// Region is the provider region, empty for the environment default.
	Region string

	// Profile is the named credentials profile, empty for the default chain.
	Profile string

	// Endpoint overrides the control-plane endpoint, for local stacks.
	Endpoint string
}

// Factory builds a CloudProvider from connection settings.
type Factory func(ctx context.Context, cfg Config) (engine.CloudProvider, error)

// Registry maps provider names to factories.
type Registry struct {
	// mu protects the factory map.
	mu sync.RWMutex

	// factories maps provider name to factory.
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a named factory. The registry is populated from package init
// functions, so a duplicate name is a programming error and panics.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		panic(fmt.Sprintf("provider %s already registered", name))
	}
	r.factories[name] = factory
}

// New builds a provider by name.
func (r *Registry) New(ctx context.Context, name string, cfg Config) (engine.CloudProvider, error) {
	r.mu.RLock()
	factory, exists := r.factories[name]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("provider %s not found (available: %v)", name, r.List())
	}
	return factory(ctx, cfg)
}

// List returns the registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default is the process-wide registry.
var Default = NewRegistry()

// Register adds a factory to the default registry.
func Register(name string, factory Factory) {
	Default.Register(name, factory)
}

// New builds a provider from the default registry.
func New(ctx context.Context, name string, cfg Config) (engine.CloudProvider, error) {
	return Default.New(ctx, name, cfg)
}

// List returns the default registry's provider names.
func List() []string {
	return Default.List()
}
