package core

import (
	"fmt"
	"slices"
	"strings"
)

// BuiltinPrefix is the reserved namespace of default implementations.
const BuiltinPrefix = "builtin:"

// BuiltinName returns the reserved name for a builtin, accepting either the
// bare name ("http") or the prefixed one ("builtin:http").
func BuiltinName(name string) string {
	if strings.HasPrefix(name, BuiltinPrefix) {
		return name
	}
	return BuiltinPrefix + name
}

// Registry maps function names to implementations for one runner lifetime.
//
// A Registry is built once by BuildRegistry and never mutated afterwards, so
// lookups from any number of goroutines need no synchronization.
type Registry struct {
	impls map[string]Implementation
}

type registryConfig struct {
	logger         Logger
	flagCollisions bool
}

// RegistryOption configures BuildRegistry.
type RegistryOption func(*registryConfig)

// WithRegistryLogger sets the logger used to report collisions.
func WithRegistryLogger(l Logger) RegistryOption {
	return func(c *registryConfig) { c.logger = l }
}

// WithCollisionFlagging logs a warning whenever a caller task shadows a
// reserved builtin name or an override targets an unknown builtin.
func WithCollisionFlagging(enabled bool) RegistryOption {
	return func(c *registryConfig) { c.flagCollisions = enabled }
}

// BuildRegistry merges, in increasing precedence:
//  1. defaults: the default builtin implementations (keys may be bare or prefixed),
//  2. overrides: caller replacements for specific builtins, keyed by bare name,
//  3. tasks: caller tasks in the open namespace.
//
// Builtins are only reachable under BuiltinPrefix. A caller task registered
// under a reserved name wins over the builtin.
func BuildRegistry(defaults, overrides, tasks map[string]Implementation, opts ...RegistryOption) (*Registry, error) {
	cfg := registryConfig{logger: NewNoOpLogger()}
	for _, opt := range opts {
		opt(&cfg)
	}

	impls := make(map[string]Implementation, len(defaults)+len(overrides)+len(tasks))

	for name, impl := range defaults {
		if err := validateEntry(name, impl); err != nil {
			return nil, fmt.Errorf("default builtin: %w", err)
		}
		impls[BuiltinName(name)] = impl
	}

	for name, impl := range overrides {
		if err := validateEntry(name, impl); err != nil {
			return nil, fmt.Errorf("builtin override: %w", err)
		}
		key := BuiltinName(name)
		if _, ok := impls[key]; !ok && cfg.flagCollisions {
			cfg.logger.Warn("override targets unknown builtin", F("function", key))
		}
		impls[key] = impl
	}

	for name, impl := range tasks {
		if err := validateEntry(name, impl); err != nil {
			return nil, fmt.Errorf("task: %w", err)
		}
		if _, ok := impls[name]; ok && cfg.flagCollisions && strings.HasPrefix(name, BuiltinPrefix) {
			cfg.logger.Warn("task shadows reserved builtin", F("function", name))
		}
		impls[name] = impl
	}

	return &Registry{impls: impls}, nil
}

func validateEntry(name string, impl Implementation) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyTaskName
	}
	if fn, ok := impl.(ImplementationFunc); impl == nil || (ok && fn == nil) {
		return fmt.Errorf("%w: %q", ErrNilImplementation, name)
	}
	return nil
}

// Lookup returns the implementation registered under name.
func (r *Registry) Lookup(name string) (Implementation, bool) {
	impl, ok := r.impls[name]
	return impl, ok
}

// Names returns all registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.impls))
	for name := range r.impls {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Len returns the number of registered names.
func (r *Registry) Len() int {
	return len(r.impls)
}
