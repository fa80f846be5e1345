package executor

import (
	"fmt"
	"sort"
)

// Factory builds a fresh executor instance. The registry never reuses
// instances across contracts, so executors can keep per-contract state
// without leaking it between runs.
type Factory func() Executor

// Registry maps executor names to factories. Registration is static: the
// table is assembled at startup and a duplicate name is a hard error, never
// a silent overwrite.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry with the built-in executors.
func DefaultRegistry() *Registry {
	return &Registry{factories: map[string]Factory{
		NameCall:   func() Executor { return &CallExecutor{} },
		NameShell:  func() Executor { return &ShellExecutor{} },
		NameStatic: func() Executor { return &StaticExecutor{} },
		NameSclang: func() Executor { return &SclangExecutor{} },
	}}
}

// Register adds a named factory. Registering an empty name, a nil factory,
// or a name that is already taken returns an error.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" {
		return fmt.Errorf("executor name must not be empty")
	}
	if f == nil {
		return fmt.Errorf("executor %q: factory must not be nil", name)
	}
	if _, dup := r.factories[name]; dup {
		return fmt.Errorf("executor %q already registered", name)
	}
	r.factories[name] = f
	return nil
}

// Create instantiates the named executor. Unknown names are an error so the
// runner can report them as a setup failure instead of crashing.
func (r *Registry) Create(name string) (Executor, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("no executor registered for %q", name)
	}
	return f(), nil
}

// Available lists the registered executor names, sorted.
func (r *Registry) Available() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
