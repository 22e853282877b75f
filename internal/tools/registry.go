package tools

import (
	"fmt"
	"slices"
)

// Registry is an immutable name-to-definition lookup built once at startup.
// Dispatch goes through Get; there is no mutation after construction, so
// concurrent lookups need no locking.
type Registry struct {
	defs map[string]*Definition
}

// NewRegistry builds a registry from definitions. Duplicate names are a
// construction error, not a silent overwrite.
func NewRegistry(defs ...*Definition) (*Registry, error) {
	m := make(map[string]*Definition, len(defs))
	for _, d := range defs {
		if d == nil {
			return nil, fmt.Errorf("tools: nil definition")
		}
		if _, exists := m[d.Name()]; exists {
			return nil, fmt.Errorf("tools: duplicate tool %q", d.Name())
		}
		m[d.Name()] = d
	}
	return &Registry{defs: m}, nil
}

// Get returns the definition for name, or ErrUnknownTool.
func (r *Registry) Get(name string) (*Definition, error) {
	d, ok := r.defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return d, nil
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// All returns the definitions in name order, for declaring the tool surface
// to the model.
func (r *Registry) All() []*Definition {
	defs := make([]*Definition, 0, len(r.defs))
	for _, name := range r.Names() {
		defs = append(defs, r.defs[name])
	}
	return defs
}
