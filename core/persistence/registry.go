package persistence

import (
	"sort"

	"github.com/wira-labs/go-muundo/core/schema"
)

// Registry holds every registered model. It is built once at startup by the
// loader, then read-only; cross-model references resolve against it.
type Registry struct {
	models map[string]*Model
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]*Model)}
}

// Register adds a model. Registering a name twice is a definition error.
func (r *Registry) Register(m *Model) error {
	name := m.Name()
	if _, exists := r.models[name]; exists {
		return &schema.DuplicateModelError{Name: name}
	}
	r.models[name] = m
	return nil
}

// Get returns the named model, or nil when unknown.
func (r *Registry) Get(name string) *Model {
	return r.models[name]
}

// Names returns the registered model names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveReferences checks that every reference field in every registered
// model points at a registered model. Called by the loader after all
// definitions are in.
func (r *Registry) ResolveReferences() error {
	for _, name := range r.Names() {
		cs := r.models[name].Schema()
		for _, path := range sortedRefPaths(cs.References) {
			target := cs.References[path]
			if _, ok := r.models[target]; !ok {
				return &schema.UnknownModelError{Model: name, Path: path, Target: target}
			}
		}
	}
	return nil
}

func sortedRefPaths(refs map[string]string) []string {
	paths := make([]string, 0, len(refs))
	for path := range refs {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}
