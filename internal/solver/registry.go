package solver

import (
	"fmt"
	"sort"
)

// Registry maps backend names to engine constructors.
type Registry struct {
	engines map[string]func() Engine
}

func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]func() Engine)}
}

func (r *Registry) Register(name string, fn func() Engine) {
	r.engines[name] = fn
}

func (r *Registry) Get(name string) (Engine, error) {
	fn, ok := r.engines[name]
	if !ok {
		return nil, fmt.Errorf("unknown solver: %s", name)
	}
	return fn(), nil
}

func (r *Registry) List() []string {
	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
