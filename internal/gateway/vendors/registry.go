package vendors

import "fmt"

// Registry maps provider identifiers to adapter implementations. It is
// resolved once at configuration load, not per call.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds a registry from the given adapters, keyed by Name().
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

// Get returns the adapter for a provider identifier.
func (r *Registry) Get(provider string) (Adapter, error) {
	a, ok := r.adapters[provider]
	if !ok {
		return nil, fmt.Errorf("unsupported vendor: %s", provider)
	}
	return a, nil
}

// Names returns the registered provider identifiers.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}
