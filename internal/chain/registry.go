package chain

import "fmt"

// Registry resolves adapters by chain kind. Adapter selection is a plain
// lookup; there is no dispatch hierarchy.
type Registry struct {
	adapters map[Kind]Adapter
}

// NewRegistry indexes the provided adapters by kind.
func NewRegistry(adapters ...Adapter) *Registry {
	indexed := make(map[Kind]Adapter, len(adapters))
	for _, a := range adapters {
		indexed[a.Kind()] = a
	}
	return &Registry{adapters: indexed}
}

// ForKind returns the adapter registered for the kind.
func (r *Registry) ForKind(kind Kind) (Adapter, error) {
	adapter, ok := r.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedChain, kind)
	}
	return adapter, nil
}

// Kinds lists the registered chains.
func (r *Registry) Kinds() []Kind {
	kinds := make([]Kind, 0, len(r.adapters))
	for kind := range r.adapters {
		kinds = append(kinds, kind)
	}
	return kinds
}
