package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/strata/pkg/graph"
)

// ErrUnknownTransform is returned when no transform is registered under a
// method name.
var ErrUnknownTransform = errors.New("unknown topological transform")

// Transform defines the signature of a structural graph transform.
// It receives the graph and the filter arguments and must return a new graph
// without touching the input. It may only look at topology.
type Transform func(g *graph.Graph, args map[string]any) (*graph.Graph, error)

// Registry manages the available transforms.
type Registry struct {
	mu         sync.RWMutex
	transforms map[string]Transform
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		transforms: make(map[string]Transform),
	}
}

// Default returns a registry holding the builtin transforms.
func Default() *Registry {
	r := NewRegistry()
	r.Register("largest_components", LargestComponents)
	r.Register("ego_network", EgoNetwork)
	r.Register("drop_isolates", DropIsolates)
	return r
}

// Register adds a transform to the registry.
// If a transform with the same name exists, it is overwritten.
func (r *Registry) Register(name string, fn Transform) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transforms[name] = fn
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.transforms[name]
	return ok
}

// Names lists registered transforms in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.transforms))
	for name := range r.transforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply looks up a transform by name and runs it on g.
func (r *Registry) Apply(name string, g *graph.Graph, args map[string]any) (*graph.Graph, error) {
	r.mu.RLock()
	fn, ok := r.transforms[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransform, name)
	}

	out, err := fn(g, args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}
