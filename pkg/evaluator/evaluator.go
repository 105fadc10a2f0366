// Package evaluator applies one filter definition to a graph.
//
// Evaluation is a pure function of the definition, the input graph and the
// unfiltered graph: it never mutates its inputs and always returns a new
// graph, which is what makes stage results safe to cache by fingerprint.
package evaluator

import (
	"fmt"

	"github.com/aretw0/strata/pkg/filter"
	"github.com/aretw0/strata/pkg/graph"
	"github.com/aretw0/strata/pkg/registry"
)

// Evaluator runs filter definitions. The zero value is not usable; build one
// with New.
type Evaluator struct {
	transforms *registry.Registry
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithRegistry replaces the builtin topological transforms.
func WithRegistry(r *registry.Registry) Option {
	return func(e *Evaluator) {
		if r != nil {
			e.transforms = r
		}
	}
}

// New creates an evaluator with the builtin transforms.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{transforms: registry.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Transforms returns the registry used for topological filters.
func (e *Evaluator) Transforms() *registry.Registry {
	return e.transforms
}

// Evaluate returns the items of g kept by def. Script filters see full, the
// unfiltered graph.
func (e *Evaluator) Evaluate(def filter.Definition, g, full *graph.Graph) (*graph.Graph, error) {
	if full == nil {
		full = g
	}
	switch f := def.(type) {
	case filter.RangeFilter:
		return keep(g, f.ItemType, func(_ string, attrs graph.Attributes) bool {
			return matchRange(f, attrs)
		}), nil
	case filter.TermsFilter:
		set := termSet(f.Terms)
		return keep(g, f.ItemType, func(_ string, attrs graph.Attributes) bool {
			return matchTerms(f, set, attrs)
		}), nil
	case filter.ScriptFilter:
		return e.evaluateScript(f, g, full)
	case filter.TopologicalFilter:
		return e.transforms.Apply(f.Method, g, f.Arguments)
	default:
		return nil, fmt.Errorf("evaluate %T: %w", def, filter.ErrUnknownKind)
	}
}

// keep applies a per-item test. Node filters return the induced subgraph;
// edge filters keep every node.
func keep(g *graph.Graph, item filter.ItemType, pass func(key string, attrs graph.Attributes) bool) *graph.Graph {
	if item == filter.Edges {
		return g.FilterEdges(func(e *graph.Edge) bool { return pass(e.Key, e.Attributes) })
	}
	return g.InducedSubgraph(func(n *graph.Node) bool { return pass(n.Key, n.Attributes) })
}

func matchRange(f filter.RangeFilter, attrs graph.Attributes) bool {
	raw, ok := attrs[f.Field]
	if !ok {
		return f.KeepMissing
	}
	v, ok := toFloat(raw)
	if !ok {
		return f.KeepMissing
	}
	if f.Min != nil && v < *f.Min {
		return false
	}
	if f.Max != nil && v > *f.Max {
		return false
	}
	return true
}

func termSet(terms []string) map[string]struct{} {
	if len(terms) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		set[t] = struct{}{}
	}
	return set
}

func matchTerms(f filter.TermsFilter, set map[string]struct{}, attrs graph.Attributes) bool {
	raw, ok := attrs[f.Field]
	if !ok {
		return f.KeepMissing
	}
	s, ok := toString(raw)
	if !ok {
		return f.KeepMissing
	}
	if set == nil {
		return true
	}
	_, in := set[s]
	return in
}
