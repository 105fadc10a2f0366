// Package graph provides the attributed graph the filter pipeline works on.
// Graphs keep insertion order so that every derived graph is deterministic.
package graph

import (
	"errors"
	"fmt"
	"maps"
	"reflect"
)

var (
	// ErrNodeNotFound is returned when an edge references a missing endpoint.
	ErrNodeNotFound = errors.New("node not found")
	// ErrDuplicateNode is returned when a node key is already taken.
	ErrDuplicateNode = errors.New("duplicate node")
	// ErrDuplicateEdge is returned when an edge key is already taken.
	ErrDuplicateEdge = errors.New("duplicate edge")
)

// Attributes holds per-item values keyed by field name.
type Attributes map[string]any

// Clone returns a shallow copy. A nil map stays nil.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	return maps.Clone(a)
}

// Node is a keyed vertex with attributes.
type Node struct {
	Key        string     `json:"key"`
	Attributes Attributes `json:"attributes,omitempty"`
}

// Edge is a keyed connection between two nodes.
type Edge struct {
	Key        string     `json:"key"`
	Source     string     `json:"source"`
	Target     string     `json:"target"`
	Attributes Attributes `json:"attributes,omitempty"`
}

// Graph is an attributed multigraph, directed or undirected.
type Graph struct {
	Directed   bool
	Attributes Attributes

	nodes     map[string]*Node
	nodeOrder []string

	edges     map[string]*Edge
	edgeOrder []string

	// incidence: node key -> keys of edges touching it
	incidence map[string][]string
}

// New creates an empty graph.
func New(directed bool) *Graph {
	return &Graph{
		Directed:  directed,
		nodes:     make(map[string]*Node),
		edges:     make(map[string]*Edge),
		incidence: make(map[string][]string),
	}
}

// AddNode inserts a node. The attributes are copied.
func (g *Graph) AddNode(key string, attrs Attributes) error {
	if _, exists := g.nodes[key]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateNode, key)
	}
	g.nodes[key] = &Node{Key: key, Attributes: attrs.Clone()}
	g.nodeOrder = append(g.nodeOrder, key)
	return nil
}

// AddEdge inserts an edge between two existing nodes. An empty key is
// replaced by a generated one. It returns the key used.
func (g *Graph) AddEdge(key, source, target string, attrs Attributes) (string, error) {
	if _, ok := g.nodes[source]; !ok {
		return "", fmt.Errorf("%w: source %q", ErrNodeNotFound, source)
	}
	if _, ok := g.nodes[target]; !ok {
		return "", fmt.Errorf("%w: target %q", ErrNodeNotFound, target)
	}
	if key == "" {
		key = g.nextEdgeKey()
	} else if _, exists := g.edges[key]; exists {
		return "", fmt.Errorf("%w: %q", ErrDuplicateEdge, key)
	}

	g.edges[key] = &Edge{Key: key, Source: source, Target: target, Attributes: attrs.Clone()}
	g.edgeOrder = append(g.edgeOrder, key)
	g.incidence[source] = append(g.incidence[source], key)
	if target != source {
		g.incidence[target] = append(g.incidence[target], key)
	}
	return key, nil
}

func (g *Graph) nextEdgeKey() string {
	for i := len(g.edgeOrder); ; i++ {
		key := fmt.Sprintf("e%d", i)
		if _, exists := g.edges[key]; !exists {
			return key
		}
	}
}

// HasNode reports whether key is a node of g.
func (g *Graph) HasNode(key string) bool {
	_, ok := g.nodes[key]
	return ok
}

// HasEdge reports whether key is an edge of g.
func (g *Graph) HasEdge(key string) bool {
	_, ok := g.edges[key]
	return ok
}

// Node returns the node stored under key.
func (g *Graph) Node(key string) (*Node, bool) {
	n, ok := g.nodes[key]
	return n, ok
}

// Edge returns the edge stored under key.
func (g *Graph) Edge(key string) (*Edge, bool) {
	e, ok := g.edges[key]
	return e, ok
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodeOrder))
	for _, key := range g.nodeOrder {
		out = append(out, g.nodes[key])
	}
	return out
}

// Edges returns all edges in insertion order.
func (g *Graph) Edges() []*Edge {
	out := make([]*Edge, 0, len(g.edgeOrder))
	for _, key := range g.edgeOrder {
		out = append(out, g.edges[key])
	}
	return out
}

// NodeKeys returns node keys in insertion order.
func (g *Graph) NodeKeys() []string {
	return append([]string(nil), g.nodeOrder...)
}

// Order is the number of nodes. A nil graph is empty.
func (g *Graph) Order() int {
	if g == nil {
		return 0
	}
	return len(g.nodeOrder)
}

// Size is the number of edges. A nil graph is empty.
func (g *Graph) Size() int {
	if g == nil {
		return 0
	}
	return len(g.edgeOrder)
}

// IncidentEdges returns the edges touching key, in insertion order.
func (g *Graph) IncidentEdges(key string) []*Edge {
	keys := g.incidence[key]
	out := make([]*Edge, 0, len(keys))
	for _, k := range keys {
		out = append(out, g.edges[k])
	}
	return out
}

// Degree counts incident edge ends; a self loop counts twice.
func (g *Graph) Degree(key string) int {
	degree := 0
	for _, k := range g.incidence[key] {
		e := g.edges[k]
		degree++
		if e.Source == e.Target {
			degree++
		}
	}
	return degree
}

// Neighbors returns the distinct nodes adjacent to key in either direction.
func (g *Graph) Neighbors(key string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, k := range g.incidence[key] {
		e := g.edges[k]
		other := e.Target
		if other == key {
			other = e.Source
		}
		if !seen[other] {
			seen[other] = true
			out = append(out, other)
		}
	}
	return out
}

// EmptyCopy returns a graph with the same nodes and no edges.
func (g *Graph) EmptyCopy() *Graph {
	out := New(g.Directed)
	out.Attributes = g.Attributes.Clone()
	for _, key := range g.nodeOrder {
		// keys are unique in g
		_ = out.AddNode(key, g.nodes[key].Attributes)
	}
	return out
}

// Copy returns a structural copy of g.
func (g *Graph) Copy() *Graph {
	return g.FilterEdges(func(*Edge) bool { return true })
}

// InducedSubgraph keeps the nodes accepted by keep and the edges whose
// endpoints were both kept.
func (g *Graph) InducedSubgraph(keep func(*Node) bool) *Graph {
	out := New(g.Directed)
	out.Attributes = g.Attributes.Clone()
	for _, key := range g.nodeOrder {
		n := g.nodes[key]
		if keep(n) {
			_ = out.AddNode(key, n.Attributes)
		}
	}
	for _, key := range g.edgeOrder {
		e := g.edges[key]
		if out.HasNode(e.Source) && out.HasNode(e.Target) {
			_, _ = out.AddEdge(key, e.Source, e.Target, e.Attributes)
		}
	}
	return out
}

// Induced keeps the nodes whose keys are in keys.
func (g *Graph) Induced(keys map[string]bool) *Graph {
	return g.InducedSubgraph(func(n *Node) bool { return keys[n.Key] })
}

// FilterEdges keeps every node and only the edges accepted by keep.
func (g *Graph) FilterEdges(keep func(*Edge) bool) *Graph {
	out := g.EmptyCopy()
	for _, key := range g.edgeOrder {
		e := g.edges[key]
		if keep(e) {
			_, _ = out.AddEdge(key, e.Source, e.Target, e.Attributes)
		}
	}
	return out
}

// Equal reports whether both graphs hold the same nodes, edges and
// attributes. Insertion order is ignored.
func (g *Graph) Equal(other *Graph) bool {
	if g == other {
		return true
	}
	if g == nil || other == nil {
		return false
	}
	if g.Directed != other.Directed || g.Order() != other.Order() || g.Size() != other.Size() {
		return false
	}
	if !attributesEqual(g.Attributes, other.Attributes) {
		return false
	}
	for key, n := range g.nodes {
		o, ok := other.nodes[key]
		if !ok || !attributesEqual(n.Attributes, o.Attributes) {
			return false
		}
	}
	for key, e := range g.edges {
		o, ok := other.edges[key]
		if !ok || e.Source != o.Source || e.Target != o.Target || !attributesEqual(e.Attributes, o.Attributes) {
			return false
		}
	}
	return true
}

func attributesEqual(a, b Attributes) bool {
	if len(a) != len(b) {
		return false
	}
	return maps.EqualFunc(a, b, func(x, y any) bool { return reflect.DeepEqual(x, y) })
}
