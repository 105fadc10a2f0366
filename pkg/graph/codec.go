package graph

import (
	"encoding/json"
	"fmt"
	"os"
)

const (
	typeDirected   = "directed"
	typeUndirected = "undirected"
)

type serializedOptions struct {
	Type string `json:"type"`
}

// serialized is the on-disk JSON layout of a graph.
type serialized struct {
	Attributes Attributes        `json:"attributes,omitempty"`
	Options    serializedOptions `json:"options"`
	Nodes      []Node            `json:"nodes"`
	Edges      []Edge            `json:"edges"`
}

// MarshalJSON encodes the graph with nodes and edges in insertion order.
func (g *Graph) MarshalJSON() ([]byte, error) {
	s := serialized{
		Attributes: g.Attributes,
		Options:    serializedOptions{Type: typeUndirected},
		Nodes:      make([]Node, 0, g.Order()),
		Edges:      make([]Edge, 0, g.Size()),
	}
	if g.Directed {
		s.Options.Type = typeDirected
	}
	for _, n := range g.Nodes() {
		s.Nodes = append(s.Nodes, *n)
	}
	for _, e := range g.Edges() {
		s.Edges = append(s.Edges, *e)
	}
	return json.Marshal(s)
}

// UnmarshalJSON decodes a graph. Edges referencing unknown nodes are
// rejected.
func (g *Graph) UnmarshalJSON(data []byte) error {
	var s serialized
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	var directed bool
	switch s.Options.Type {
	case typeDirected:
		directed = true
	case typeUndirected, "", "mixed":
	default:
		return fmt.Errorf("unknown graph type %q", s.Options.Type)
	}

	out := New(directed)
	out.Attributes = s.Attributes
	for _, n := range s.Nodes {
		if err := out.AddNode(n.Key, n.Attributes); err != nil {
			return err
		}
	}
	for _, e := range s.Edges {
		if _, err := out.AddEdge(e.Key, e.Source, e.Target, e.Attributes); err != nil {
			return err
		}
	}
	*g = *out
	return nil
}

// Load reads a JSON graph file.
func Load(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph file: %w", err)
	}
	g := New(false)
	if err := json.Unmarshal(data, g); err != nil {
		return nil, fmt.Errorf("failed to parse graph file %s: %w", path, err)
	}
	return g, nil
}

// Save writes g as indented JSON.
func Save(path string, g *Graph) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal graph: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write graph file: %w", err)
	}
	return nil
}
