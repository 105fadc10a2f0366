package registry

import (
	"github.com/aretw0/strata/pkg/graph"
	"github.com/mitchellh/mapstructure"
)

func decodeArgs(args map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(args)
}

// LargestComponents keeps the "count" largest connected components
// (default 1). Edge direction is ignored and ties keep first-seen order.
func LargestComponents(g *graph.Graph, args map[string]any) (*graph.Graph, error) {
	opts := struct {
		Count int `mapstructure:"count"`
	}{Count: 1}
	if err := decodeArgs(args, &opts); err != nil {
		return nil, err
	}

	keep := make(map[string]bool)
	for i, component := range g.ConnectedComponents() {
		if i >= opts.Count {
			break
		}
		for _, key := range component {
			keep[key] = true
		}
	}
	return g.Induced(keep), nil
}

// EgoNetwork keeps the nodes within "depth" hops (default 1) of "center".
// A negative depth is unbounded. A missing center yields an empty graph.
func EgoNetwork(g *graph.Graph, args map[string]any) (*graph.Graph, error) {
	opts := struct {
		Center string `mapstructure:"center"`
		Depth  int    `mapstructure:"depth"`
	}{Depth: 1}
	if err := decodeArgs(args, &opts); err != nil {
		return nil, err
	}
	return g.Induced(g.Reachable(opts.Center, opts.Depth)), nil
}

// DropIsolates removes nodes with no incident edges.
func DropIsolates(g *graph.Graph, args map[string]any) (*graph.Graph, error) {
	if err := decodeArgs(args, &struct{}{}); err != nil {
		return nil, err
	}
	return g.InducedSubgraph(func(n *graph.Node) bool {
		return g.Degree(n.Key) > 0
	}), nil
}
