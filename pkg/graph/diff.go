package graph

// Delta lists the items that appeared or disappeared between two graphs.
// It is designed to be serialized to JSON and streamed to clients that keep
// a local copy of the filtered graph.
type Delta struct {
	AddedNodes   []string `json:"added_nodes,omitempty"`
	RemovedNodes []string `json:"removed_nodes,omitempty"`
	AddedEdges   []string `json:"added_edges,omitempty"`
	RemovedEdges []string `json:"removed_edges,omitempty"`
}

// Diff compares oldGraph and newGraph by key. If oldGraph is nil every item
// of newGraph is reported as added. It returns nil when nothing changed.
func Diff(oldGraph, newGraph *Graph) *Delta {
	if newGraph == nil {
		return nil
	}
	if oldGraph == nil {
		oldGraph = New(newGraph.Directed)
	}

	d := &Delta{}
	for _, key := range newGraph.nodeOrder {
		if !oldGraph.HasNode(key) {
			d.AddedNodes = append(d.AddedNodes, key)
		}
	}
	for _, key := range oldGraph.nodeOrder {
		if !newGraph.HasNode(key) {
			d.RemovedNodes = append(d.RemovedNodes, key)
		}
	}
	for _, key := range newGraph.edgeOrder {
		if !oldGraph.HasEdge(key) {
			d.AddedEdges = append(d.AddedEdges, key)
		}
	}
	for _, key := range oldGraph.edgeOrder {
		if !newGraph.HasEdge(key) {
			d.RemovedEdges = append(d.RemovedEdges, key)
		}
	}

	if d.IsEmpty() {
		return nil
	}
	return d
}

// IsEmpty reports whether the delta carries no change.
func (d *Delta) IsEmpty() bool {
	return len(d.AddedNodes) == 0 &&
		len(d.RemovedNodes) == 0 &&
		len(d.AddedEdges) == 0 &&
		len(d.RemovedEdges) == 0
}
