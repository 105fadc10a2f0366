package graph

import "sort"

// ConnectedComponents returns the node keys of each connected component,
// ignoring edge direction. Components are sorted by decreasing size; ties
// keep the order in which their first node was inserted.
func (g *Graph) ConnectedComponents() [][]string {
	visited := make(map[string]bool, len(g.nodeOrder))
	var components [][]string

	for _, start := range g.nodeOrder {
		if visited[start] {
			continue
		}
		visited[start] = true
		component := []string{start}
		for i := 0; i < len(component); i++ {
			for _, next := range g.Neighbors(component[i]) {
				if !visited[next] {
					visited[next] = true
					component = append(component, next)
				}
			}
		}
		components = append(components, component)
	}

	sort.SliceStable(components, func(i, j int) bool {
		return len(components[i]) > len(components[j])
	})
	return components
}

// Reachable returns the keys within depth hops of start, ignoring edge
// direction, start included. A negative depth means unbounded.
func (g *Graph) Reachable(start string, depth int) map[string]bool {
	if !g.HasNode(start) {
		return map[string]bool{}
	}
	seen := map[string]bool{start: true}
	frontier := []string{start}
	for hop := 0; len(frontier) > 0 && (depth < 0 || hop < depth); hop++ {
		var next []string
		for _, key := range frontier {
			for _, n := range g.Neighbors(key) {
				if !seen[n] {
					seen[n] = true
					next = append(next, n)
				}
			}
		}
		frontier = next
	}
	return seen
}
