// Package graph renders strata graphs as Mermaid flowcharts.
package graph

import (
	"fmt"
	"strings"

	sgraph "github.com/aretw0/strata/pkg/graph"
)

// Overlay styles a rendering of the full graph. Items missing from Filtered
// are drawn as filtered out.
type Overlay struct {
	Filtered *sgraph.Graph
	// Label names the node attribute used as label; the key is used when it
	// is empty or missing.
	Label string
}

// GenerateMermaid produces a Mermaid flowchart of g. Directed graphs use
// arrows, undirected ones plain links.
func GenerateMermaid(g *sgraph.Graph, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")

	label := ""
	if overlay != nil {
		label = overlay.Label
	}
	for _, n := range g.Nodes() {
		text := n.Key
		if v, ok := n.Attributes[label]; ok && label != "" {
			text = fmt.Sprint(v)
		}
		fmt.Fprintf(&sb, "    %s[\"%s\"]\n", sanitizeMermaidID(n.Key), quote(text))
	}

	arrow := "---"
	if g.Directed {
		arrow = "-->"
	}
	var dropped []int
	for i, e := range g.Edges() {
		fmt.Fprintf(&sb, "    %s %s %s\n", sanitizeMermaidID(e.Source), arrow, sanitizeMermaidID(e.Target))
		if overlay != nil && overlay.Filtered != nil && !overlay.Filtered.HasEdge(e.Key) {
			dropped = append(dropped, i)
		}
	}

	if overlay == nil || overlay.Filtered == nil {
		return sb.String()
	}

	sb.WriteString("\n    %% Overlay Styles\n")
	sb.WriteString("    classDef filtered fill:#f5f5f5,stroke:#bdbdbd,color:#9e9e9e,stroke-dasharray:3 3;\n")
	for _, n := range g.Nodes() {
		if !overlay.Filtered.HasNode(n.Key) {
			fmt.Fprintf(&sb, "    class %s filtered;\n", sanitizeMermaidID(n.Key))
		}
	}
	for _, i := range dropped {
		fmt.Fprintf(&sb, "    linkStyle %d stroke:#bdbdbd,stroke-dasharray:3 3;\n", i)
	}
	return sb.String()
}

func quote(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
