/*
Package strata filters graphs through a navigable stack of filters, reusing
every intermediate result it can.

A Workspace holds three cells. Dataset is the base graph, Filters is the
filter stack, and Filtered is the graph the active filters produce. Filtered
is derived: it recomputes whenever one of the other two changes, and the
pipeline behind it memoizes each stage by filter fingerprint, so pushing a
filter costs one evaluation and stepping back through the stack costs none.

# Filters

Four filter kinds exist: range and terms filters over one attribute, script
filters written as HCL expressions, and topological filters naming a graph
transform. The stack keeps applied filters in Past, the last being the
current one, and undone filters in Future.

# Usage

	g, err := graph.Load("people.json")
	if err != nil {
		log.Fatal(err)
	}

	ws := strata.New(strata.WithGraph(g))
	defer ws.Close()

	ws.Filtered().Bind(func(next, _ *graph.Graph) {
		fmt.Println("nodes:", next.Order())
	})

	_ = ws.AddFilter(filter.RangeFilter{ItemType: filter.Nodes, Field: "age", Min: filter.Float(18)})
	_ = ws.AddFilter(filter.ScriptFilter{ItemType: filter.Nodes, Script: `degree(id) > 2`})
	_ = ws.OpenPastFilter(1) // back to the age filter, reusing its cached stage

Actions validate filters and try them on the current graph before touching
the stack, so a broken script is reported to the caller instead of breaking
the pipeline.
*/
package strata
