package pipeline

import (
	"github.com/aretw0/strata/pkg/filter"
	"github.com/aretw0/strata/pkg/graph"
)

// Result is a pipeline run as held by a derived cell. Err is set when a
// stage failed; Cache then holds the stages before it.
type Result struct {
	Cache Cache
	Err   error
}

// Graph returns the filtered graph.
func (r Result) Graph() *graph.Graph {
	return r.Cache.Graph()
}

// SameResult reports whether two results expose the same filtered graph
// instance and the same error. A fully reused pipeline yields the same
// instance.
func SameResult(a, b Result) bool {
	if a.Graph() != b.Graph() || len(a.Cache.Stages) != len(b.Cache.Stages) {
		return false
	}
	if (a.Err == nil) != (b.Err == nil) {
		return false
	}
	return a.Err == nil || a.Err.Error() == b.Err.Error()
}

// Extractor adapts Apply to a derived cell over the dataset and the filter
// stack. Each run reuses the previous result's cache.
func (p *Pipeline) Extractor() func(base *graph.Graph, stack filter.Stack, previous Result) Result {
	return func(base *graph.Graph, stack filter.Stack, previous Result) Result {
		cache, err := p.Apply(base, stack.Past, previous.Cache)
		if err != nil {
			p.logger.Warn("filter pipeline stopped", "stage", len(cache.Stages), "error", err)
		}
		return Result{Cache: cache, Err: err}
	}
}
