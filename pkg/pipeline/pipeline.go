// Package pipeline threads a base graph through the active filters and
// memoizes every stage by filter fingerprint.
//
// Stage i is reused from the previous cache only when its fingerprint is
// unchanged and every stage before it was reused too. The first miss
// discards the rest of the previous cache, since each stage's output is the
// next stage's input.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/aretw0/strata/internal/logging"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/evaluator"
	"github.com/aretw0/strata/pkg/filter"
	"github.com/aretw0/strata/pkg/graph"
)

// ErrNilBase is returned when filters are applied to a nil graph.
var ErrNilBase = errors.New("pipeline: nil base graph")

// Stage is one cached pipeline step. An empty Fingerprint marks a stage
// whose filter could not be serialized; it is never reused.
type Stage struct {
	Fingerprint string
	Graph       *graph.Graph
}

// Cache holds the stages computed for a base graph.
type Cache struct {
	Base   *graph.Graph
	Stages []Stage
}

// Graph returns the output of the last stage, or the base graph when there
// are no stages.
func (c Cache) Graph() *graph.Graph {
	if n := len(c.Stages); n > 0 {
		return c.Stages[n-1].Graph
	}
	return c.Base
}

// Stats counts stage outcomes since the pipeline was created.
type Stats struct {
	Computed uint64 `json:"computed"`
	Reused   uint64 `json:"reused"`
	Failed   uint64 `json:"failed"`
}

// Pipeline applies filter chains. It is safe for concurrent use.
type Pipeline struct {
	evaluator *evaluator.Evaluator
	logger    *slog.Logger
	hooks     domain.PipelineHooks

	computed atomic.Uint64
	reused   atomic.Uint64
	failed   atomic.Uint64
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithEvaluator replaces the default evaluator.
func WithEvaluator(e *evaluator.Evaluator) Option {
	return func(p *Pipeline) {
		if e != nil {
			p.evaluator = e
		}
	}
}

// WithLogger sets the logger. Stage outcomes are logged at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithHooks registers stage callbacks. Repeated calls accumulate.
func WithHooks(h domain.PipelineHooks) Option {
	return func(p *Pipeline) {
		p.hooks = p.hooks.Merge(h)
	}
}

// New creates a pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		evaluator: evaluator.New(),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Evaluator returns the evaluator used for cache misses.
func (p *Pipeline) Evaluator() *evaluator.Evaluator {
	return p.evaluator
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Computed: p.computed.Load(),
		Reused:   p.reused.Load(),
		Failed:   p.failed.Load(),
	}
}

// Apply runs past over base, reusing stages of previous where allowed.
// A previous cache built on a different base graph is ignored.
//
// When a stage fails, Apply returns the cache of the stages that succeeded
// together with the error.
func (p *Pipeline) Apply(base *graph.Graph, past []filter.Definition, previous Cache) (Cache, error) {
	out := Cache{Base: base, Stages: make([]Stage, 0, len(past))}
	if base == nil && len(past) > 0 {
		return out, ErrNilBase
	}

	reusable := previous.Stages
	if previous.Base != base {
		reusable = nil
	}

	current := base
	for i, def := range past {
		if def == nil {
			return out, fmt.Errorf("stage %d: %w: nil definition", i, filter.ErrInvalidFilter)
		}
		fp, err := filter.Fingerprint(def)
		if err != nil {
			p.logger.Debug("stage has no fingerprint, recomputing", "stage", i, "kind", def.Kind(), "error", err)
			fp = ""
		}

		if fp != "" && i < len(reusable) && reusable[i].Fingerprint == fp {
			stage := reusable[i]
			out.Stages = append(out.Stages, stage)
			current = stage.Graph
			p.reused.Add(1)
			p.emit(p.hooks.OnStageReused, domain.EventStageReused, i, def, fp, current, 0, nil)
			continue
		}
		reusable = nil

		start := time.Now()
		next, err := p.evaluator.Evaluate(def, current, base)
		elapsed := time.Since(start)
		if err != nil {
			p.failed.Add(1)
			p.emit(p.hooks.OnStageFailed, domain.EventStageFailed, i, def, fp, current, elapsed, err)
			return out, fmt.Errorf("stage %d (%s): %w", i, def.Kind(), err)
		}

		out.Stages = append(out.Stages, Stage{Fingerprint: fp, Graph: next})
		current = next
		p.computed.Add(1)
		p.emit(p.hooks.OnStageComputed, domain.EventStageComputed, i, def, fp, current, elapsed, nil)
	}
	return out, nil
}

func (p *Pipeline) emit(hook func(*domain.StageEvent), typ domain.EventType, i int, def filter.Definition, fp string, g *graph.Graph, d time.Duration, err error) {
	p.logger.Debug(string(typ), "stage", i, "kind", def.Kind(), "nodes", g.Order(), "edges", g.Size(), "duration", d)
	if hook == nil {
		return
	}
	hook(&domain.StageEvent{
		EventBase:   domain.EventBase{Timestamp: time.Now(), Type: typ},
		Index:       i,
		Kind:        def.Kind(),
		Fingerprint: fp,
		Nodes:       g.Order(),
		Edges:       g.Size(),
		Duration:    d,
		Err:         err,
	})
}
