package strata

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/aretw0/strata/internal/logging"
	"github.com/aretw0/strata/pkg/action"
	"github.com/aretw0/strata/pkg/cell"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/evaluator"
	"github.com/aretw0/strata/pkg/filter"
	"github.com/aretw0/strata/pkg/graph"
	"github.com/aretw0/strata/pkg/observability"
	"github.com/aretw0/strata/pkg/persistence"
	"github.com/aretw0/strata/pkg/pipeline"
)

// Workspace owns the cells of one filtering session: the dataset graph, the
// filter stack, and the filtered graph derived from both.
type Workspace struct {
	dataset  *cell.State[*graph.Graph]
	filters  *cell.State[filter.Stack]
	result   *cell.Derived[pipeline.Result]
	filtered *cell.Derived[*graph.Graph]

	pipeline    *pipeline.Pipeline
	evaluator   *evaluator.Evaluator
	metrics     *observability.Metrics
	snapshotter *persistence.Snapshotter
	logger      *slog.Logger

	debounce  time.Duration
	scheduler cell.Scheduler
	hooks     domain.PipelineHooks
	initial   *graph.Graph
	stack     filter.Stack

	metricsSub cell.Subscription
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithLogger sets the logger shared by the workspace and its pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Workspace) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithEvaluator replaces the default filter evaluator, e.g. to register
// extra topological transforms.
func WithEvaluator(e *evaluator.Evaluator) Option {
	return func(w *Workspace) {
		if e != nil {
			w.evaluator = e
		}
	}
}

// WithDebounce delays pipeline runs until the inputs have been quiet for d.
func WithDebounce(d time.Duration) Option {
	return func(w *Workspace) {
		w.debounce = d
	}
}

// WithScheduler replaces the timer behind WithDebounce.
func WithScheduler(s cell.Scheduler) Option {
	return func(w *Workspace) {
		w.scheduler = s
	}
}

// WithHooks registers pipeline stage callbacks. Repeated calls accumulate.
func WithHooks(h domain.PipelineHooks) Option {
	return func(w *Workspace) {
		w.hooks = w.hooks.Merge(h)
	}
}

// WithMetrics feeds pipeline and stack activity into m.
func WithMetrics(m *observability.Metrics) Option {
	return func(w *Workspace) {
		w.metrics = m
	}
}

// WithSnapshotter persists every filter stack change through s.
func WithSnapshotter(s *persistence.Snapshotter) Option {
	return func(w *Workspace) {
		w.snapshotter = s
	}
}

// WithGraph sets the initial dataset.
func WithGraph(g *graph.Graph) Option {
	return func(w *Workspace) {
		w.initial = g
	}
}

// WithStack sets the initial filter stack.
func WithStack(s filter.Stack) Option {
	return func(w *Workspace) {
		w.stack = s
	}
}

// New creates a Workspace. Without WithGraph the dataset is an empty
// undirected graph.
func New(opts ...Option) *Workspace {
	w := &Workspace{
		logger:    logging.NewNop(),
		evaluator: evaluator.New(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.initial == nil {
		w.initial = graph.New(false)
	}
	if w.metrics != nil {
		w.hooks = w.hooks.Merge(w.metrics.Hooks())
	}

	w.pipeline = pipeline.New(
		pipeline.WithEvaluator(w.evaluator),
		pipeline.WithLogger(w.logger),
		pipeline.WithHooks(w.hooks),
	)

	w.dataset = cell.New(w.initial, cell.WithEqual(func(a, b *graph.Graph) bool { return a.Equal(b) }))
	w.filters = cell.New(w.stack)

	deriveOpts := []cell.DeriveOption{
		cell.WithInputEqual(sameInput),
		cell.WithOutputEqual(func(a, b any) bool {
			return pipeline.SameResult(a.(pipeline.Result), b.(pipeline.Result))
		}),
	}
	if w.debounce > 0 {
		deriveOpts = append(deriveOpts, cell.WithDebounce(w.debounce), cell.WithScheduler(w.scheduler))
	}
	w.result = cell.Derive2(w.dataset, w.filters, w.pipeline.Extractor(), deriveOpts...)
	w.filtered = cell.Derive1(w.result, func(r pipeline.Result, _ *graph.Graph) *graph.Graph {
		return r.Graph()
	}, cell.WithInputEqual(sameInput), cell.WithOutputEqual(func(a, b any) bool {
		return a.(*graph.Graph).Equal(b.(*graph.Graph))
	}))

	if w.metrics != nil {
		s := w.filters.Get()
		w.metrics.SetStackDepth(len(s.Past), len(s.Future))
		w.metricsSub = w.filters.Bind(func(s, _ filter.Stack) {
			w.metrics.SetStackDepth(len(s.Past), len(s.Future))
		})
	}
	if w.snapshotter != nil {
		w.snapshotter.Attach(w.filters)
	}
	return w
}

// sameInput compares graphs by identity and everything else structurally.
func sameInput(a, b any) bool {
	if ga, ok := a.(*graph.Graph); ok {
		gb, ok := b.(*graph.Graph)
		return ok && ga == gb
	}
	if ra, ok := a.(pipeline.Result); ok {
		rb, ok := b.(pipeline.Result)
		return ok && pipeline.SameResult(ra, rb)
	}
	return reflect.DeepEqual(a, b)
}

// Dataset is the base graph cell. Set it to load a new graph.
func (w *Workspace) Dataset() *cell.State[*graph.Graph] {
	return w.dataset
}

// Filters is the filter stack cell. Prefer the workspace actions, which
// validate before writing.
func (w *Workspace) Filters() *cell.State[filter.Stack] {
	return w.filters
}

// Filtered is the graph produced by the active filters.
func (w *Workspace) Filtered() cell.Readable[*graph.Graph] {
	return w.filtered
}

// Result exposes the full pipeline outcome, including any stage error.
func (w *Workspace) Result() cell.Readable[pipeline.Result] {
	return w.result
}

// Err returns the error of the last pipeline run, if a stage failed.
func (w *Workspace) Err() error {
	return w.result.Get().Err
}

// Flush runs a debounced pipeline update now.
func (w *Workspace) Flush() {
	w.result.Flush()
}

// Stats returns pipeline cache counters.
func (w *Workspace) Stats() pipeline.Stats {
	return w.pipeline.Stats()
}

// Evaluator returns the evaluator used by the pipeline.
func (w *Workspace) Evaluator() *evaluator.Evaluator {
	return w.evaluator
}

// Restore replaces the filter stack with the one saved by the snapshotter.
// It reports whether a snapshot existed.
func (w *Workspace) Restore(ctx context.Context) (bool, error) {
	if w.snapshotter == nil {
		return false, nil
	}
	stack, found, err := w.snapshotter.Restore(ctx)
	if err != nil || !found {
		return false, err
	}
	w.filters.Set(stack)
	w.logger.Info("filter stack restored", "session_id", w.snapshotter.SessionID(), "depth", stack.Depth())
	return true, nil
}

// LoadDataset reads a graph file into the dataset cell.
func (w *Workspace) LoadDataset(path string) error {
	g, err := graph.Load(path)
	if err != nil {
		return err
	}
	w.dataset.Set(g)
	return nil
}

// AddFilter validates def, checks it evaluates against the current filtered
// graph, and pushes it onto the stack.
func (w *Workspace) AddFilter(def filter.Definition) error {
	if err := w.check(def, len(w.filters.Get().Past)); err != nil {
		return err
	}
	return w.commit(filter.AddFilter(def))
}

// ReplaceCurrentFilter validates def against the input of the current stage
// and swaps it in.
func (w *Workspace) ReplaceCurrentFilter(def filter.Definition) error {
	n := len(w.filters.Get().Past)
	if n == 0 {
		return w.commit(filter.ReplaceCurrentFilter(def))
	}
	if err := w.check(def, n-1); err != nil {
		return err
	}
	return w.commit(filter.ReplaceCurrentFilter(def))
}

// OpenPastFilter suspends Past[i:], leaving Past[i-1] as the current filter.
func (w *Workspace) OpenPastFilter(i int) error {
	return w.commit(filter.OpenPastFilter(i))
}

// OpenFutureFilter reactivates Future[0] through Future[i].
func (w *Workspace) OpenFutureFilter(i int) error {
	return w.commit(filter.OpenFutureFilter(i))
}

// DeleteCurrentFilter drops the current filter.
func (w *Workspace) DeleteCurrentFilter() error {
	return w.commit(filter.DeleteCurrentFilter())
}

// ResetFilters empties the stack.
func (w *Workspace) ResetFilters() error {
	return w.commit(filter.ResetFilters())
}

// commit leaves the stack untouched when the producer fails.
func (w *Workspace) commit(r action.Reducer[filter.Stack]) error {
	return action.Commit(w.filters, r)
}

// check validates def and evaluates it on the output of the first stage
// stages of the current pipeline. When that prefix is not available, e.g.
// because an earlier stage failed, only validation runs.
func (w *Workspace) check(def filter.Definition, stages int) error {
	if err := filter.Validate(def); err != nil {
		return err
	}
	w.result.Flush()
	base := w.dataset.Get()
	input, ok := stageInput(w.result.Get().Cache, base, stages)
	if !ok {
		w.logger.Debug("filter not dry-run, pipeline prefix unavailable", "kind", def.Kind(), "stages", stages)
		return nil
	}
	if _, err := w.evaluator.Evaluate(def, input, base); err != nil {
		return fmt.Errorf("%s filter rejected: %w", def.Kind(), err)
	}
	return nil
}

// stageInput returns the graph fed to stage i of cache.
func stageInput(cache pipeline.Cache, base *graph.Graph, i int) (*graph.Graph, bool) {
	if cache.Base != base || i > len(cache.Stages) {
		return nil, false
	}
	if i == 0 {
		return base, true
	}
	return cache.Stages[i-1].Graph, true
}

// Close stops the derived cells and waits for pending snapshots.
func (w *Workspace) Close() {
	w.filtered.Close()
	w.result.Close()
	if w.metricsSub != 0 {
		w.filters.Unbind(w.metricsSub)
	}
	if w.snapshotter != nil {
		w.snapshotter.Close()
	}
}
