package strata_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/strata"
	"github.com/aretw0/strata/pkg/adapters/memory"
	"github.com/aretw0/strata/pkg/cell"
	"github.com/aretw0/strata/pkg/filter"
	"github.com/aretw0/strata/pkg/graph"
	"github.com/aretw0/strata/pkg/observability"
	"github.com/aretw0/strata/pkg/persistence"
	"github.com/aretw0/strata/pkg/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ages(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New(false)
	require.NoError(t, g.AddNode("n1", graph.Attributes{"age": 10}))
	require.NoError(t, g.AddNode("n2", graph.Attributes{"age": 20}))
	require.NoError(t, g.AddNode("n3", graph.Attributes{"age": 30}))
	_, err := g.AddEdge("", "n1", "n2", nil)
	require.NoError(t, err)
	_, err = g.AddEdge("", "n2", "n3", nil)
	require.NoError(t, err)
	return g
}

func minAge(v float64) filter.Definition {
	return filter.RangeFilter{ItemType: filter.Nodes, Field: "age", Min: filter.Float(v)}
}

func ageIs(v string) filter.Definition {
	return filter.TermsFilter{ItemType: filter.Nodes, Field: "age", Terms: []string{v}}
}

// manualScheduler runs debounced tasks only when fired.
type manualScheduler struct {
	tasks []*manualTask
}

type manualTask struct {
	fn      func()
	stopped bool
}

func (t *manualTask) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

func (s *manualScheduler) AfterFunc(_ time.Duration, fn func()) cell.Task {
	task := &manualTask{fn: fn}
	s.tasks = append(s.tasks, task)
	return task
}

func (s *manualScheduler) fire() {
	tasks := s.tasks
	s.tasks = nil
	for _, task := range tasks {
		if !task.stopped {
			task.stopped = true
			task.fn()
		}
	}
}

func TestWorkspace_AgeScenario(t *testing.T) {
	ws := strata.New(strata.WithGraph(ages(t)))
	defer ws.Close()

	var seen [][]string
	ws.Filtered().Bind(func(g, _ *graph.Graph) {
		seen = append(seen, g.NodeKeys())
	})

	require.NoError(t, ws.AddFilter(minAge(15)))
	assert.Equal(t, []string{"n2", "n3"}, ws.Filtered().Get().NodeKeys())
	afterFirst := ws.Filtered().Get()

	require.NoError(t, ws.AddFilter(ageIs("20")))
	assert.Equal(t, []string{"n2"}, ws.Filtered().Get().NodeKeys())

	require.NoError(t, ws.DeleteCurrentFilter())
	assert.Same(t, afterFirst, ws.Filtered().Get(), "stage 0 is reused")

	assert.Equal(t, [][]string{{"n2", "n3"}, {"n2"}, {"n2", "n3"}}, seen)
	assert.Equal(t, pipeline.Stats{Computed: 2, Reused: 2}, ws.Stats())
}

func TestWorkspace_EqualGraphDoesNotNotify(t *testing.T) {
	ws := strata.New(strata.WithGraph(ages(t)))
	defer ws.Close()

	before := ws.Filtered().Get()
	calls := 0
	ws.Filtered().Bind(func(_, _ *graph.Graph) { calls++ })

	// Every node passes, so the stage rebuilds a graph equal to the dataset.
	require.NoError(t, ws.AddFilter(minAge(0)))
	assert.Len(t, ws.Filters().Get().Past, 1)
	assert.Equal(t, 0, calls)
	assert.Same(t, before, ws.Filtered().Get())

	require.NoError(t, ws.AddFilter(minAge(15)))
	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"n2", "n3"}, ws.Filtered().Get().NodeKeys())
}

func TestWorkspace_NavigationReusesStages(t *testing.T) {
	ws := strata.New(strata.WithGraph(ages(t)))
	defer ws.Close()

	require.NoError(t, ws.AddFilter(minAge(15)))
	require.NoError(t, ws.AddFilter(ageIs("30")))
	full := ws.Filtered().Get()

	require.NoError(t, ws.OpenPastFilter(1))
	assert.Equal(t, []string{"n2", "n3"}, ws.Filtered().Get().NodeKeys())
	assert.Len(t, ws.Filters().Get().Future, 1)

	require.NoError(t, ws.OpenFutureFilter(0))
	assert.True(t, full.Equal(ws.Filtered().Get()))
	// Only the previous run is cached, so the reopened stage is recomputed.
	assert.Equal(t, pipeline.Stats{Computed: 3, Reused: 3}, ws.Stats())
}

func TestWorkspace_ProducerErrorsLeaveStackUntouched(t *testing.T) {
	ws := strata.New(strata.WithGraph(ages(t)))
	defer ws.Close()

	require.NoError(t, ws.AddFilter(minAge(15)))
	before := ws.Filters().Get()

	assert.ErrorIs(t, ws.OpenPastFilter(3), filter.ErrIndexOutOfBounds)
	assert.ErrorIs(t, ws.OpenFutureFilter(0), filter.ErrIndexOutOfBounds)
	require.NoError(t, ws.ResetFilters())
	assert.ErrorIs(t, ws.DeleteCurrentFilter(), filter.ErrEmptyStack)
	assert.ErrorIs(t, ws.ReplaceCurrentFilter(minAge(1)), filter.ErrEmptyStack)

	assert.Len(t, before.Past, 1)
	assert.True(t, ws.Filters().Get().IsEmpty())
	assert.Same(t, ws.Dataset().Get(), ws.Filtered().Get())
}

func TestWorkspace_RejectsBrokenFilters(t *testing.T) {
	ws := strata.New(strata.WithGraph(ages(t)))
	defer ws.Close()

	err := ws.AddFilter(filter.ScriptFilter{ItemType: filter.Nodes, Script: `attributes.name == "x"`})
	assert.ErrorIs(t, err, filter.ErrPredicate)

	err = ws.AddFilter(filter.RangeFilter{ItemType: filter.Nodes, Field: "age", Min: filter.Float(5), Max: filter.Float(1)})
	assert.ErrorIs(t, err, filter.ErrInvalidFilter)

	assert.True(t, ws.Filters().Get().IsEmpty())
	assert.NoError(t, ws.Err())
}

func TestWorkspace_ReplaceCurrentFilter(t *testing.T) {
	ws := strata.New(strata.WithGraph(ages(t)))
	defer ws.Close()

	require.NoError(t, ws.AddFilter(minAge(15)))
	require.NoError(t, ws.AddFilter(ageIs("20")))
	require.NoError(t, ws.ReplaceCurrentFilter(ageIs("30")))
	assert.Equal(t, []string{"n3"}, ws.Filtered().Get().NodeKeys())
	assert.Equal(t, uint64(2), ws.Stats().Reused)
}

func TestWorkspace_NewDatasetRecomputes(t *testing.T) {
	ws := strata.New(strata.WithGraph(ages(t)))
	defer ws.Close()
	require.NoError(t, ws.AddFilter(minAge(15)))

	// An equal graph does not trigger a run.
	ws.Dataset().Set(ages(t))
	assert.Equal(t, uint64(1), ws.Stats().Computed)

	g := ages(t)
	require.NoError(t, g.AddNode("n4", graph.Attributes{"age": 40}))
	ws.Dataset().Set(g)
	assert.Equal(t, []string{"n2", "n3", "n4"}, ws.Filtered().Get().NodeKeys())
}

func TestWorkspace_Debounce(t *testing.T) {
	sched := &manualScheduler{}
	ws := strata.New(
		strata.WithGraph(ages(t)),
		strata.WithDebounce(time.Hour),
		strata.WithScheduler(sched),
	)
	defer ws.Close()

	ws.Filters().Set(filter.Stack{Past: []filter.Definition{minAge(15)}})
	ws.Filters().Set(filter.Stack{Past: []filter.Definition{minAge(25)}})
	assert.Equal(t, 3, ws.Filtered().Get().Order(), "not recomputed yet")

	sched.fire()
	assert.Equal(t, []string{"n3"}, ws.Filtered().Get().NodeKeys())
	assert.Equal(t, uint64(1), ws.Stats().Computed, "bursts coalesce into one run")
}

func TestWorkspace_SnapshotAndRestore(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	first := strata.New(
		strata.WithGraph(ages(t)),
		strata.WithSnapshotter(persistence.NewSnapshotter(store, "s1")),
	)
	require.NoError(t, first.AddFilter(minAge(15)))
	require.NoError(t, first.AddFilter(ageIs("20")))
	first.Close()

	second := strata.New(
		strata.WithGraph(ages(t)),
		strata.WithSnapshotter(persistence.NewSnapshotter(store, "s1")),
	)
	defer second.Close()

	found, err := second.Restore(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"n2"}, second.Filtered().Get().NodeKeys())
}

func TestWorkspace_Metrics(t *testing.T) {
	m := observability.NewMetrics()
	ws := strata.New(strata.WithGraph(ages(t)), strata.WithMetrics(m))
	defer ws.Close()

	require.NoError(t, ws.AddFilter(minAge(15)))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "strata_pipeline_stages_total")
	assert.Contains(t, names, "strata_filter_stack_depth")
}
