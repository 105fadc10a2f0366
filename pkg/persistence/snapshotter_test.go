package persistence_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/aretw0/strata/pkg/adapters/memory"
	"github.com/aretw0/strata/pkg/cell"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/filter"
	"github.com/aretw0/strata/pkg/graph"
	"github.com/aretw0/strata/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is a bytes.Buffer safe for the background saver.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type failingStore struct {
	*memory.Store
}

func (failingStore) Save(context.Context, string, *domain.Snapshot) error {
	return errors.New("disk full")
}

func ageFilter() filter.Definition {
	return filter.RangeFilter{ItemType: filter.Nodes, Field: "age", Min: filter.Float(15)}
}

func TestSnapshotter_RestoreMissingSession(t *testing.T) {
	s := persistence.NewSnapshotter(memory.NewStore(), "fresh")
	stack, found, err := s.Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
	assert.True(t, stack.IsEmpty())
}

func TestSnapshotter_AttachSavesLatestStack(t *testing.T) {
	store := memory.NewStore()
	s := persistence.NewSnapshotter(store, "s1", persistence.WithDataset("people.json"))
	stacks := cell.New(filter.Stack{})
	s.Attach(stacks)

	for i := 0; i < 5; i++ {
		require.NoError(t, stacks.Apply(filter.AddFilter(ageFilter())))
	}
	s.Close()

	snap, err := store.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, snap.Stack.Past, 5)
	assert.Equal(t, "people.json", snap.Dataset)

	restored, found, err := persistence.NewSnapshotter(store, "s1").Restore(context.Background())
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, stacks.Get(), restored)
}

func TestSnapshotter_DetachStopsSaving(t *testing.T) {
	store := memory.NewStore()
	s := persistence.NewSnapshotter(store, "s1")
	stacks := cell.New(filter.Stack{})
	s.Attach(stacks)
	s.Close()

	require.NoError(t, stacks.Apply(filter.AddFilter(ageFilter())))
	s.Wait()

	_, err := store.Load(context.Background(), "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSnapshotter_SkipsNativePredicates(t *testing.T) {
	var logs syncBuffer
	store := memory.NewStore()
	s := persistence.NewSnapshotter(store, "s1",
		persistence.WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	stacks := cell.New(filter.Stack{})
	s.Attach(stacks)

	native := filter.ScriptFilter{
		ItemType:  filter.Nodes,
		Predicate: func(string, graph.Attributes, *graph.Graph) (bool, error) { return true, nil },
	}
	require.NoError(t, stacks.Apply(filter.AddFilter(native)))
	s.Close()

	_, err := store.Load(context.Background(), "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.Contains(t, logs.String(), "not snapshotted")

	err = s.Save(context.Background(), stacks.Get())
	assert.ErrorIs(t, err, filter.ErrSerialization)
}

func TestSnapshotter_StoreFailureIsLogged(t *testing.T) {
	var logs syncBuffer
	s := persistence.NewSnapshotter(failingStore{memory.NewStore()}, "s1",
		persistence.WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	stacks := cell.New(filter.Stack{})
	s.Attach(stacks)

	require.NoError(t, stacks.Apply(filter.AddFilter(ageFilter())))
	s.Close()

	assert.Contains(t, logs.String(), "disk full")
	assert.Len(t, stacks.Get().Past, 1, "the stack change stands")
}
