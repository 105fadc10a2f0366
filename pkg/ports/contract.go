package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/filter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contractStack() filter.Stack {
	return filter.Stack{
		Past: []filter.Definition{
			filter.RangeFilter{ItemType: filter.Nodes, Field: "age", Min: filter.Float(15)},
			filter.TermsFilter{ItemType: filter.Nodes, Field: "age", Terms: []string{"20"}},
		},
		Future: []filter.Definition{
			filter.TopologicalFilter{Method: "largest_components", Arguments: map[string]any{"count": 1.0}},
		},
	}
}

// RunStackStoreContract runs a suite of tests to verify that a StackStore
// implementation adheres to the defined interface contract.
func RunStackStoreContract(t *testing.T, store StackStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		snap := domain.NewSnapshot(sessionID, contractStack())
		snap.Dataset = "graph.json"

		err := store.Save(ctx, sessionID, snap)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, sessionID, loaded.SessionID)
		assert.Equal(t, "graph.json", loaded.Dataset)
		assert.Equal(t, contractStack(), loaded.Stack)
		assert.WithinDuration(t, snap.SavedAt, loaded.SavedAt, time.Second)
	})

	t.Run("Save Overwrites", func(t *testing.T) {
		err := store.Save(ctx, sessionID, domain.NewSnapshot(sessionID, filter.Stack{}))
		require.NoError(t, err)

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.True(t, loaded.Stack.IsEmpty())
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, sessionID, domain.NewSnapshot(sessionID, contractStack()))
		require.NoError(t, err)

		err = store.Delete(ctx, sessionID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		_ = store.Save(ctx, id1, domain.NewSnapshot(id1, contractStack()))
		_ = store.Save(ctx, id2, domain.NewSnapshot(id2, filter.Stack{}))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}
