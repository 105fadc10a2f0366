package session_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/strata/pkg/adapters/memory"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/filter"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/aretw0/strata/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// slowStore widens the read-modify-write window.
type slowStore struct {
	*memory.Store
}

func (s slowStore) Load(ctx context.Context, id string) (*domain.Snapshot, error) {
	time.Sleep(time.Millisecond)
	return s.Store.Load(ctx, id)
}

type mockLocker struct {
	mock.Mock
}

func (m *mockLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	args := m.Called(ctx, key, ttl)
	unlock, _ := args.Get(0).(ports.UnlockFunc)
	return unlock, args.Error(1)
}

func pushTopology(stack filter.Stack) (filter.Stack, error) {
	return filter.AddFilter(filter.TopologicalFilter{Method: "drop_isolates"}).Run(stack)
}

func TestManager_UpdateIsSerialized(t *testing.T) {
	manager := session.NewManager(slowStore{memory.NewStore()})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := manager.Update(ctx, "race", pushTopology)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	snap, err := manager.Load(ctx, "race")
	require.NoError(t, err)
	assert.Len(t, snap.Stack.Past, 20, "no update was lost")
}

func TestManager_UpdateErrorWritesNothing(t *testing.T) {
	store := memory.NewStore()
	manager := session.NewManager(store)
	ctx := context.Background()

	_, err := manager.Update(ctx, "s", func(s filter.Stack) (filter.Stack, error) {
		return filter.DeleteCurrentFilter().Run(s)
	})
	assert.ErrorIs(t, err, filter.ErrEmptyStack)

	_, err = store.Load(ctx, "s")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestManager_LoadOrStart(t *testing.T) {
	manager := session.NewManager(slowStore{memory.NewStore()})
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		created atomic.Int32
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, ok, err := manager.LoadOrStart(ctx, "atomic-init")
			assert.NoError(t, err)
			assert.NotNil(t, snap)
			if ok {
				created.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), created.Load(), "exactly one caller creates the session")

	snap, err := manager.Load(ctx, "atomic-init")
	require.NoError(t, err)
	assert.True(t, snap.Stack.IsEmpty())
	assert.False(t, snap.SavedAt.IsZero())
}

func TestManager_LoadOrStartKeepsExistingStack(t *testing.T) {
	store := memory.NewStore()
	manager := session.NewManager(store)
	ctx := context.Background()

	stack := filter.Stack{Past: []filter.Definition{filter.TermsFilter{ItemType: filter.Nodes, Field: "age", Terms: []string{"20"}}}}
	require.NoError(t, manager.Save(ctx, "s", domain.NewSnapshot("s", stack)))

	snap, created, err := manager.LoadOrStart(ctx, "s")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 1, snap.Stack.Depth())
}

func TestManager_DistributedLock(t *testing.T) {
	locker := new(mockLocker)
	released := false
	unlock := ports.UnlockFunc(func(context.Context) error {
		released = true
		return nil
	})
	locker.On("Lock", mock.Anything, "s", 5*time.Second).Return(unlock, nil).Once()

	manager := session.NewManager(memory.NewStore(), session.WithLocker(locker), session.WithLockTTL(5*time.Second))
	require.NoError(t, manager.Save(context.Background(), "s", domain.NewSnapshot("s", filter.Stack{})))

	locker.AssertExpectations(t)
	assert.True(t, released)
}

func TestManager_DistributedLockFailure(t *testing.T) {
	errBusy := errors.New("busy")
	locker := new(mockLocker)
	locker.On("Lock", mock.Anything, "s", session.DefaultLockTTL).Return(nil, errBusy)

	manager := session.NewManager(memory.NewStore(), session.WithLocker(locker))
	err := manager.Save(context.Background(), "s", domain.NewSnapshot("s", filter.Stack{}))
	assert.ErrorIs(t, err, errBusy)
}

func TestManager_StackStoreContract(t *testing.T) {
	ports.RunStackStoreContract(t, session.NewManager(memory.NewStore()))
}
