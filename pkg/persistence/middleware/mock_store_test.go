package middleware_test

import (
	"context"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
)

// MockStore keeps snapshots by reference so tests can inspect what the
// middleware handed down.
type MockStore struct {
	data map[string]*domain.Snapshot
}

func NewMockStore() *MockStore {
	return &MockStore{
		data: make(map[string]*domain.Snapshot),
	}
}

func (s *MockStore) Save(_ context.Context, sessionID string, snap *domain.Snapshot) error {
	s.data[sessionID] = snap
	return nil
}

func (s *MockStore) Load(_ context.Context, sessionID string) (*domain.Snapshot, error) {
	snap, ok := s.data[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return snap, nil
}

func (s *MockStore) Delete(_ context.Context, sessionID string) error {
	delete(s.data, sessionID)
	return nil
}

func (s *MockStore) List(context.Context) ([]string, error) {
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys, nil
}

var _ ports.StackStore = (*MockStore)(nil)
