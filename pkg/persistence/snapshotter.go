// Package persistence snapshots the filter stack of a workspace into a
// ports.StackStore and restores it on start.
//
// Persistence is best effort. Saves run in the background, are coalesced so
// only the latest stack is written, and failures are logged, never returned
// to the code that changed the stack.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/strata/internal/logging"
	"github.com/aretw0/strata/pkg/cell"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/filter"
	"github.com/aretw0/strata/pkg/ports"
)

// DefaultTimeout bounds a single background save.
const DefaultTimeout = 5 * time.Second

// Snapshotter writes filter stacks of one session to a store.
type Snapshotter struct {
	store     ports.StackStore
	sessionID string
	dataset   string
	logger    *slog.Logger
	timeout   time.Duration

	mu      sync.Mutex
	latest  *filter.Stack
	running bool
	wg      sync.WaitGroup

	source *cell.State[filter.Stack]
	sub    cell.Subscription
}

// Option configures a Snapshotter.
type Option func(*Snapshotter)

// WithLogger sets the logger used for failed saves.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Snapshotter) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDataset records the dataset path in every snapshot.
func WithDataset(path string) Option {
	return func(s *Snapshotter) {
		s.dataset = path
	}
}

// WithTimeout bounds each background save.
func WithTimeout(d time.Duration) Option {
	return func(s *Snapshotter) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewSnapshotter creates a Snapshotter for sessionID.
func NewSnapshotter(store ports.StackStore, sessionID string, opts ...Option) *Snapshotter {
	s := &Snapshotter{
		store:     store,
		sessionID: sessionID,
		logger:    logging.NewNop(),
		timeout:   DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SessionID returns the session the snapshots belong to.
func (s *Snapshotter) SessionID() string {
	return s.sessionID
}

// Restore loads the stored stack. A missing session yields an empty stack
// and found == false.
func (s *Snapshotter) Restore(ctx context.Context) (stack filter.Stack, found bool, err error) {
	snap, err := s.store.Load(ctx, s.sessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return filter.Stack{}, false, nil
	}
	if err != nil {
		return filter.Stack{}, false, fmt.Errorf("restore session %s: %w", s.sessionID, err)
	}
	return snap.Stack, true, nil
}

// Save writes stack synchronously. A stack holding a native predicate fails
// with filter.ErrSerialization and is not written.
func (s *Snapshotter) Save(ctx context.Context, stack filter.Stack) error {
	if _, err := json.Marshal(stack); err != nil {
		return fmt.Errorf("snapshot session %s: %w", s.sessionID, err)
	}
	snap := domain.NewSnapshot(s.sessionID, stack)
	snap.Dataset = s.dataset
	if err := s.store.Save(ctx, s.sessionID, snap); err != nil {
		return fmt.Errorf("snapshot session %s: %w", s.sessionID, err)
	}
	return nil
}

// Attach saves every new value of c in the background until Detach.
func (s *Snapshotter) Attach(c *cell.State[filter.Stack]) {
	s.Detach()
	s.mu.Lock()
	s.source = c
	s.mu.Unlock()
	sub := c.Bind(func(stack, _ filter.Stack) {
		s.schedule(stack)
	})
	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()
}

// Detach stops following the attached cell. Saves already queued still run.
func (s *Snapshotter) Detach() {
	s.mu.Lock()
	source, sub := s.source, s.sub
	s.source = nil
	s.mu.Unlock()
	if source != nil {
		source.Unbind(sub)
	}
}

// Wait blocks until queued saves have finished.
func (s *Snapshotter) Wait() {
	s.wg.Wait()
}

// Close detaches and waits for queued saves.
func (s *Snapshotter) Close() {
	s.Detach()
	s.Wait()
}

func (s *Snapshotter) schedule(stack filter.Stack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = &stack
	if s.running {
		return
	}
	s.running = true
	s.wg.Add(1)
	go s.drain()
}

// drain writes the latest queued stack until none is left. Intermediate
// values queued while a save is in flight are skipped.
func (s *Snapshotter) drain() {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		next := s.latest
		s.latest = nil
		if next == nil {
			s.running = false
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		err := s.Save(ctx, *next)
		cancel()
		switch {
		case errors.Is(err, filter.ErrSerialization):
			s.logger.Warn("filter stack not snapshotted: holds a filter without serialized form",
				"session_id", s.sessionID, "error", err)
		case err != nil:
			s.logger.Warn("filter stack snapshot failed", "session_id", s.sessionID, "error", err)
		default:
			s.logger.Debug("filter stack snapshotted", "session_id", s.sessionID, "depth", next.Depth())
		}
	}
}
