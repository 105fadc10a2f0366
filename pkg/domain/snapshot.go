package domain

import (
	"time"

	"github.com/aretw0/strata/pkg/filter"
)

// Snapshot is the persisted form of a workspace session: the filter stack
// and the dataset it was built against.
type Snapshot struct {
	SessionID string       `json:"session_id"`
	Dataset   string       `json:"dataset,omitempty"`
	Stack     filter.Stack `json:"stack"`
	SavedAt   time.Time    `json:"saved_at"`

	// Sealed holds the encrypted payload when the snapshot went through an
	// encrypting store; Stack and Dataset are then empty.
	Sealed string `json:"sealed,omitempty"`
}

// NewSnapshot creates a snapshot of stack for a session.
func NewSnapshot(sessionID string, stack filter.Stack) *Snapshot {
	return &Snapshot{
		SessionID: sessionID,
		Stack:     stack,
		SavedAt:   time.Now().UTC(),
	}
}

// Clone returns a copy whose filter slices are not shared with s.
func (s *Snapshot) Clone() *Snapshot {
	c := *s
	c.Stack = filter.Stack{
		Past:   append([]filter.Definition(nil), s.Stack.Past...),
		Future: append([]filter.Definition(nil), s.Stack.Future...),
	}
	return &c
}
