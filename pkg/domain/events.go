package domain

import (
	"time"

	"github.com/aretw0/strata/pkg/filter"
)

// EventType defines the category of the event.
type EventType string

const (
	EventStageComputed EventType = "stage_computed"
	EventStageReused   EventType = "stage_reused"
	EventStageFailed   EventType = "stage_failed"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
}

// StageEvent describes one pipeline stage.
type StageEvent struct {
	EventBase
	Index       int           `json:"index"`
	Kind        filter.Kind   `json:"kind"`
	Fingerprint string        `json:"fingerprint,omitempty"`
	Nodes       int           `json:"nodes"`
	Edges       int           `json:"edges"`
	Duration    time.Duration `json:"duration,omitempty"`
	Err         error         `json:"-"`
}

// PipelineHooks defines callbacks for pipeline observability.
// Hooks run synchronously on the goroutine that applies the pipeline.
type PipelineHooks struct {
	OnStageComputed func(*StageEvent)
	OnStageReused   func(*StageEvent)
	OnStageFailed   func(*StageEvent)
}

// Merge returns hooks that call h first and then other.
func (h PipelineHooks) Merge(other PipelineHooks) PipelineHooks {
	return PipelineHooks{
		OnStageComputed: chain(h.OnStageComputed, other.OnStageComputed),
		OnStageReused:   chain(h.OnStageReused, other.OnStageReused),
		OnStageFailed:   chain(h.OnStageFailed, other.OnStageFailed),
	}
}

func chain(a, b func(*StageEvent)) func(*StageEvent) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(e *StageEvent) {
		a(e)
		b(e)
	}
}
