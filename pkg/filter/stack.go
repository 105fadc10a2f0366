package filter

import (
	"fmt"

	"github.com/aretw0/strata/pkg/action"
)

// Stack is the navigable filter history. Past is the chain in effect, applied
// left to right; Future holds suspended filters in their original order.
type Stack struct {
	Past   []Definition
	Future []Definition
}

// Depth returns the number of active filters.
func (s Stack) Depth() int {
	return len(s.Past)
}

// Current returns the last active filter.
func (s Stack) Current() (Definition, bool) {
	if len(s.Past) == 0 {
		return nil, false
	}
	return s.Past[len(s.Past)-1], true
}

// IsEmpty reports whether both sequences are empty.
func (s Stack) IsEmpty() bool {
	return len(s.Past) == 0 && len(s.Future) == 0
}

func concat(parts ...[]Definition) []Definition {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	if n == 0 {
		return nil
	}
	out := make([]Definition, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// AddFilter appends f to the active chain.
func AddFilter(f Definition) action.Reducer[Stack] {
	return func(s Stack) (Stack, error) {
		return Stack{
			Past:   concat(s.Past, []Definition{f}),
			Future: concat(s.Future),
		}, nil
	}
}

// ReplaceCurrentFilter swaps the last active filter for f.
func ReplaceCurrentFilter(f Definition) action.Reducer[Stack] {
	return func(s Stack) (Stack, error) {
		if len(s.Past) == 0 {
			return s, fmt.Errorf("replace current filter: %w", ErrEmptyStack)
		}
		return Stack{
			Past:   concat(s.Past[:len(s.Past)-1], []Definition{f}),
			Future: concat(s.Future),
		}, nil
	}
}

// OpenPastFilter suspends Past[i:], moving it to the front of Future.
func OpenPastFilter(i int) action.Reducer[Stack] {
	return func(s Stack) (Stack, error) {
		if i < 0 || i >= len(s.Past) {
			return s, fmt.Errorf("open past filter %d of %d: %w", i, len(s.Past), ErrIndexOutOfBounds)
		}
		return Stack{
			Past:   concat(s.Past[:i]),
			Future: concat(s.Past[i:], s.Future),
		}, nil
	}
}

// OpenFutureFilter reactivates Future[0] through Future[i], appending them
// to Past, so that Future[i] becomes the current filter.
func OpenFutureFilter(i int) action.Reducer[Stack] {
	return func(s Stack) (Stack, error) {
		if i < 0 || i >= len(s.Future) {
			return s, fmt.Errorf("open future filter %d of %d: %w", i, len(s.Future), ErrIndexOutOfBounds)
		}
		return Stack{
			Past:   concat(s.Past, s.Future[:i+1]),
			Future: concat(s.Future[i+1:]),
		}, nil
	}
}

// DeleteCurrentFilter drops the last active filter.
func DeleteCurrentFilter() action.Reducer[Stack] {
	return func(s Stack) (Stack, error) {
		if len(s.Past) == 0 {
			return s, fmt.Errorf("delete current filter: %w", ErrEmptyStack)
		}
		return Stack{
			Past:   concat(s.Past[:len(s.Past)-1]),
			Future: concat(s.Future),
		}, nil
	}
}

// ResetFilters empties the stack.
func ResetFilters() action.Reducer[Stack] {
	return func(Stack) (Stack, error) {
		return Stack{}, nil
	}
}
