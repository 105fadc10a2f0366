// Package filter defines the filter kinds, the navigable filter stack and its
// producers, and the canonical encoding used both for persistence and for
// pipeline fingerprints.
//
// A stack is changed only by applying a producer through a state cell:
//
//	stack := cell.New(filter.Stack{})
//	err := stack.Apply(filter.AddFilter(filter.RangeFilter{
//		ItemType: filter.Nodes,
//		Field:    "age",
//		Min:      filter.Float(15),
//	}))
//
// Producers return errors (ErrIndexOutOfBounds, ErrEmptyStack) instead of
// panicking, and a failed producer leaves the cell untouched.
package filter
