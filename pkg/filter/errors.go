package filter

import (
	"errors"
	"fmt"
)

var (
	// ErrIndexOutOfBounds is returned when navigating past or future with an
	// invalid index.
	ErrIndexOutOfBounds = errors.New("index out of bounds")

	// ErrEmptyStack is returned when removing or replacing the current filter
	// of an empty active chain.
	ErrEmptyStack = errors.New("filter stack is empty")

	// ErrPredicate matches every *PredicateError.
	ErrPredicate = errors.New("predicate error")

	// ErrSerialization matches every *SerializationError.
	ErrSerialization = errors.New("serialization error")

	// ErrInvalidFilter is returned when a definition fails validation.
	ErrInvalidFilter = errors.New("invalid filter")

	// ErrUnknownKind is returned when decoding an unknown filter type.
	ErrUnknownKind = errors.New("unknown filter kind")
)

// PredicateError reports a script filter that failed to compile, failed at
// run time, or produced a non-boolean result. It aborts the whole stage.
type PredicateError struct {
	ItemType ItemType
	ItemID   string
	Reason   string
	Err      error
}

func (e *PredicateError) Error() string {
	msg := "script filter"
	if e.ItemID != "" {
		msg += fmt.Sprintf(" on %s %q", e.ItemType, e.ItemID)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PredicateError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrPredicate}
	}
	return []error{ErrPredicate, e.Err}
}

// SerializationError reports a definition that has no canonical encoding.
type SerializationError struct {
	Kind Kind
	Err  error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("cannot serialize %s filter: %v", e.Kind, e.Err)
}

func (e *SerializationError) Unwrap() []error {
	return []error{ErrSerialization, e.Err}
}
