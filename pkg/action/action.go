/*
Package action maps pure state transitions ("producers") onto cell writes.

A Producer takes arguments and returns a Reducer: a pure function from the
current value to the next one. Producers hold the business logic and are
tested without any cell; Bind turns them into actions that commit their
result to a State cell.

	var addOne action.Producer[int, int] = func(n int) action.Reducer[int] {
		return func(v int) (int, error) { return v + n, nil }
	}

	counter := cell.New(0)
	add := action.Bind(counter, addOne)
	_ = add(2) // counter now holds 2
*/
package action

import "github.com/aretw0/strata/pkg/cell"

// Reducer computes the next value from the current one. Returning an error
// aborts the transition and leaves the cell untouched.
type Reducer[T any] func(current T) (T, error)

// Producer builds a Reducer from its arguments.
type Producer[T, A any] func(args A) Reducer[T]

// Action commits a producer's result for the given arguments.
type Action[A any] func(args A) error

// Pure lifts an infallible transition into a Reducer.
func Pure[T any](fn func(T) T) Reducer[T] {
	return func(v T) (T, error) { return fn(v), nil }
}

// Run applies r to value without touching any cell.
func (r Reducer[T]) Run(value T) (T, error) {
	return r(value)
}

// Then chains two reducers; the second sees the first one's result.
func (r Reducer[T]) Then(next Reducer[T]) Reducer[T] {
	return func(v T) (T, error) {
		mid, err := r(v)
		if err != nil {
			return v, err
		}
		return next(mid)
	}
}

// Bind maps p onto c.
func Bind[T, A any](c *cell.State[T], p Producer[T, A]) Action[A] {
	return func(args A) error {
		return Commit(c, p(args))
	}
}

// Bind0 maps an argument-less producer onto c.
func Bind0[T any](c *cell.State[T], p func() Reducer[T]) func() error {
	return func() error {
		return Commit(c, p())
	}
}

// Commit applies r to c.
func Commit[T any](c *cell.State[T], r Reducer[T]) error {
	return c.Apply(r)
}
