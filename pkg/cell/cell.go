package cell

import (
	"reflect"
	"sync"
)

// Handler is invoked with the committed value and the value it replaced.
type Handler[T any] func(newValue, oldValue T)

// Subscription identifies a bound handler so it can be unbound later.
// The zero Subscription is never issued.
type Subscription uint64

// Source is the type-erased view of a cell used by Derive.
// Both State and Derived implement it.
type Source interface {
	// Peek returns the current value as an any.
	Peek() any
	// Observe binds fn to run after every committed change.
	Observe(fn func()) Subscription
	// Unbind removes a subscription. Unknown subscriptions are ignored.
	Unbind(sub Subscription)
}

// Readable is a cell that can be read and observed but not written.
type Readable[T any] interface {
	Source
	Get() T
	Bind(h Handler[T]) Subscription
}

// EqualFunc reports whether two values are the same for change detection.
type EqualFunc[T any] func(a, b T) bool

// DeepEqual is the default equality: structural, by value.
func DeepEqual[T any](a, b T) bool {
	return reflect.DeepEqual(a, b)
}

// Never treats every candidate as a change.
func Never[T any](a, b T) bool {
	return false
}

type binding[T any] struct {
	id Subscription
	fn Handler[T]
}

// State is a mutable value holder that notifies bound handlers when its value
// changes. Handlers run synchronously, in binding order, outside the lock.
type State[T any] struct {
	mu       sync.Mutex
	writeMu  sync.Mutex
	value    T
	equal    EqualFunc[T]
	handlers []binding[T]
	nextID   Subscription
}

// Option configures a State.
type Option[T any] func(*State[T])

// WithEqual replaces the default structural equality.
func WithEqual[T any](eq EqualFunc[T]) Option[T] {
	return func(c *State[T]) {
		if eq != nil {
			c.equal = eq
		}
	}
}

// New creates a State holding initial.
func New[T any](initial T, opts ...Option[T]) *State[T] {
	c := &State[T]{
		value: initial,
		equal: DeepEqual[T],
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the current value.
func (c *State[T]) Get() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Peek implements Source.
func (c *State[T]) Peek() any {
	return c.Get()
}

// Set stores v if it differs from the current value and notifies handlers.
// It reports whether a change was committed.
func (c *State[T]) Set(v T) bool {
	return c.Update(func(T) T { return v })
}

// Update applies a transition function to the current value. The function
// must be pure: it may read other cells but must not write to this one.
func (c *State[T]) Update(fn func(T) T) bool {
	changed, _ := c.commit(func(old T) (T, error) { return fn(old), nil })
	return changed
}

// Apply runs a fallible transition. When it returns an error nothing is
// committed and the error is returned as is.
func (c *State[T]) Apply(fn func(T) (T, error)) error {
	_, err := c.commit(fn)
	return err
}

func (c *State[T]) commit(fn func(T) (T, error)) (bool, error) {
	c.writeMu.Lock()
	old := c.Get()
	next, err := fn(old)
	if err != nil {
		c.writeMu.Unlock()
		return false, err
	}
	if c.equal(old, next) {
		c.writeMu.Unlock()
		return false, nil
	}

	c.mu.Lock()
	c.value = next
	handlers := make([]binding[T], len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()
	c.writeMu.Unlock()

	for _, b := range handlers {
		b.fn(next, old)
	}
	return true, nil
}

// Bind registers h and returns its subscription.
func (c *State[T]) Bind(h Handler[T]) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.handlers = append(c.handlers, binding[T]{id: c.nextID, fn: h})
	return c.nextID
}

// Observe implements Source.
func (c *State[T]) Observe(fn func()) Subscription {
	return c.Bind(func(T, T) { fn() })
}

// Unbind removes the handler registered under sub.
func (c *State[T]) Unbind(sub Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, b := range c.handlers {
		if b.id == sub {
			c.handlers = append(c.handlers[:i:i], c.handlers[i+1:]...)
			return
		}
	}
}

// Len returns the number of bound handlers.
func (c *State[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers)
}
