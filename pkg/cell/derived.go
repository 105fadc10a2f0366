package cell

import (
	"errors"
	"reflect"
	"sync"
	"time"
)

// Extractor computes a derived value from the current source values (in
// source order) and the previously derived value.
type Extractor[D any] func(values []any, previous D) D

type deriveConfig struct {
	checkInput  bool
	checkOutput bool
	debounce    time.Duration
	scheduler   Scheduler
	inputEqual  func(a, b any) bool
	outputEqual func(a, b any) bool
}

// DeriveOption configures a Derived cell.
type DeriveOption func(*deriveConfig)

// WithCheckInput toggles skipping recomputation when no source changed.
func WithCheckInput(enabled bool) DeriveOption {
	return func(c *deriveConfig) { c.checkInput = enabled }
}

// WithCheckOutput toggles suppressing notifications for equal results.
func WithCheckOutput(enabled bool) DeriveOption {
	return func(c *deriveConfig) { c.checkOutput = enabled }
}

// WithDebounce coalesces bursts of source changes into one recomputation
// that runs d after the last change, using the values current at that time.
func WithDebounce(d time.Duration) DeriveOption {
	return func(c *deriveConfig) { c.debounce = d }
}

// WithScheduler replaces the timer used by WithDebounce.
func WithScheduler(s Scheduler) DeriveOption {
	return func(c *deriveConfig) {
		if s != nil {
			c.scheduler = s
		}
	}
}

// WithInputEqual replaces the equality used by the input check.
func WithInputEqual(eq func(a, b any) bool) DeriveOption {
	return func(c *deriveConfig) {
		if eq != nil {
			c.inputEqual = eq
		}
	}
}

// WithOutputEqual replaces the equality used by the output check.
func WithOutputEqual(eq func(a, b any) bool) DeriveOption {
	return func(c *deriveConfig) {
		if eq != nil {
			c.outputEqual = eq
		}
	}
}

// Derived is a read-only cell recomputed from its sources.
type Derived[D any] struct {
	out     *State[D]
	sources []Source
	subs    []Subscription
	extract Extractor[D]
	cfg     deriveConfig

	// computeMu serializes extraction; last is the input snapshot. seq
	// numbers extractions and published is the newest one written to out,
	// guarded by out's write lock.
	computeMu sync.Mutex
	last      []any
	seq       uint64
	published uint64

	mu      sync.Mutex
	task    Task
	gen     uint64
	pending bool
	closed  bool
}

// Derive builds a Derived cell over sources. The extractor runs once
// immediately to seed the value and again whenever a source changes.
func Derive[D any](sources []Source, extract func(values []any, previous D) D, opts ...DeriveOption) *Derived[D] {
	cfg := deriveConfig{
		checkInput:  true,
		checkOutput: true,
		scheduler:   TimerScheduler,
		inputEqual:  reflect.DeepEqual,
		outputEqual: reflect.DeepEqual,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	d := &Derived[D]{
		sources: append([]Source(nil), sources...),
		extract: extract,
		cfg:     cfg,
	}

	eq := EqualFunc[D](Never[D])
	if cfg.checkOutput {
		outEq := cfg.outputEqual
		eq = func(a, b D) bool { return outEq(a, b) }
	}

	var zero D
	d.last = d.read()
	d.out = New(extract(d.last, zero), WithEqual(eq))

	for _, src := range d.sources {
		d.subs = append(d.subs, src.Observe(d.trigger))
	}
	return d
}

// Derive1 derives from a single typed source.
func Derive1[A, D any](a Readable[A], fn func(A, D) D, opts ...DeriveOption) *Derived[D] {
	return Derive([]Source{a}, func(v []any, prev D) D {
		return fn(as[A](v[0]), prev)
	}, opts...)
}

// Derive2 derives from two typed sources.
func Derive2[A, B, D any](a Readable[A], b Readable[B], fn func(A, B, D) D, opts ...DeriveOption) *Derived[D] {
	return Derive([]Source{a, b}, func(v []any, prev D) D {
		return fn(as[A](v[0]), as[B](v[1]), prev)
	}, opts...)
}

func as[T any](v any) T {
	t, _ := v.(T)
	return t
}

func (d *Derived[D]) read() []any {
	values := make([]any, len(d.sources))
	for i, src := range d.sources {
		values[i] = src.Peek()
	}
	return values
}

func (d *Derived[D]) trigger() {
	if d.cfg.debounce <= 0 {
		d.recompute()
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if d.task != nil {
		d.task.Stop()
	}
	d.gen++
	gen := d.gen
	d.pending = true
	d.task = d.cfg.scheduler.AfterFunc(d.cfg.debounce, func() { d.fire(gen) })
}

func (d *Derived[D]) fire(gen uint64) {
	d.mu.Lock()
	if d.closed || gen != d.gen || !d.pending {
		d.mu.Unlock()
		return
	}
	d.pending = false
	d.task = nil
	d.mu.Unlock()

	d.recompute()
}

// errStale aborts the publication of a result overtaken by a newer one.
var errStale = errors.New("cell: stale derived value")

func (d *Derived[D]) recompute() {
	next, seq, ok := d.compute()
	if ok {
		d.publish(next, seq)
	}
}

func (d *Derived[D]) compute() (next D, seq uint64, ok bool) {
	d.computeMu.Lock()
	defer d.computeMu.Unlock()
	values := d.read()
	if d.cfg.checkInput && d.sameInputs(values) {
		return next, 0, false
	}
	d.last = values
	d.seq++
	return d.extract(values, d.out.Get()), d.seq, true
}

// publish writes next unless a later extraction was already written, so
// concurrent recomputations never leave an older result in place.
func (d *Derived[D]) publish(next D, seq uint64) {
	_ = d.out.Apply(func(D) (D, error) {
		if seq < d.published {
			return next, errStale
		}
		d.published = seq
		return next, nil
	})
}

func (d *Derived[D]) sameInputs(values []any) bool {
	if len(values) != len(d.last) {
		return false
	}
	for i := range values {
		if !d.cfg.inputEqual(values[i], d.last[i]) {
			return false
		}
	}
	return true
}

// Flush runs a pending debounced recomputation now. It reports whether one
// was pending.
func (d *Derived[D]) Flush() bool {
	d.mu.Lock()
	if !d.pending {
		d.mu.Unlock()
		return false
	}
	if d.task != nil {
		d.task.Stop()
	}
	d.gen++
	d.pending = false
	d.task = nil
	d.mu.Unlock()

	d.recompute()
	return true
}

// Pending reports whether a debounced recomputation is scheduled.
func (d *Derived[D]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Close cancels any pending recomputation and unbinds from every source.
// The cell keeps its last value.
func (d *Derived[D]) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.pending = false
	if d.task != nil {
		d.task.Stop()
		d.task = nil
	}
	d.mu.Unlock()

	for i, src := range d.sources {
		src.Unbind(d.subs[i])
	}
}

// Get returns the current derived value.
func (d *Derived[D]) Get() D { return d.out.Get() }

// Peek implements Source.
func (d *Derived[D]) Peek() any { return d.out.Get() }

// Bind registers a handler for derived value changes.
func (d *Derived[D]) Bind(h Handler[D]) Subscription { return d.out.Bind(h) }

// Observe implements Source.
func (d *Derived[D]) Observe(fn func()) Subscription { return d.out.Observe(fn) }

// Unbind removes a handler.
func (d *Derived[D]) Unbind(sub Subscription) { d.out.Unbind(sub) }
