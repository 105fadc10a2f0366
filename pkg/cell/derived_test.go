package cell_test

import (
	"sync"
	"testing"
	"time"

	"github.com/aretw0/strata/pkg/cell"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualScheduler records scheduled callbacks until the test fires them.
type manualScheduler struct {
	mu    sync.Mutex
	tasks []*manualTask
}

type manualTask struct {
	fn      func()
	stopped bool
	ran     bool
}

func (t *manualTask) Stop() bool {
	wasPending := !t.stopped && !t.ran
	t.stopped = true
	return wasPending
}

func (s *manualScheduler) AfterFunc(_ time.Duration, f func()) cell.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	task := &manualTask{fn: f}
	s.tasks = append(s.tasks, task)
	return task
}

// fire runs every task that was not stopped and returns how many ran.
func (s *manualScheduler) fire() int {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = nil
	s.mu.Unlock()

	ran := 0
	for _, task := range tasks {
		if task.stopped || task.ran {
			continue
		}
		task.ran = true
		task.fn()
		ran++
	}
	return ran
}

func TestDerive_SeedsAndRecomputes(t *testing.T) {
	a := cell.New(2)
	b := cell.New(3)
	sum := cell.Derive2(a, b, func(x, y int, _ int) int { return x + y })
	assert.Equal(t, 5, sum.Get())

	a.Set(10)
	assert.Equal(t, 13, sum.Get())
	b.Set(1)
	assert.Equal(t, 11, sum.Get())
}

func TestDerive_VariadicHeterogeneousSources(t *testing.T) {
	name := cell.New("n")
	count := cell.New(2)
	enabled := cell.New(true)

	label := cell.Derive([]cell.Source{name, count, enabled}, func(v []any, _ string) string {
		if !v[2].(bool) {
			return "off"
		}
		out := ""
		for i := 0; i < v[1].(int); i++ {
			out += v[0].(string)
		}
		return out
	})
	assert.Equal(t, "nn", label.Get())

	enabled.Set(false)
	assert.Equal(t, "off", label.Get())
}

func TestDerive_OutputCheckSuppressesEqualResults(t *testing.T) {
	n := cell.New(1)
	parity := cell.Derive1(n, func(v int, _ bool) bool { return v%2 == 0 })

	calls := 0
	parity.Bind(func(bool, bool) { calls++ })

	n.Set(3) // still odd
	n.Set(5) // still odd
	assert.Equal(t, 0, calls)

	n.Set(6)
	assert.Equal(t, 1, calls)
	assert.True(t, parity.Get())
}

func TestDerive_OutputCheckDisabledAlwaysNotifies(t *testing.T) {
	n := cell.New(1)
	parity := cell.Derive1(n, func(v int, _ bool) bool { return v%2 == 0 }, cell.WithCheckOutput(false))

	calls := 0
	parity.Bind(func(bool, bool) { calls++ })

	n.Set(3)
	n.Set(5)
	assert.Equal(t, 2, calls)
}

func TestDerive_InputCheckWithCustomSource(t *testing.T) {
	src := &noisySource{value: 1}
	extractions := 0
	d := cell.Derive([]cell.Source{src}, func(v []any, _ int) int {
		extractions++
		return v[0].(int) * 10
	})
	require.Equal(t, 1, extractions)

	// Notification without a value change: skipped with the input check.
	src.notify()
	assert.Equal(t, 1, extractions)

	src.value = 2
	src.notify()
	assert.Equal(t, 2, extractions)
	assert.Equal(t, 20, d.Get())

	// Without the input check every notification extracts.
	src2 := &noisySource{value: 1}
	count := 0
	cell.Derive([]cell.Source{src2}, func(v []any, _ int) int {
		count++
		return 0
	}, cell.WithCheckInput(false))
	src2.notify()
	src2.notify()
	assert.Equal(t, 3, count)
}

// noisySource notifies observers on demand, even when its value is unchanged.
type noisySource struct {
	value     int
	observers []func()
}

func (s *noisySource) Peek() any { return s.value }

func (s *noisySource) Observe(fn func()) cell.Subscription {
	s.observers = append(s.observers, fn)
	return cell.Subscription(len(s.observers))
}

func (s *noisySource) Unbind(cell.Subscription) {}

func (s *noisySource) notify() {
	for _, fn := range s.observers {
		fn()
	}
}

func TestDerive_ReceivesPreviousValue(t *testing.T) {
	n := cell.New(1)
	history := cell.Derive1(n, func(v int, prev []int) []int {
		return append(append([]int{}, prev...), v)
	})
	n.Set(2)
	n.Set(3)
	assert.Equal(t, []int{1, 2, 3}, history.Get())
}

func TestDerive_ChainingPropagatesSuppression(t *testing.T) {
	n := cell.New(1)
	bucket := cell.Derive1(n, func(v int, _ int) int { return v / 10 })
	label := cell.Derive1(bucket, func(b int, _ string) string {
		if b == 0 {
			return "small"
		}
		return "large"
	})

	bucketCalls, labelCalls := 0, 0
	bucket.Bind(func(int, int) { bucketCalls++ })
	label.Bind(func(string, string) { labelCalls++ })

	n.Set(5) // bucket stays 0
	assert.Equal(t, 0, bucketCalls)
	assert.Equal(t, 0, labelCalls)

	n.Set(25) // bucket 2, label large
	assert.Equal(t, 1, bucketCalls)
	assert.Equal(t, 1, labelCalls)

	n.Set(35) // bucket 3, label stays large
	assert.Equal(t, 2, bucketCalls)
	assert.Equal(t, 1, labelCalls)
	assert.Equal(t, "large", label.Get())
}

func TestDerive_DebounceCoalescesBursts(t *testing.T) {
	sched := &manualScheduler{}
	n := cell.New(0)
	extractions := 0
	d := cell.Derive1(n, func(v int, _ int) int {
		extractions++
		return v
	}, cell.WithDebounce(100*time.Millisecond), cell.WithScheduler(sched))
	require.Equal(t, 1, extractions)

	n.Set(1)
	n.Set(2)
	n.Set(3)
	assert.True(t, d.Pending())
	assert.Equal(t, 0, d.Get())

	assert.Equal(t, 1, sched.fire())
	assert.Equal(t, 2, extractions)
	assert.Equal(t, 3, d.Get())
	assert.False(t, d.Pending())
}

func TestDerive_DebounceFlush(t *testing.T) {
	sched := &manualScheduler{}
	n := cell.New("a")
	d := cell.Derive1(n, func(v string, _ string) string { return v + "!" },
		cell.WithDebounce(time.Second), cell.WithScheduler(sched))

	assert.False(t, d.Flush())
	n.Set("b")
	assert.True(t, d.Flush())
	assert.Equal(t, "b!", d.Get())

	// The superseded task is a no-op.
	assert.Equal(t, 0, sched.fire())
}

func TestDerive_DebounceWithRealTimer(t *testing.T) {
	n := cell.New(0)
	d := cell.Derive1(n, func(v int, _ int) int { return v * 2 }, cell.WithDebounce(10*time.Millisecond))
	n.Set(4)
	assert.Eventually(t, func() bool { return d.Get() == 8 }, time.Second, 5*time.Millisecond)
}

func TestDerive_Close(t *testing.T) {
	sched := &manualScheduler{}
	n := cell.New(1)
	d := cell.Derive1(n, func(v int, _ int) int { return v }, cell.WithDebounce(time.Second), cell.WithScheduler(sched))

	n.Set(2)
	d.Close()
	assert.False(t, d.Pending())
	assert.Equal(t, 0, sched.fire())
	assert.Equal(t, 0, n.Len())

	n.Set(3)
	assert.Equal(t, 1, d.Get())
}

func TestDerive_ConcurrentSourcesSettleOnLatestInputs(t *testing.T) {
	a, b := cell.New(0), cell.New(0)
	d := cell.Derive2(a, b, func(x, y int, _ [2]int) [2]int { return [2]int{x, y} })
	defer d.Close()

	const n = 2000
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 1; i <= n; i++ {
			a.Set(i)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 1; i <= n; i++ {
			b.Set(i)
		}
	}()
	wg.Wait()

	assert.Equal(t, [2]int{n, n}, d.Get())
}
