package cell

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerived_OlderResultIsNotPublishedOverNewer(t *testing.T) {
	a := New(0)
	d := Derive1(a, func(v int, _ int) int { return v * 10 })
	defer d.Close()

	var seen []int
	d.Bind(func(next, _ int) { seen = append(seen, next) })

	// Two recomputations extract in order but publish in reverse.
	a.mu.Lock()
	a.value = 1
	a.mu.Unlock()
	first, firstSeq, ok := d.compute()
	require.True(t, ok)

	a.mu.Lock()
	a.value = 2
	a.mu.Unlock()
	second, secondSeq, ok := d.compute()
	require.True(t, ok)

	d.publish(second, secondSeq)
	d.publish(first, firstSeq)

	assert.Equal(t, 20, d.Get())
	assert.Equal(t, []int{20}, seen)

	// The cell still follows its sources afterwards.
	a.Set(3)
	assert.Equal(t, 30, d.Get())
}
