/*
Package cell implements observable state cells and derived cells.

A State holds a mutable value and notifies bound handlers synchronously when
the value changes. Changes are detected by value equality, so setting an equal
value is silent.

A Derived cell recomputes from one or more sources whenever any of them
changes. It can skip recomputation when no input changed (input check), skip
notifications when the result is equal (output check), and coalesce bursts of
changes behind a cancellable scheduled task (debounce).

# Usage

	count := cell.New(1)
	double := cell.Derive1(count, func(n int, _ int) int { return n * 2 })

	double.Bind(func(next, prev int) {
		fmt.Println(prev, "->", next)
	})

	count.Set(2) // prints "2 -> 4"
	count.Set(2) // equal value: nothing runs
*/
package cell
