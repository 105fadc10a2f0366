package cell

import "time"

// Task is a scheduled callback that can be cancelled before it runs.
type Task interface {
	// Stop cancels the task. It reports whether the call prevented the run.
	Stop() bool
}

// Scheduler runs f once after d has elapsed.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Task
}

// SchedulerFunc adapts a function to the Scheduler interface.
type SchedulerFunc func(d time.Duration, f func()) Task

// AfterFunc implements Scheduler.
func (fn SchedulerFunc) AfterFunc(d time.Duration, f func()) Task {
	return fn(d, f)
}

// TimerScheduler schedules with time.AfterFunc.
var TimerScheduler Scheduler = SchedulerFunc(func(d time.Duration, f func()) Task {
	return time.AfterFunc(d, f)
})
