// Package clock abstracts wall time and delayed callbacks so timer-driven
// workflow behaviour can be exercised deterministically.
package clock

import "time"

// Timer is a cancellable scheduled callback.
type Timer interface {
	// Stop cancels the timer. It reports false when the callback already ran or was stopped.
	Stop() bool
}

// Clock schedules delayed callbacks and reports the current time.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

type realClock struct{}

// New returns a Clock backed by the runtime timers.
func New() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
