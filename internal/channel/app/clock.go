package app

import "time"

// Timer stoppable pending callback
type Timer interface {
	// Stop reports false when the callback already ran or was stopped
	Stop() bool
}

// Clock time source, injected so timer-driven state can be tested without sleeping
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// RealClock wall clock
func RealClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
