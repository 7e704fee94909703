package types

import "time"

// Clock is the time source of timers and of pipeline dispatch metrics
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// RealClock reads the system clock. Since uses the monotonic reading that
// Now attaches, so wall clock jumps do not skew elapsed times.
type RealClock struct{}

// NewRealClock returns the system clock
func NewRealClock() Clock {
	return RealClock{}
}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }
