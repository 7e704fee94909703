package tracker

import (
	"sync"

	"github.com/jzx17/gometer/pkg/timer"
)

var (
	defaultMu      sync.Mutex
	defaultTracker *Tracker
)

// Default returns the process-wide tracker, creating it on first use
func Default() *Tracker {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultTracker == nil {
		defaultTracker = New(WithName("default"))
	}
	return defaultTracker
}

// SetDefault replaces the process-wide tracker and returns the previous one.
// The caller owns shutting the previous tracker down.
func SetDefault(t *Tracker) *Tracker {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	prev := defaultTracker
	defaultTracker = t
	return prev
}

// Start starts a timer on the process-wide tracker
func Start(task string) *timer.Timer {
	return Default().Start(task)
}

// StartLevel starts a timer at level on the process-wide tracker
func StartLevel(level Level, task string) *timer.Timer {
	return Default().StartLevel(level, task)
}
