// Package stats provides rolling per-task timing statistics
package stats

import (
	"fmt"
	"sync"
	"time"

	"github.com/jzx17/gometer/pkg/timer"
	"github.com/jzx17/gometer/pkg/types"
)

// Snapshot is a point-in-time copy of BasicStatistics
type Snapshot struct {
	Task  string
	Count int64
	Total time.Duration
	Min   time.Duration
	Max   time.Duration
}

// Average returns the mean elapsed time, zero when empty
func (s Snapshot) Average() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// AverageNanos returns the mean elapsed time in nanoseconds
func (s Snapshot) AverageNanos() float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(s.Total.Nanoseconds()) / float64(s.Count)
}

// BasicStatistics accumulates count, total, min and max for one task.
// Min and Max are zero until the first timer is added.
type BasicStatistics struct {
	mu   sync.RWMutex
	snap Snapshot
}

// New creates empty statistics for task
func New(task string) *BasicStatistics {
	return &BasicStatistics{snap: Snapshot{Task: task}}
}

// FromTimer creates statistics for the task of t seeded with t
func FromTimer(t *timer.Timer) (*BasicStatistics, error) {
	s := New(t.Task())
	if err := s.Add(t); err != nil {
		return nil, err
	}
	return s, nil
}

// Add folds a stopped timer into the statistics
func (s *BasicStatistics) Add(t *timer.Timer) error {
	if t.Task() != s.snap.Task {
		return fmt.Errorf("%w: %q into %q", types.ErrTaskMismatch, t.Task(), s.snap.Task)
	}
	elapsed, err := t.Elapsed()
	if err != nil {
		return err
	}
	s.Observe(elapsed)
	return nil
}

// Observe folds one elapsed time into the statistics
func (s *BasicStatistics) Observe(elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap.Count == 0 || elapsed < s.snap.Min {
		s.snap.Min = elapsed
	}
	if s.snap.Count == 0 || elapsed > s.snap.Max {
		s.snap.Max = elapsed
	}
	s.snap.Count++
	s.snap.Total += elapsed
}

// Task returns the task name
func (s *BasicStatistics) Task() string {
	return s.snap.Task
}

// Count returns the number of timers added
func (s *BasicStatistics) Count() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Count
}

// Total returns the sum of elapsed times
func (s *BasicStatistics) Total() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Total
}

// Min returns the shortest elapsed time
func (s *BasicStatistics) Min() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Min
}

// Max returns the longest elapsed time
func (s *BasicStatistics) Max() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Max
}

// Average returns the mean elapsed time
func (s *BasicStatistics) Average() time.Duration {
	return s.Snapshot().Average()
}

// Snapshot returns a consistent copy of the current values
func (s *BasicStatistics) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}
