// Package stage provides the built-in stages for a timing pipeline
package stage

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/samber/lo"

	"github.com/jzx17/gometer/pkg/stats"
	"github.com/jzx17/gometer/pkg/timer"
	"github.com/jzx17/gometer/pkg/types"
)

// asTimer narrows a measurement to a timer
func asTimer(m types.Measurement) (*timer.Timer, error) {
	t, ok := m.(*timer.Timer)
	if !ok || t == nil {
		return nil, fmt.Errorf("%w: %T", types.ErrUnsupportedMeasurement, m)
	}
	return t, nil
}

// StatsStage keeps BasicStatistics per task for every timer it sees
type StatsStage struct {
	mu     sync.RWMutex
	byTask map[string]*stats.BasicStatistics
}

var _ types.Stage = (*StatsStage)(nil)

// NewStatsStage creates an empty statistics stage
func NewStatsStage() *StatsStage {
	return &StatsStage{byTask: make(map[string]*stats.BasicStatistics)}
}

// Name implements types.Named
func (s *StatsStage) Name() string { return "stats" }

// Process adds a stopped timer to the statistics of its task
func (s *StatsStage) Process(ctx context.Context, m types.Measurement) error {
	t, err := asTimer(m)
	if err != nil {
		return err
	}
	return s.forTask(t.Task()).Add(t)
}

// Reset drops the statistics of every task
func (s *StatsStage) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byTask = make(map[string]*stats.BasicStatistics)
}

func (s *StatsStage) forTask(task string) *stats.BasicStatistics {
	s.mu.RLock()
	st, ok := s.byTask[task]
	s.mu.RUnlock()
	if ok {
		return st
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok = s.byTask[task]; !ok {
		st = stats.New(task)
		s.byTask[task] = st
	}
	return st
}

// Statistics returns the live statistics for task or nil
func (s *StatsStage) Statistics(task string) *stats.BasicStatistics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byTask[task]
}

// Snapshot returns a copy of the statistics for task
func (s *StatsStage) Snapshot(task string) (stats.Snapshot, bool) {
	st := s.Statistics(task)
	if st == nil {
		return stats.Snapshot{}, false
	}
	return st.Snapshot(), true
}

// All returns the live statistics of every task, ordered by task
func (s *StatsStage) All() []*stats.BasicStatistics {
	s.mu.RLock()
	all := lo.Values(s.byTask)
	s.mu.RUnlock()

	slices.SortFunc(all, func(a, b *stats.BasicStatistics) int {
		return strings.Compare(a.Task(), b.Task())
	})
	return all
}

// AllSnapshots returns a copy of the statistics of every task, ordered by task
func (s *StatsStage) AllSnapshots() []stats.Snapshot {
	return lo.Map(s.All(), func(st *stats.BasicStatistics, _ int) stats.Snapshot {
		return st.Snapshot()
	})
}

// Tasks returns the tracked task names in order
func (s *StatsStage) Tasks() []string {
	s.mu.RLock()
	tasks := lo.Keys(s.byTask)
	s.mu.RUnlock()

	slices.Sort(tasks)
	return tasks
}
