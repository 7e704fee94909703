package stage

import (
	"context"
	"sync"

	"github.com/samber/lo"

	"github.com/jzx17/gometer/pkg/timer"
	"github.com/jzx17/gometer/pkg/types"
)

// Func adapts a plain function to types.Stage. Reset does nothing.
type Func func(ctx context.Context, m types.Measurement) error

// Process calls f
func (f Func) Process(ctx context.Context, m types.Measurement) error {
	return f(ctx, m)
}

// Reset implements types.Stage
func (f Func) Reset() {}

// RecorderStage hands every timer to a recorder from the pipeline worker
type RecorderStage struct {
	recorder timer.Recorder
}

var _ types.Stage = (*RecorderStage)(nil)

// NewRecorderStage creates a recording stage
func NewRecorderStage(recorder timer.Recorder) (*RecorderStage, error) {
	if recorder == nil {
		return nil, types.ErrNilRecorder
	}
	return &RecorderStage{recorder: recorder}, nil
}

// Name implements types.Named
func (s *RecorderStage) Name() string { return "recorder" }

// Process records the timer
func (s *RecorderStage) Process(ctx context.Context, m types.Measurement) error {
	t, err := asTimer(m)
	if err != nil {
		return err
	}
	s.recorder.Record(t)
	return nil
}

// Reset implements types.Stage
func (s *RecorderStage) Reset() {}

// Counter counts measurements per task. Measurements without a Task method
// are counted under the empty task.
type Counter struct {
	mu     sync.Mutex
	counts map[string]int
}

var _ types.Stage = (*Counter)(nil)

// NewCounter creates an empty counter
func NewCounter() *Counter {
	return &Counter{counts: make(map[string]int)}
}

// Name implements types.Named
func (c *Counter) Name() string { return "counter" }

// Process counts m
func (c *Counter) Process(ctx context.Context, m types.Measurement) error {
	task := ""
	if t, ok := m.(interface{ Task() string }); ok {
		task = t.Task()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[task]++
	return nil
}

// Reset zeroes every count
func (c *Counter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.counts)
}

// Count returns the number of measurements seen for task
func (c *Counter) Count(task string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[task]
}

// Total returns the number of measurements seen for all tasks
func (c *Counter) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return lo.Sum(lo.Values(c.counts))
}
