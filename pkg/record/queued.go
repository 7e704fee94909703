package record

import (
	"context"

	"go.uber.org/multierr"

	"github.com/jzx17/gometer/pkg/pipeline"
	"github.com/jzx17/gometer/pkg/stage"
	"github.com/jzx17/gometer/pkg/timer"
	"github.com/jzx17/gometer/pkg/types"
)

// Queued hands timers to a pipeline so the target recorder runs on the
// pipeline worker instead of the goroutine that stopped the timer
type Queued struct {
	target   Recorder
	pipeline *pipeline.Pipeline
}

// NewQueued creates a queued recorder over target. The pipeline defaults to
// TerminateManually; Close drains it.
func NewQueued(target Recorder, opts ...pipeline.Option) (*Queued, error) {
	if target == nil {
		return nil, types.ErrNilRecorder
	}
	s, err := stage.NewRecorderStage(target)
	if err != nil {
		return nil, err
	}

	opts = append([]pipeline.Option{
		pipeline.WithName("queued-recorder"),
		pipeline.WithPolicy(types.TerminateManually),
	}, opts...)
	p, _, err := pipeline.NewWithStage(s, opts...)
	if err != nil {
		return nil, err
	}
	return &Queued{target: target, pipeline: p}, nil
}

// Record queues t for the target recorder
func (q *Queued) Record(t *timer.Timer) {
	q.pipeline.Submit(t)
}

// Pipeline returns the underlying pipeline
func (q *Queued) Pipeline() *pipeline.Pipeline {
	return q.pipeline
}

// Shutdown drains queued timers into the target and closes it
func (q *Queued) Shutdown(ctx context.Context) error {
	return multierr.Combine(q.pipeline.Shutdown(ctx), q.target.Close())
}

// Close is Shutdown without a deadline
func (q *Queued) Close() error {
	return q.Shutdown(context.Background())
}
