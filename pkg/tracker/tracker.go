// Package tracker creates timers and routes the stopped ones into a pipeline.
//
// A Tracker is the entry point for instrumented code: Start returns a running
// timer, and Stop on that timer hands it to the tracker's recorder and, when
// stages are configured, to the tracker's pipeline. Disabled tracking and
// filtered levels return shell timers so calling code never changes.
package tracker

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/jzx17/gometer/pkg/chain"
	"github.com/jzx17/gometer/pkg/pipeline"
	"github.com/jzx17/gometer/pkg/record"
	"github.com/jzx17/gometer/pkg/timer"
	"github.com/jzx17/gometer/pkg/types"
)

// Option configures a Tracker
type Option = types.Option[*Tracker]

// Tracker creates timers for instrumented code
type Tracker struct {
	name     string
	logger   *zap.Logger
	clock    types.Clock
	pipeOpts []pipeline.Option

	disabled        atomic.Bool
	keepList        atomic.Bool
	trackConcurrent atomic.Bool

	mu         sync.RWMutex
	recorder   record.Recorder
	timers     []*timer.Timer
	concurrent map[string]*atomic.Int64

	filter   *LevelSet
	pipeline *pipeline.Pipeline
}

// New creates a tracker and its pipeline. The pipeline worker starts with
// the first stage.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		name:       "tracker",
		logger:     zap.NewNop(),
		clock:      types.NewRealClock(),
		recorder:   record.Null{},
		concurrent: make(map[string]*atomic.Int64),
		filter:     NewLevelSet(),
	}
	for _, opt := range opts {
		opt(t)
	}

	pipeOpts := append([]pipeline.Option{
		pipeline.WithName(t.name),
		pipeline.WithLogger(t.logger),
		pipeline.WithClock(t.clock),
	}, t.pipeOpts...)
	t.pipeline = pipeline.New(pipeOpts...)
	t.logger = t.logger.With(zap.String("tracker", t.name))

	return t
}

// WithName sets the tracker name, also used for its pipeline
func WithName(name string) Option {
	return func(t *Tracker) {
		if name != "" {
			t.name = name
		}
	}
}

// WithLogger sets the logger for the tracker and its pipeline
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithClock sets the clock used by new timers
func WithClock(clock types.Clock) Option {
	return func(t *Tracker) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// WithRecorder sets the default recorder of new timers
func WithRecorder(r record.Recorder) Option {
	return func(t *Tracker) {
		if r != nil {
			t.recorder = r
		}
	}
}

// WithKeepList keeps every started timer until Clear
func WithKeepList(keep bool) Option {
	return func(t *Tracker) {
		t.keepList.Store(keep)
	}
}

// WithTrackConcurrent records how many timers of the same task were running
func WithTrackConcurrent(track bool) Option {
	return func(t *Tracker) {
		t.trackConcurrent.Store(track)
	}
}

// WithDisabled makes Start return shell timers
func WithDisabled(disabled bool) Option {
	return func(t *Tracker) {
		t.disabled.Store(disabled)
	}
}

// WithLevels enables levels for StartLevel
func WithLevels(levels ...Level) Option {
	return func(t *Tracker) {
		t.filter.AddAll(levels...)
	}
}

// WithPipelineOptions passes options to the tracker's pipeline
func WithPipelineOptions(opts ...pipeline.Option) Option {
	return func(t *Tracker) {
		t.pipeOpts = append(t.pipeOpts, opts...)
	}
}

// Name returns the tracker name
func (t *Tracker) Name() string {
	return t.name
}

// Start starts a timer for task without level filtering
func (t *Tracker) Start(task string) *timer.Timer {
	return t.StartLevel(nil, task)
}

// StartLevel starts a timer for task if level is enabled. A nil level is
// always enabled. Disabled tracking or a filtered level yields a shell timer.
func (t *Tracker) StartLevel(level Level, task string) *timer.Timer {
	if t.disabled.Load() {
		return timer.NewShell(task)
	}
	if level != nil && !t.filter.Enables(level) {
		return timer.NewShell(task)
	}

	opts := []timer.Option{
		timer.WithDelayedStart(),
		timer.WithClock(t.clock),
		timer.WithStopListener(t.onStop),
	}
	if r := t.Recorder(); r != nil {
		if _, null := r.(record.Null); !null {
			opts = append(opts, timer.WithRecorder(r))
		}
	}
	tm := timer.New(task, opts...)

	if t.keepList.Load() {
		t.mu.Lock()
		t.timers = append(t.timers, tm)
		t.mu.Unlock()
	}
	if t.trackConcurrent.Load() {
		tm.SetConcurrent(int(t.counter(task).Add(1)))
	}

	tm.Start()
	return tm
}

// onStop runs on the goroutine that stopped tm
func (t *Tracker) onStop(tm *timer.Timer) {
	if tm.Concurrent() > 0 {
		t.mu.RLock()
		c, ok := t.concurrent[tm.Task()]
		t.mu.RUnlock()
		// counts dropped by Clear are not revived
		if ok {
			c.Add(-1)
		}
	}
	t.pipeline.Submit(tm)
}

func (t *Tracker) counter(task string) *atomic.Int64 {
	t.mu.RLock()
	c, ok := t.concurrent[task]
	t.mu.RUnlock()
	if ok {
		return c
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok = t.concurrent[task]; !ok {
		c = &atomic.Int64{}
		t.concurrent[task] = c
	}
	return c
}

// Concurrent returns the number of running timers for task
func (t *Tracker) Concurrent(task string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if c, ok := t.concurrent[task]; ok {
		return int(c.Load())
	}
	return 0
}

// Timers returns the kept timers in start order
func (t *Tracker) Timers() []*timer.Timer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]*timer.Timer(nil), t.timers...)
}

// SetDisabled turns tracking off or on
func (t *Tracker) SetDisabled(disabled bool) { t.disabled.Store(disabled) }

// Disabled reports whether tracking is off
func (t *Tracker) Disabled() bool { return t.disabled.Load() }

// SetKeepList turns the timer list on or off
func (t *Tracker) SetKeepList(keep bool) { t.keepList.Store(keep) }

// KeepList reports whether started timers are kept
func (t *Tracker) KeepList() bool { return t.keepList.Load() }

// SetTrackConcurrent turns concurrency tracking on or off
func (t *Tracker) SetTrackConcurrent(track bool) { t.trackConcurrent.Store(track) }

// TrackConcurrent reports whether concurrency is tracked
func (t *Tracker) TrackConcurrent() bool { return t.trackConcurrent.Load() }

// Recorder returns the default recorder of new timers
func (t *Tracker) Recorder() record.Recorder {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.recorder
}

// SetRecorder replaces the default recorder. nil restores record.Null.
// Timers already started keep their recorder.
func (t *Tracker) SetRecorder(r record.Recorder) {
	if r == nil {
		r = record.Null{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recorder = r
}

// EnableLevel enables level. See LevelSet.Add for the return value.
func (t *Tracker) EnableLevel(level Level) Level {
	return t.filter.Add(level)
}

// EnableLevels enables every level
func (t *Tracker) EnableLevels(levels ...Level) {
	t.filter.AddAll(levels...)
}

// DisableLevel disables level and reports whether it was enabled
func (t *Tracker) DisableLevel(level Level) bool {
	return t.filter.Remove(level)
}

// DisableLevels disables every level and reports whether any was enabled
func (t *Tracker) DisableLevels(levels ...Level) bool {
	disabled := false
	for _, l := range levels {
		disabled = t.filter.Remove(l) || disabled
	}
	return disabled
}

// ClearLevels disables every level. Only nil levels start real timers afterwards.
func (t *Tracker) ClearLevels() {
	t.filter.Clear()
}

// Levels returns the level filter
func (t *Tracker) Levels() *LevelSet {
	return t.filter
}

// Pipeline returns the pipeline stopped timers are submitted to
func (t *Tracker) Pipeline() *pipeline.Pipeline {
	return t.pipeline
}

// AddStage appends a stage to the pipeline
func (t *Tracker) AddStage(stage types.Stage) (*chain.Node, error) {
	return t.pipeline.AddStage(stage)
}

// AdoptStages appends the stages of another pipeline, in its link order,
// to this tracker's pipeline. The other pipeline is left unchanged.
func (t *Tracker) AdoptStages(from *pipeline.Pipeline) error {
	if from == nil {
		return nil
	}
	for _, n := range from.Stages() {
		if _, err := t.pipeline.AddStage(n.Stage()); err != nil {
			return err
		}
	}
	return nil
}

// ClearStages empties the pipeline, discarding queued timers
func (t *Tracker) ClearStages() {
	t.pipeline.ClearStages()
}

// Clear forgets kept timers and concurrency counts and resets every stage
func (t *Tracker) Clear() {
	t.mu.Lock()
	t.timers = nil
	t.concurrent = make(map[string]*atomic.Int64)
	t.mu.Unlock()

	t.pipeline.ResetAll()
	t.logger.Debug("tracker cleared")
}

// Shutdown drains the pipeline and closes the default recorder
func (t *Tracker) Shutdown(ctx context.Context) error {
	err := multierr.Combine(t.pipeline.Shutdown(ctx), t.Recorder().Close())
	if err != nil {
		t.logger.Warn("tracker shutdown", zap.Error(err))
	}
	return err
}
