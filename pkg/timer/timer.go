// Package timer provides the measurement that flows through a pipeline: a
// named, start/stop timer with optional notes.
//
// A Timer is safe for concurrent use. It is normally started and stopped by
// one goroutine and then read by the pipeline worker and its stages.
package timer

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jzx17/gometer/pkg/types"
)

// Status is the lifecycle state of a timer
type Status int32

const (
	// StatusInitialized is a timer created with a delayed start
	StatusInitialized Status = iota
	// StatusRunning is a started timer
	StatusRunning
	// StatusStopped is a stopped timer
	StatusStopped
)

// String returns the string representation of Status
func (s Status) String() string {
	switch s {
	case StatusInitialized:
		return "initialized"
	case StatusRunning:
		return "running"
	case StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Recorder receives a timer when it stops
type Recorder interface {
	Record(t *Timer)
}

// StopListener is called after a timer stops and after its recorder ran
type StopListener func(t *Timer)

// Option configures a Timer
type Option = types.Option[*Timer]

// Timer measures one unit of work
type Timer struct {
	mu sync.RWMutex

	id    uuid.UUID
	task  string
	label string
	clock types.Clock
	shell bool

	status     Status
	started    time.Time
	elapsed    time.Duration
	concurrent int
	notes      *Notes

	recorder Recorder
	listener StopListener
	delayed  bool
}

// New creates a timer for task and starts it unless WithDelayedStart is given
func New(task string, opts ...Option) *Timer {
	t := &Timer{
		id:    uuid.New(),
		task:  task,
		clock: types.NewRealClock(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if !t.delayed {
		t.Start()
	}
	return t
}

// NewShell creates a timer whose Start and Stop only move its status.
// It never records, never notifies and always reports zero durations.
func NewShell(task string) *Timer {
	t := &Timer{
		id:    uuid.New(),
		task:  task,
		clock: types.NewRealClock(),
		shell: true,
	}
	t.Start()
	return t
}

// WithClock sets the clock used for start and stop
func WithClock(clock types.Clock) Option {
	return func(t *Timer) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// WithDelayedStart leaves the timer Initialized until Start is called
func WithDelayedStart() Option {
	return func(t *Timer) {
		t.delayed = true
	}
}

// WithLabel tags the timer with the caller's worker or goroutine name
func WithLabel(label string) Option {
	return func(t *Timer) {
		t.label = label
	}
}

// WithRecorder sets the recorder called on stop
func WithRecorder(r Recorder) Option {
	return func(t *Timer) {
		t.recorder = r
	}
}

// WithStopListener sets the listener called on stop
func WithStopListener(l StopListener) Option {
	return func(t *Timer) {
		t.listener = l
	}
}

// Start moves an Initialized timer to Running. It has no effect otherwise.
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != StatusInitialized {
		return
	}
	if !t.shell {
		t.started = t.clock.Now()
	}
	t.status = StatusRunning
}

// Stop stops a running timer, then calls its recorder and listener.
// It returns the elapsed time, zero for a timer that never started.
func (t *Timer) Stop() time.Duration {
	return t.stop(nil)
}

// StopWithNotes stops the timer and attaches plain notes
func (t *Timer) StopWithNotes(values ...any) time.Duration {
	return t.stop(NewNotes(values...))
}

// StopWithKeyedNotes stops the timer and attaches keyed notes.
// The timer keeps running if pairs is malformed.
func (t *Timer) StopWithKeyedNotes(pairs ...any) (time.Duration, error) {
	notes, err := NewKeyedNotes(pairs...)
	if err != nil {
		return 0, err
	}
	return t.stop(notes), nil
}

func (t *Timer) stop(notes *Notes) time.Duration {
	t.mu.Lock()
	if t.shell {
		t.status = StatusStopped
		t.mu.Unlock()
		return 0
	}
	if t.status != StatusRunning {
		elapsed := t.elapsed
		t.mu.Unlock()
		return elapsed
	}

	t.elapsed = t.clock.Since(t.started)
	t.status = StatusStopped
	if notes != nil {
		t.notes = notes
	}
	elapsed, recorder, listener := t.elapsed, t.recorder, t.listener
	t.mu.Unlock()

	if recorder != nil {
		recorder.Record(t)
	}
	if listener != nil {
		listener(t)
	}
	return elapsed
}

// ID returns the unique timer id
func (t *Timer) ID() uuid.UUID {
	return t.id
}

// Task returns the task name
func (t *Timer) Task() string {
	return t.task
}

// Label returns the label given with WithLabel
func (t *Timer) Label() string {
	return t.label
}

// IsShell reports whether the timer was created with NewShell
func (t *Timer) IsShell() bool {
	return t.shell
}

// Status returns the lifecycle state
func (t *Timer) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// IsRunning reports whether the timer is running
func (t *Timer) IsRunning() bool {
	return t.Status() == StatusRunning
}

// IsStopped reports whether the timer is stopped
func (t *Timer) IsStopped() bool {
	return t.Status() == StatusStopped
}

// IsFinished implements types.Measurement. A nil timer is never finished.
func (t *Timer) IsFinished() bool {
	return t != nil && t.IsStopped()
}

// StartTime returns the wall clock start time
func (t *Timer) StartTime() (time.Time, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.status == StatusInitialized {
		return time.Time{}, types.ErrTimerNotStarted
	}
	return t.started, nil
}

// Elapsed returns the measured duration of a stopped timer
func (t *Timer) Elapsed() (time.Duration, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	switch t.status {
	case StatusInitialized:
		return 0, types.ErrTimerNotStarted
	case StatusRunning:
		return 0, types.ErrTimerNotStopped
	default:
		return t.elapsed, nil
	}
}

// SnapshotElapsed is Elapsed, except a running timer reports the time since start
func (t *Timer) SnapshotElapsed() (time.Duration, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	switch t.status {
	case StatusInitialized:
		return 0, types.ErrTimerNotStarted
	case StatusRunning:
		if t.shell {
			return 0, nil
		}
		return t.clock.Since(t.started), nil
	default:
		return t.elapsed, nil
	}
}

// Concurrent returns the number of timers of the same task running when this one started
func (t *Timer) Concurrent() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.concurrent
}

// SetConcurrent sets the concurrency value. Shell timers ignore it.
func (t *Timer) SetConcurrent(n int) {
	if t.shell {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.concurrent = n
}

// Notes returns the attached notes or nil
func (t *Timer) Notes() *Notes {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.notes
}

// SetNotes replaces the notes with plain notes
func (t *Timer) SetNotes(values ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.notes = NewNotes(values...)
}

// SetKeyedNotes replaces the notes with keyed notes
func (t *Timer) SetKeyedNotes(pairs ...any) error {
	notes, err := NewKeyedNotes(pairs...)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.notes = notes
	return nil
}

// SetRecorder replaces the recorder. Shell timers ignore it.
func (t *Timer) SetRecorder(r Recorder) {
	if t.shell {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recorder = r
}

// SetStopListener replaces the stop listener. Shell timers ignore it.
func (t *Timer) SetStopListener(l StopListener) {
	if t.shell {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listener = l
}

// elapsedOrUnset returns the elapsed time of a stopped timer or -1
func (t *Timer) elapsedOrUnset() time.Duration {
	if t.status != StatusStopped {
		return -1
	}
	return t.elapsed
}

// String renders the timer for humans
func (t *Timer) String() string {
	if t.shell {
		return "shell timer: " + t.task
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	start := "-"
	if t.status != StatusInitialized {
		start = t.started.Format(time.RFC3339Nano)
	}
	elapsed := t.elapsedOrUnset()
	ms := int64(-1)
	if elapsed >= 0 {
		ms = elapsed.Milliseconds()
	}

	s := fmt.Sprintf("Task: %s Start: %s Elapsed (ms): %d Elapsed (ns): %d",
		t.task, start, ms, elapsed.Nanoseconds())
	if t.notes != nil && t.notes.Len() > 0 {
		s += " Notes: " + t.notes.String()
	}
	return s
}

// CSVHeader is the header row matching CSV
const CSVHeader = "start_time_ms,task,label,elapsed_ms,elapsed_ns,concurrent,notes"

const csvFields = 7

// CSV renders the timer as one CSV row without a trailing newline
func (t *Timer) CSV() string {
	if t.shell {
		return "shell timer: " + t.task
	}

	t.mu.RLock()
	elapsed := t.elapsedOrUnset()
	ms := int64(-1)
	if elapsed >= 0 {
		ms = elapsed.Milliseconds()
	}
	var startMs int64
	if t.status != StatusInitialized {
		startMs = t.started.UnixMilli()
	}
	notes := ""
	if t.notes != nil {
		notes = t.notes.SingleValue()
	}
	row := []string{
		strconv.FormatInt(startMs, 10),
		t.task,
		t.label,
		strconv.FormatInt(ms, 10),
		strconv.FormatInt(elapsed.Nanoseconds(), 10),
		strconv.Itoa(t.concurrent),
		notes,
	}
	t.mu.RUnlock()

	var sb strings.Builder
	w := csv.NewWriter(&sb)
	_ = w.Write(row)
	w.Flush()
	return strings.TrimSuffix(sb.String(), "\n")
}

// ParseCSV rebuilds a stopped timer from a row written by CSV.
// The notes column is optional.
func ParseCSV(row string) (*Timer, error) {
	r := csv.NewReader(strings.NewReader(row))
	r.FieldsPerRecord = -1
	fields, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidCSV, err)
	}
	if len(fields) < csvFields-1 {
		return nil, fmt.Errorf("%w: expected at least %d fields, got %d",
			types.ErrInvalidCSV, csvFields-1, len(fields))
	}

	startMs, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: start_time_ms: %v", types.ErrInvalidCSV, err)
	}
	ns, err := strconv.ParseInt(strings.TrimSpace(fields[4]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: elapsed_ns: %v", types.ErrInvalidCSV, err)
	}
	concurrent, err := strconv.Atoi(strings.TrimSpace(fields[5]))
	if err != nil {
		return nil, fmt.Errorf("%w: concurrent: %v", types.ErrInvalidCSV, err)
	}

	t := &Timer{
		id:         uuid.New(),
		task:       fields[1],
		label:      fields[2],
		clock:      types.NewRealClock(),
		status:     StatusStopped,
		started:    time.UnixMilli(startMs),
		elapsed:    time.Duration(ns),
		concurrent: concurrent,
	}
	if len(fields) >= csvFields {
		t.notes = ParseNotes(fields[6])
	}
	return t, nil
}
