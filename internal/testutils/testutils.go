// Package testutils provides stage and measurement fakes for tests
package testutils

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jzx17/gometer/pkg/types"
)

// Default timings for Eventually style assertions
const (
	WaitFor = 2 * time.Second
	Tick    = 5 * time.Millisecond
)

// ErrStage is returned by FailingStage
var ErrStage = errors.New("stage failed")

// Measurement is a minimal finished-or-not measurement
type Measurement struct {
	Task     string
	Seq      int
	Finished bool
}

// IsFinished implements types.Measurement
func (m *Measurement) IsFinished() bool {
	return m.Finished
}

// Finished returns a finished measurement for task with sequence number seq
func Finished(task string, seq int) *Measurement {
	return &Measurement{Task: task, Seq: seq, Finished: true}
}

// CountingStage counts processed measurements and resets
type CountingStage struct {
	name      string
	processed int64
	resets    int64
}

// NewCountingStage creates a counting stage
func NewCountingStage(name string) *CountingStage {
	return &CountingStage{name: name}
}

func (s *CountingStage) Name() string { return s.name }

func (s *CountingStage) Process(ctx context.Context, m types.Measurement) error {
	atomic.AddInt64(&s.processed, 1)
	return nil
}

func (s *CountingStage) Reset() {
	atomic.AddInt64(&s.resets, 1)
	atomic.StoreInt64(&s.processed, 0)
}

// Count returns the number of measurements processed since the last reset
func (s *CountingStage) Count() int {
	return int(atomic.LoadInt64(&s.processed))
}

// Resets returns the number of Reset calls
func (s *CountingStage) Resets() int {
	return int(atomic.LoadInt64(&s.resets))
}

// Log is shared by RecordingStages to observe cross-stage ordering
type Log struct {
	mu      sync.Mutex
	entries []string
}

// Add appends an entry
func (l *Log) Add(entry string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

// Entries returns a copy of the entries
func (l *Log) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

// RecordingStage keeps every measurement it sees, in order
type RecordingStage struct {
	name string
	log  *Log
	mu   sync.Mutex
	seen []types.Measurement
}

// NewRecordingStage creates a recording stage. log may be nil.
func NewRecordingStage(name string, log *Log) *RecordingStage {
	return &RecordingStage{name: name, log: log}
}

func (s *RecordingStage) Name() string { return s.name }

func (s *RecordingStage) Process(ctx context.Context, m types.Measurement) error {
	s.mu.Lock()
	s.seen = append(s.seen, m)
	s.mu.Unlock()
	if s.log != nil {
		s.log.Add("process:" + s.name)
	}
	return nil
}

func (s *RecordingStage) Reset() {
	if s.log != nil {
		s.log.Add("reset:" + s.name)
	}
}

// Seen returns a copy of the processed measurements
func (s *RecordingStage) Seen() []types.Measurement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Measurement(nil), s.seen...)
}

// FailingStage always returns ErrStage
type FailingStage struct {
	calls int64
}

func (s *FailingStage) Name() string { return "failing" }

func (s *FailingStage) Process(ctx context.Context, m types.Measurement) error {
	atomic.AddInt64(&s.calls, 1)
	return ErrStage
}

func (s *FailingStage) Reset() {}

// Calls returns the number of Process calls
func (s *FailingStage) Calls() int {
	return int(atomic.LoadInt64(&s.calls))
}

// PanicStage panics on every measurement
type PanicStage struct{}

func (PanicStage) Name() string { return "panicking" }

func (PanicStage) Process(ctx context.Context, m types.Measurement) error {
	panic("stage exploded")
}

func (PanicStage) Reset() {}

// BlockingStage blocks in Process until Release is called
type BlockingStage struct {
	Entered chan struct{}
	release chan struct{}
	once    sync.Once
}

// NewBlockingStage creates a blocking stage
func NewBlockingStage() *BlockingStage {
	return &BlockingStage{
		Entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (s *BlockingStage) Name() string { return "blocking" }

func (s *BlockingStage) Process(ctx context.Context, m types.Measurement) error {
	select {
	case s.Entered <- struct{}{}:
	default:
	}
	<-s.release
	return nil
}

func (s *BlockingStage) Reset() {}

// Release unblocks every current and future Process call
func (s *BlockingStage) Release() {
	s.once.Do(func() { close(s.release) })
}

// AssertEventually waits for condition to be true using the default timings
func AssertEventually(t testing.TB, condition func() bool, msgAndArgs ...interface{}) bool {
	return assert.Eventually(t, condition, WaitFor, Tick, msgAndArgs...)
}

// AssertNever checks condition stays false for d
func AssertNever(t testing.TB, condition func() bool, d time.Duration, msgAndArgs ...interface{}) bool {
	return assert.Never(t, condition, d, Tick, msgAndArgs...)
}
