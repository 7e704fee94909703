package tracker

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzx17/gometer/internal/testutils"
	"github.com/jzx17/gometer/pkg/pipeline"
	"github.com/jzx17/gometer/pkg/record"
	"github.com/jzx17/gometer/pkg/stage"
	"github.com/jzx17/gometer/pkg/types"
)

func newTestTracker(t *testing.T, opts ...Option) *Tracker {
	t.Helper()
	opts = append([]Option{WithPipelineOptions(
		pipeline.WithPolicy(types.TerminateManually),
		pipeline.WithExitHooks(pipeline.NewExitHooks()),
	)}, opts...)
	tr := New(opts...)
	t.Cleanup(tr.Pipeline().ShutdownDiscard)
	return tr
}

func shutdown(t *testing.T, tr *Tracker) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testutils.WaitFor)
	defer cancel()
	require.NoError(t, tr.Shutdown(ctx))
}

func TestTracker_Start(t *testing.T) {
	clock := testutils.NewClock(t)
	tr := newTestTracker(t, WithName("api"), WithClock(clock))

	tm := tr.Start("handler")
	require.True(t, tm.IsRunning())
	assert.False(t, tm.IsShell())
	assert.Equal(t, "api", tr.Name())
	assert.Equal(t, "api", tr.Pipeline().Name())

	clock.Advance(25 * time.Millisecond)
	assert.Equal(t, 25*time.Millisecond, tm.Stop())
}

func TestTracker_Disabled(t *testing.T) {
	tr := newTestTracker(t, WithDisabled(true), WithKeepList(true))
	counter := stage.NewCounter()
	_, err := tr.AddStage(counter)
	require.NoError(t, err)

	tm := tr.Start("handler")
	assert.True(t, tm.IsShell())
	assert.Zero(t, tm.Stop())
	assert.Empty(t, tr.Timers())
	assert.True(t, tr.Disabled())

	tr.SetDisabled(false)
	assert.False(t, tr.Start("handler").IsShell())

	shutdown(t, tr)
	assert.Zero(t, counter.Total())
}

func TestTracker_Levels(t *testing.T) {
	debug := NewThreshold("log", "debug", 0)
	info := NewThreshold("log", "info", 1)
	sql := NewCategory("area", "sql")
	http := NewCategory("area", "http")

	tr := newTestTracker(t, WithLevels(info, sql))

	assert.False(t, tr.Start("nil level").IsShell())
	assert.False(t, tr.StartLevel(info, "info").IsShell())
	assert.False(t, tr.StartLevel(debug, "debug").IsShell())
	assert.False(t, tr.StartLevel(sql, "sql").IsShell())
	assert.True(t, tr.StartLevel(http, "http").IsShell())

	assert.True(t, tr.DisableLevel(sql))
	assert.False(t, tr.DisableLevel(sql))
	assert.True(t, tr.StartLevel(sql, "sql").IsShell())

	old := tr.EnableLevel(debug)
	assert.Equal(t, info, old)
	assert.True(t, tr.StartLevel(info, "info").IsShell())

	tr.EnableLevels(http, sql)
	assert.True(t, tr.DisableLevels(http, NewCategory("x", "y")))
	assert.Equal(t, 2, tr.Levels().Len())

	tr.ClearLevels()
	assert.True(t, tr.StartLevel(debug, "debug").IsShell())
	assert.False(t, tr.Start("nil level").IsShell())
}

func TestTracker_KeepList(t *testing.T) {
	tr := newTestTracker(t)
	tr.Start("ignored")

	tr.SetKeepList(true)
	assert.True(t, tr.KeepList())
	a := tr.Start("a")
	b := tr.Start("b")

	timers := tr.Timers()
	require.Len(t, timers, 2)
	assert.Same(t, a, timers[0])
	assert.Same(t, b, timers[1])

	tr.Clear()
	assert.Empty(t, tr.Timers())
}

func TestTracker_Concurrent(t *testing.T) {
	tr := newTestTracker(t, WithTrackConcurrent(true))
	assert.True(t, tr.TrackConcurrent())

	first := tr.Start("io")
	second := tr.Start("io")
	other := tr.Start("cpu")

	assert.Equal(t, 1, first.Concurrent())
	assert.Equal(t, 2, second.Concurrent())
	assert.Equal(t, 1, other.Concurrent())
	assert.Equal(t, 2, tr.Concurrent("io"))

	second.Stop()
	assert.Equal(t, 1, tr.Concurrent("io"))
	third := tr.Start("io")
	assert.Equal(t, 2, third.Concurrent())

	tr.Clear()
	first.Stop()
	assert.Equal(t, 0, tr.Concurrent("io"))
	assert.Equal(t, 0, tr.Concurrent("missing"))

	tr.SetTrackConcurrent(false)
	assert.Zero(t, tr.Start("io").Concurrent())
}

func TestTracker_ConcurrentStress(t *testing.T) {
	tr := newTestTracker(t, WithTrackConcurrent(true))
	counter := stage.NewCounter()
	_, err := tr.AddStage(counter)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				tr.Start("io").Stop()
			}
		}()
	}
	wg.Wait()
	shutdown(t, tr)

	assert.Equal(t, 0, tr.Concurrent("io"))
	assert.Equal(t, 1000, counter.Count("io"))
}

func TestTracker_Recorder(t *testing.T) {
	var buf bytes.Buffer
	tr := newTestTracker(t, WithRecorder(record.NewWriter(&buf, types.FormatCSV)))

	tr.Start("io").Stop()
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))

	tr.SetRecorder(nil)
	assert.IsType(t, record.Null{}, tr.Recorder())
	tr.Start("io").Stop()
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}

func TestTracker_Pipeline(t *testing.T) {
	tr := newTestTracker(t, WithTrackConcurrent(true))

	// no stages: stopped timers are dropped
	tr.Start("io").Stop()
	assert.Equal(t, 0, tr.Pipeline().QueueLen())

	stats := stage.NewStatsStage()
	_, err := tr.AddStage(stats)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		tr.Start("io").Stop()
	}
	shutdown(t, tr)

	snap, ok := stats.Snapshot("io")
	require.True(t, ok)
	assert.Equal(t, int64(5), snap.Count)

	tr.Clear()
	_, ok = stats.Snapshot("io")
	assert.False(t, ok)

	tr.ClearStages()
	assert.False(t, tr.Pipeline().HasStages())
}

func TestTracker_ShutdownClosesRecorder(t *testing.T) {
	target := record.NewWriter(failingWriter{}, types.FormatText)
	tr := newTestTracker(t, WithRecorder(target))

	tr.Start("io").Stop()

	ctx, cancel := context.WithTimeout(context.Background(), testutils.WaitFor)
	defer cancel()
	err := tr.Shutdown(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed pipe")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errClosedPipe }

func TestTracker_AdoptStages(t *testing.T) {
	counter := stage.NewCounter()
	stats := stage.NewStatsStage()
	from := pipeline.New(pipeline.WithPolicy(types.TerminateManually))
	_, err := from.AddStage(counter)
	require.NoError(t, err)
	_, err = from.AddStage(stats)
	require.NoError(t, err)
	t.Cleanup(from.ShutdownDiscard)

	tr := newTestTracker(t)
	require.NoError(t, tr.AdoptStages(from))
	require.NoError(t, tr.AdoptStages(nil))

	stages := tr.Pipeline().Stages()
	require.Len(t, stages, 2)
	assert.Same(t, counter, stages[0].Stage())
	assert.Same(t, stats, stages[1].Stage())
	assert.Len(t, from.Stages(), 2)

	tr.Start("adopted").Stop()
	shutdown(t, tr)
	assert.Equal(t, 1, counter.Count("adopted"))
}

func TestDefault(t *testing.T) {
	custom := newTestTracker(t, WithName("custom"))
	prev := SetDefault(custom)
	t.Cleanup(func() { SetDefault(prev) })

	assert.Same(t, custom, Default())
	tm := Start("global")
	assert.True(t, tm.IsRunning())
	assert.True(t, StartLevel(NewCategory("area", "sql"), "filtered").IsShell())

	SetDefault(nil)
	created := Default()
	assert.Equal(t, "default", created.Name())
	assert.Same(t, created, Default())
}
