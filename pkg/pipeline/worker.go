package pipeline

import (
	"sync"
	"sync/atomic"
)

// WorkerState defines the state of the pipeline worker
type WorkerState int32

const (
	// WorkerNotStarted represents a pipeline that has never had a stage
	WorkerNotStarted WorkerState = iota
	// WorkerRunning represents a worker consuming the queue
	WorkerRunning
	// WorkerStopped represents a worker that has exited
	WorkerStopped
)

// String returns the string representation of WorkerState
func (ws WorkerState) String() string {
	switch ws {
	case WorkerNotStarted:
		return "not-started"
	case WorkerRunning:
		return "running"
	case WorkerStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// worker is one incarnation of the consumer goroutine.
// A pipeline replaces its worker when it is re-armed after a stop.
type worker struct {
	id    uint64
	state int32 // atomic state
	quit  chan struct{}
	done  chan struct{}

	drainRequested atomic.Bool
	quitOnce       sync.Once
}

func newWorker(id uint64) *worker {
	return &worker{
		id:    id,
		state: int32(WorkerRunning),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// State returns the current worker state
func (w *worker) State() WorkerState {
	return WorkerState(atomic.LoadInt32(&w.state))
}

// live reports whether the worker still accepts work
func (w *worker) live() bool {
	if w.State() != WorkerRunning {
		return false
	}
	select {
	case <-w.quit:
		return false
	default:
		return true
	}
}

// stop asks the worker to exit without draining
func (w *worker) stop() {
	w.quitOnce.Do(func() { close(w.quit) })
}

// finish marks the worker stopped and releases waiters
func (w *worker) finish() {
	atomic.StoreInt32(&w.state, int32(WorkerStopped))
	close(w.done)
}
