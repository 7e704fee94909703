// Package pipeline provides the asynchronous completion-processing pipeline.
//
// Producers call Submit from any goroutine when a measurement finishes. A
// single worker goroutine per Pipeline takes measurements off an unbounded
// FIFO queue and runs the stage chain over each one. Submit never runs a stage
// and never blocks beyond appending to the queue.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	errs "github.com/jzx17/gometer/internal/errors"
	"github.com/jzx17/gometer/pkg/chain"
	"github.com/jzx17/gometer/pkg/types"
)

// Option configures a Pipeline
type Option = types.Option[*Pipeline]

// Pipeline owns the queue, the worker and the stage chain
type Pipeline struct {
	// configuration, immutable after New
	name     string
	policy   types.ShutdownPolicy
	logger   *zap.Logger
	metrics  *Metrics
	errors   *errs.HandlerRegistry
	handler  errs.ErrorHandler
	strategy errs.Strategy
	hooks    *ExitHooks
	clock    types.Clock
	stageCtx context.Context

	// mu serializes establishing the chain and replacing the worker
	mu       sync.Mutex
	root     atomic.Pointer[chain.Node]
	worker   atomic.Pointer[worker]
	workerID uint64

	queue *queue
}

// New creates a pipeline with an empty chain. The worker starts with the first stage.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		name:     "pipeline-" + uuid.NewString()[:8],
		policy:   types.TerminateAfterCompletion,
		logger:   zap.NewNop(),
		clock:    types.NewRealClock(),
		stageCtx: context.Background(),
		queue:    newQueue(),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.errors == nil {
		handler := p.handler
		if handler == nil {
			handler = errs.NewHandler(p.strategy, p.logger)
		}
		p.errors = errs.NewHandlerRegistry(handler)
	}
	if p.hooks == nil {
		p.hooks = DefaultExitHooks
	}
	p.logger = p.logger.With(zap.String("pipeline", p.name))

	return p
}

// NewWithStage creates a pipeline whose chain starts with stage and starts its worker
func NewWithStage(stage types.Stage, opts ...Option) (*Pipeline, *chain.Node, error) {
	n, err := chain.NewNode(stage)
	if err != nil {
		return nil, nil, err
	}
	p := New(opts...)
	return p, p.AddNode(n), nil
}

// WithName sets the name used in logs and metric labels
func WithName(name string) Option {
	return func(p *Pipeline) {
		if name != "" {
			p.name = name
		}
	}
}

// WithPolicy sets the shutdown policy
func WithPolicy(policy types.ShutdownPolicy) Option {
	return func(p *Pipeline) {
		p.policy = policy
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics enables Prometheus metrics
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithErrorHandler sets the default handler for stage failures
func WithErrorHandler(handler errs.ErrorHandler) Option {
	return func(p *Pipeline) {
		p.handler = handler
	}
}

// WithHandlerRegistry routes stage failures through a caller-built registry
func WithHandlerRegistry(registry *errs.HandlerRegistry) Option {
	return func(p *Pipeline) {
		p.errors = registry
	}
}

// WithFailureStrategy picks one of the built-in stage failure handlers
func WithFailureStrategy(s errs.Strategy) Option {
	return func(p *Pipeline) {
		p.strategy = s
	}
}

// WithExitHooks registers TerminateAfterCompletion pipelines with hooks instead of DefaultExitHooks
func WithExitHooks(hooks *ExitHooks) Option {
	return func(p *Pipeline) {
		p.hooks = hooks
	}
}

// WithClock sets the clock used to time dispatches
func WithClock(clock types.Clock) Option {
	return func(p *Pipeline) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithStageContext sets the context handed to every stage
func WithStageContext(ctx context.Context) Option {
	return func(p *Pipeline) {
		if ctx != nil {
			p.stageCtx = ctx
		}
	}
}

// Name returns the pipeline name
func (p *Pipeline) Name() string {
	return p.name
}

// Policy returns the shutdown policy
func (p *Pipeline) Policy() types.ShutdownPolicy {
	return p.policy
}

// Submit queues m for the worker if the chain is non-empty and m is finished.
// Anything else is silently dropped. It reports whether m was queued.
func (p *Pipeline) Submit(m types.Measurement) bool {
	if m == nil || !m.IsFinished() || !p.queue.pushIf(message{kind: kindMeasurement, measurement: m}, p.HasStages) {
		p.metrics.dropped(p.name)
		return false
	}

	p.metrics.submitted(p.name, p.queue.len())
	return true
}

// AddStage wraps stage in a node and links it into the chain.
// The first stage of an empty chain becomes the root. A worker is started
// if none is alive.
func (p *Pipeline) AddStage(stage types.Stage) (*chain.Node, error) {
	n, err := chain.NewNode(stage)
	if err != nil {
		return nil, err
	}
	return p.AddNode(n), nil
}

// AddNode links a caller-built node into the chain. See chain.Node.AddStage
// for the cases in which linking is refused.
func (p *Pipeline) AddNode(n *chain.Node) *chain.Node {
	if n == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	added := n
	if root := p.root.Load(); root == nil {
		p.root.Store(n)
	} else {
		added = root.AddStage(n)
	}

	p.ensureWorkerLocked()
	return added
}

// Stages returns the chain in link order
func (p *Pipeline) Stages() []*chain.Node {
	root := p.root.Load()
	if root == nil {
		return nil
	}
	return root.Nodes()
}

// HasStages reports whether the chain is non-empty
func (p *Pipeline) HasStages() bool {
	return p.root.Load() != nil
}

// ClearStages stops the worker, discarding queued measurements, and empties the chain.
// A later AddStage builds a fresh chain and worker.
func (p *Pipeline) ClearStages() {
	p.mu.Lock()
	p.discardLocked(func() { p.root.Store(nil) })
	p.mu.Unlock()

	p.logger.Debug("stages cleared")
}

// ResetAll resets every stage in link order. Queued measurements are untouched.
func (p *Pipeline) ResetAll() {
	if root := p.root.Load(); root != nil {
		root.ResetAll()
	}
}

// ShutdownDrain asks the worker to stop once everything queued so far has
// been dispatched. It does not block. Without a live worker it does nothing.
func (p *Pipeline) ShutdownDrain() {
	p.mu.Lock()
	defer p.mu.Unlock()

	w := p.worker.Load()
	if w == nil || !w.live() || !w.drainRequested.CompareAndSwap(false, true) {
		return
	}
	p.queue.push(drainMessage)
	p.logger.Debug("drain requested", zap.Int("queued", p.queue.len()))
}

// ShutdownDiscard stops the worker without processing what is queued.
// A measurement already being dispatched finishes first.
func (p *Pipeline) ShutdownDiscard() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.discardLocked(nil)
}

// discardLocked stops the worker and purges the queue. then runs while the
// queue is still locked. Callers hold p.mu.
func (p *Pipeline) discardLocked(then func()) {
	if w := p.worker.Load(); w != nil {
		w.stop()
	}
	if lost := p.queue.purgeThen(then); lost > 0 {
		p.metrics.discarded(p.name, lost)
		p.logger.Info("discarded queued measurements", zap.Int("count", lost))
	}
}

// Wait blocks until the current worker has stopped or ctx ends
func (p *Pipeline) Wait(ctx context.Context) error {
	w := p.worker.Load()
	if w == nil {
		return nil
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown drains the pipeline and waits for the worker to stop
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.ShutdownDrain()
	return p.Wait(ctx)
}

// State returns the state of the current worker
func (p *Pipeline) State() WorkerState {
	w := p.worker.Load()
	if w == nil {
		return WorkerNotStarted
	}
	return w.State()
}

// QueueLen returns the number of queued messages
func (p *Pipeline) QueueLen() int {
	return p.queue.len()
}

// ensureWorkerLocked starts a worker unless one is alive. Caller holds p.mu.
func (p *Pipeline) ensureWorkerLocked() {
	prev := p.worker.Load()
	if prev != nil && prev.live() {
		return
	}

	p.workerID++
	w := newWorker(p.workerID)
	p.worker.Store(w)

	if p.policy == types.TerminateAfterCompletion && p.hooks != nil {
		p.hooks.register(p)
	}
	p.metrics.workerRunning(p.name, true)
	p.logger.Debug("worker started",
		zap.Uint64("worker", w.id),
		zap.Stringer("policy", p.policy))

	go func() {
		// a discarded worker may still be finishing its last dispatch
		if prev != nil {
			<-prev.done
		}
		p.run(w)
	}()
}

// run is the worker loop
func (p *Pipeline) run(w *worker) {
	defer p.finish(w)

	for {
		msg, ok := p.queue.pop(w.quit)
		if !ok {
			p.logger.Debug("worker discarded", zap.Uint64("worker", w.id))
			return
		}
		if msg.kind == kindDrain {
			p.logger.Debug("worker drained", zap.Uint64("worker", w.id))
			return
		}

		root := p.root.Load()
		if root == nil {
			continue
		}

		start := p.clock.Now()
		root.Dispatch(p.stageCtx, msg.measurement, p.onStageError)
		p.metrics.dispatched(p.name, p.queue.len(), p.clock.Since(start))
	}
}

// finish runs when the worker loop exits
func (p *Pipeline) finish(w *worker) {
	p.mu.Lock()
	if p.worker.Load() == w {
		if p.hooks != nil {
			p.hooks.unregister(p)
		}
		p.metrics.workerRunning(p.name, false)
	}
	p.mu.Unlock()

	w.finish()
}

// onStageError routes a stage failure to the configured handler. A handler
// that panics skips the rest of the chain for the measurement.
func (p *Pipeline) onStageError(err *types.StageError) (result error) {
	p.metrics.stageFailed(p.name, err.Stage)

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("error handler panicked, skipping remaining stages",
				zap.String("pipeline", p.name),
				zap.String("stage", err.Stage),
				zap.Any("panic", r),
				zap.Error(err.Cause))
			result = fmt.Errorf("error handler panicked on %w: %v", err, r)
		}
	}()

	return p.errors.Handle(p.stageCtx, errs.NewFailure(p.name, err, p.clock.Now()))
}
