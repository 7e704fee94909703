package pipeline

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/multierr"
)

// ExitHooks tracks pipelines created with TerminateAfterCompletion.
// Go has no process-exit hook, so the host application calls Run (or
// RunOnSignal) during its own orderly shutdown. A host that never does gets
// TerminateManually behavior.
type ExitHooks struct {
	mu        sync.Mutex
	pipelines map[*Pipeline]struct{}
}

// NewExitHooks creates an empty hook registry
func NewExitHooks() *ExitHooks {
	return &ExitHooks{pipelines: make(map[*Pipeline]struct{})}
}

// DefaultExitHooks is used by pipelines that are not given their own registry
var DefaultExitHooks = NewExitHooks()

// RunExitHooks drains every pipeline registered with DefaultExitHooks
func RunExitHooks(ctx context.Context) error {
	return DefaultExitHooks.Run(ctx)
}

func (h *ExitHooks) register(p *Pipeline) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pipelines[p] = struct{}{}
}

func (h *ExitHooks) unregister(p *Pipeline) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.pipelines, p)
}

// Len returns the number of registered pipelines
func (h *ExitHooks) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pipelines)
}

// Run requests a drain on every registered pipeline, then waits for each
// worker to stop or for ctx to end.
func (h *ExitHooks) Run(ctx context.Context) error {
	h.mu.Lock()
	pipelines := make([]*Pipeline, 0, len(h.pipelines))
	for p := range h.pipelines {
		pipelines = append(pipelines, p)
	}
	h.mu.Unlock()

	for _, p := range pipelines {
		p.ShutdownDrain()
	}

	var errs error
	for _, p := range pipelines {
		if err := p.Wait(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("pipeline %s: %w", p.Name(), err))
		}
	}
	return errs
}

// RunOnSignal blocks until one of sigs arrives (SIGINT and SIGTERM when none
// are given) and then runs the hooks. It returns ctx.Err() if ctx ends first.
func (h *ExitHooks) RunOnSignal(ctx context.Context, sigs ...os.Signal) error {
	if len(sigs) == 0 {
		sigs = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	sigCtx, stop := signal.NotifyContext(ctx, sigs...)
	defer stop()

	<-sigCtx.Done()
	if err := ctx.Err(); err != nil {
		return err
	}
	return h.Run(ctx)
}
