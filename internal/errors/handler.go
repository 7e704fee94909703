// Package errors decides what the pipeline worker does when a stage fails
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jzx17/gometer/pkg/types"
)

// Failure describes one stage failing on one measurement
type Failure struct {
	Err         *types.StageError
	Pipeline    string
	Stage       string
	Measurement types.Measurement
	At          time.Time
}

// NewFailure describes err as seen by the named pipeline at time at
func NewFailure(pipeline string, err *types.StageError, at time.Time) *Failure {
	return &Failure{
		Err:         err,
		Pipeline:    pipeline,
		Stage:       err.Stage,
		Measurement: err.Measurement,
		At:          at,
	}
}

// Panicked reports whether the stage panicked rather than returning an error
func (f *Failure) Panicked() bool {
	_, ok := f.Err.Context["stack_trace"]
	return ok
}

func (f *Failure) fields() []zap.Field {
	return []zap.Field{
		zap.String("pipeline", f.Pipeline),
		zap.String("stage", f.Stage),
		zap.Bool("panicked", f.Panicked()),
		zap.Error(f.Err.Cause),
	}
}

// ErrorHandler decides what happens after a stage fails. Returning nil lets
// the remaining stages run; returning an error skips the rest of the chain
// for that measurement. The worker keeps running either way.
type ErrorHandler interface {
	HandleError(ctx context.Context, f *Failure) error
	Name() string
}

// Strategy names a built-in handler
type Strategy int

const (
	// ContinueOnErrorStrategy logs the failure and runs the remaining stages
	ContinueOnErrorStrategy Strategy = iota
	// FailFastStrategy skips the remaining stages for the failed measurement
	FailFastStrategy
)

// String returns the strategy name accepted by Decode
func (s Strategy) String() string {
	switch s {
	case FailFastStrategy:
		return "fail-fast"
	case ContinueOnErrorStrategy:
		return "continue-on-error"
	default:
		return "unknown"
	}
}

// Decode implements envconfig.Decoder
func (s *Strategy) Decode(value string) error {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "continue", "continueonerror", "continue-on-error":
		*s = ContinueOnErrorStrategy
	case "failfast", "fail-fast":
		*s = FailFastStrategy
	default:
		return fmt.Errorf("%w: failure strategy %q", types.ErrInvalidConfig, value)
	}
	return nil
}

// NewHandler builds the handler for a strategy
func NewHandler(s Strategy, logger *zap.Logger) ErrorHandler {
	if s == FailFastStrategy {
		return NewFailFastHandler(logger)
	}
	return NewContinueOnErrorHandler(logger)
}

// FailFastHandler stops the chain for the measurement that failed
type FailFastHandler struct {
	logger *zap.Logger
}

// NewFailFastHandler creates a fail-fast handler; a nil logger logs nothing
func NewFailFastHandler(logger *zap.Logger) *FailFastHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FailFastHandler{logger: logger}
}

// HandleError logs f and returns its error so the chain stops
func (h *FailFastHandler) HandleError(_ context.Context, f *Failure) error {
	h.logger.Warn("stage failed, skipping remaining stages", f.fields()...)
	return f.Err
}

// Name returns "fail-fast"
func (h *FailFastHandler) Name() string { return FailFastStrategy.String() }

// ContinueOnErrorHandler logs failures and lets the chain continue
type ContinueOnErrorHandler struct {
	logger *zap.Logger
}

// NewContinueOnErrorHandler creates a continue-on-error handler; a nil logger logs nothing
func NewContinueOnErrorHandler(logger *zap.Logger) *ContinueOnErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContinueOnErrorHandler{logger: logger}
}

// HandleError logs f and returns nil so the chain continues
func (h *ContinueOnErrorHandler) HandleError(_ context.Context, f *Failure) error {
	h.logger.Warn("stage failed", f.fields()...)
	return nil
}

// Name returns "continue-on-error"
func (h *ContinueOnErrorHandler) Name() string { return ContinueOnErrorStrategy.String() }

type errorRoute struct {
	target  error
	handler ErrorHandler
}

// HandlerRegistry picks a handler per failure. A route for the failing stage
// wins, then the first error route whose target matches the cause, then the
// default handler.
type HandlerRegistry struct {
	mu             sync.RWMutex
	handlers       map[string]ErrorHandler
	stageRoutes    map[string]ErrorHandler
	errorRoutes    []errorRoute
	defaultHandler ErrorHandler
}

// NewHandlerRegistry creates a registry whose default is def, or
// continue-on-error when def is nil
func NewHandlerRegistry(def ErrorHandler) *HandlerRegistry {
	if def == nil {
		def = NewContinueOnErrorHandler(nil)
	}
	return &HandlerRegistry{
		handlers:       map[string]ErrorHandler{def.Name(): def},
		stageRoutes:    make(map[string]ErrorHandler),
		defaultHandler: def,
	}
}

// Register makes handler available to routes under its name
func (r *HandlerRegistry) Register(handler ErrorHandler) error {
	if handler == nil {
		return errors.New("cannot register nil handler")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[handler.Name()]; exists {
		return fmt.Errorf("handler %q already registered", handler.Name())
	}
	r.handlers[handler.Name()] = handler
	return nil
}

// SetDefault replaces the handler used when no route matches
func (r *HandlerRegistry) SetDefault(handler ErrorHandler) error {
	if handler == nil {
		return errors.New("cannot set nil default handler")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultHandler = handler
	r.handlers[handler.Name()] = handler
	return nil
}

// RouteStage sends failures of the named stage to a registered handler
func (r *HandlerRegistry) RouteStage(stage, handlerName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	handler, ok := r.handlers[handlerName]
	if !ok {
		return fmt.Errorf("handler %q not registered", handlerName)
	}
	r.stageRoutes[stage] = handler
	return nil
}

// RouteError sends failures whose cause matches target under errors.Is to a
// registered handler. Routes are tried in the order they were added.
func (r *HandlerRegistry) RouteError(target error, handlerName string) error {
	if target == nil {
		return errors.New("cannot route nil error")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	handler, ok := r.handlers[handlerName]
	if !ok {
		return fmt.Errorf("handler %q not registered", handlerName)
	}
	r.errorRoutes = append(r.errorRoutes, errorRoute{target: target, handler: handler})
	return nil
}

// HandlerFor returns the handler chosen for f
func (r *HandlerRegistry) HandlerFor(f *Failure) ErrorHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if handler, ok := r.stageRoutes[f.Stage]; ok {
		return handler
	}
	for _, route := range r.errorRoutes {
		if errors.Is(f.Err, route.target) {
			return route.handler
		}
	}
	return r.defaultHandler
}

// Handle dispatches f to the handler chosen for it
func (r *HandlerRegistry) Handle(ctx context.Context, f *Failure) error {
	return r.HandlerFor(f).HandleError(ctx, f)
}
