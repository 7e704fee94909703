// Package types defines error types
package types

import (
	"errors"
	"fmt"
)

// Predefined errors
var (
	// ErrNilStage indicates a nil stage was registered
	ErrNilStage = errors.New("stage cannot be nil")

	// ErrNilPublisher indicates a publisher stage was built without a publisher
	ErrNilPublisher = errors.New("publisher cannot be nil")

	// ErrNilRecorder indicates a recorder stage was built without a recorder
	ErrNilRecorder = errors.New("recorder cannot be nil")

	// ErrTimerNotStarted indicates a timer value was read before Start
	ErrTimerNotStarted = errors.New("timer has not been started")

	// ErrTimerNotStopped indicates a stop value was read before Stop
	ErrTimerNotStopped = errors.New("timer has not been stopped")

	// ErrTaskMismatch indicates statistics were fed a measurement of another task
	ErrTaskMismatch = errors.New("measurement belongs to a different task")

	// ErrOddNotes indicates keyed notes were not given as key/value pairs
	ErrOddNotes = errors.New("keyed notes must be key/value pairs")

	// ErrNotKeyed indicates keyed access on plain notes
	ErrNotKeyed = errors.New("notes are not keyed")

	// ErrInvalidCSV indicates a CSV row could not be parsed
	ErrInvalidCSV = errors.New("invalid csv row")

	// ErrUnsupportedMeasurement indicates a stage was handed a measurement type it cannot process
	ErrUnsupportedMeasurement = errors.New("unsupported measurement")

	// ErrInvalidConfig indicates a configuration value could not be parsed
	ErrInvalidConfig = errors.New("invalid configuration")
)

// StageError represents a failure of one stage while processing one measurement
type StageError struct {
	// Stage is the name of the failing stage
	Stage string

	// Measurement is the measurement being processed
	Measurement Measurement

	// Cause is the underlying error
	Cause error

	// Context contains error context information
	Context map[string]interface{}
}

// Error implements the error interface
func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Cause)
}

// Unwrap returns the underlying error
func (e *StageError) Unwrap() error {
	return e.Cause
}

// Is checks if the error is a specific error
func (e *StageError) Is(target error) bool {
	return errors.Is(e.Cause, target)
}

// NewStageError creates a new stage error
func NewStageError(stage string, m Measurement, cause error) *StageError {
	return &StageError{
		Stage:       stage,
		Measurement: m,
		Cause:       cause,
		Context:     make(map[string]interface{}),
	}
}

// WithContext adds error context
func (e *StageError) WithContext(key string, value interface{}) *StageError {
	e.Context[key] = value
	return e
}
