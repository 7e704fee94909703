// Package types defines core interfaces and types for the gometer library
package types

import (
	"context"
	"fmt"
	"strings"
)

// Measurement is a completed (or in-flight) timing record.
// The pipeline only ever asks whether it is finished; it never reads or
// mutates any other field. Identity is the identity of the value itself.
type Measurement interface {
	// IsFinished reports whether the measurement has been stopped
	IsFinished() bool
}

// Stage is a single unit of post-completion processing
type Stage interface {
	// Process handles one finished measurement
	Process(ctx context.Context, m Measurement) error

	// Reset clears any state accumulated by Process
	Reset()
}

// Named is implemented by stages that want a readable name in logs and metrics
type Named interface {
	Name() string
}

// StageName returns a printable name for a stage
func StageName(s Stage) string {
	if n, ok := s.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", s)
}

// ShutdownPolicy defines what happens to queued work when the host process terminates
type ShutdownPolicy int

const (
	// TerminateAfterCompletion drains the queue when the host runs its exit hooks
	TerminateAfterCompletion ShutdownPolicy = iota
	// TerminateImmediately does nothing at exit; queued work may be lost
	TerminateImmediately
	// TerminateManually leaves draining to the owner of the pipeline
	TerminateManually
)

// String returns the string representation of ShutdownPolicy
func (p ShutdownPolicy) String() string {
	switch p {
	case TerminateAfterCompletion:
		return "after-completion"
	case TerminateImmediately:
		return "immediately"
	case TerminateManually:
		return "manually"
	default:
		return "unknown"
	}
}

// ParseShutdownPolicy parses the String form of a policy
func ParseShutdownPolicy(s string) (ShutdownPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "after-completion", "after_completion", "aftercompletion":
		return TerminateAfterCompletion, nil
	case "immediately", "immediate":
		return TerminateImmediately, nil
	case "manually", "manual":
		return TerminateManually, nil
	default:
		return TerminateAfterCompletion, fmt.Errorf("%w: shutdown policy %q", ErrInvalidConfig, s)
	}
}

// Decode implements envconfig.Decoder
func (p *ShutdownPolicy) Decode(value string) error {
	parsed, err := ParseShutdownPolicy(value)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// RecordFormat selects how a measurement is rendered by recorders
type RecordFormat int

const (
	// FormatText renders a human readable line
	FormatText RecordFormat = iota
	// FormatCSV renders one CSV row
	FormatCSV
	// FormatNone renders nothing
	FormatNone
)

// String returns the string representation of RecordFormat
func (f RecordFormat) String() string {
	switch f {
	case FormatText:
		return "text"
	case FormatCSV:
		return "csv"
	case FormatNone:
		return "none"
	default:
		return "unknown"
	}
}

// Decode implements envconfig.Decoder
func (f *RecordFormat) Decode(value string) error {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "text":
		*f = FormatText
	case "csv":
		*f = FormatCSV
	case "none":
		*f = FormatNone
	default:
		return fmt.Errorf("%w: record format %q", ErrInvalidConfig, value)
	}
	return nil
}

// Option defines a configuration option function
type Option[T any] func(T)
