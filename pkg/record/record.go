// Package record provides sinks that persist stopped timers
package record

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jzx17/gometer/pkg/timer"
	"github.com/jzx17/gometer/pkg/types"
)

// Recorder persists stopped timers
type Recorder interface {
	timer.Recorder
	// Close flushes and releases the recorder
	Close() error
}

// Null discards every timer
type Null struct{}

func (Null) Record(*timer.Timer) {}

func (Null) Close() error { return nil }

// Writer writes one line per timer in text or CSV form.
// Write errors are collected and returned by Close.
type Writer struct {
	mu     sync.Mutex
	w      io.Writer
	format types.RecordFormat
	errs   error
}

// NewWriter creates a recorder writing to w. Close does not close w.
func NewWriter(w io.Writer, format types.RecordFormat) *Writer {
	return &Writer{w: w, format: format}
}

// NewConsole creates a recorder writing to standard output
func NewConsole(format types.RecordFormat) *Writer {
	return NewWriter(os.Stdout, format)
}

// Format returns the line format
func (r *Writer) Format() types.RecordFormat {
	return r.format
}

// Record writes t
func (r *Writer) Record(t *timer.Timer) {
	var line string
	switch r.format {
	case types.FormatText:
		line = t.String()
	case types.FormatCSV:
		line = t.CSV()
	default:
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := fmt.Fprintln(r.w, line); err != nil {
		r.errs = multierr.Append(r.errs, err)
	}
}

// WriteHeader writes the CSV header row. Text writers ignore it.
func (r *Writer) WriteHeader() error {
	if r.format != types.FormatCSV {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := fmt.Fprintln(r.w, timer.CSVHeader)
	return err
}

// Close returns the write errors seen so far
func (r *Writer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errs
}

// File is a buffered Writer over a file it owns
type File struct {
	*Writer
	buf  *bufio.Writer
	file *os.File
	once sync.Once
}

// NewFile creates or truncates path and records into it
func NewFile(path string, format types.RecordFormat) (*File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create record file: %w", err)
	}
	buf := bufio.NewWriter(f)
	return &File{
		Writer: NewWriter(buf, format),
		buf:    buf,
		file:   f,
	}, nil
}

// Close flushes buffered lines and closes the file
func (r *File) Close() error {
	var err error
	r.once.Do(func() {
		r.mu.Lock()
		flushErr := r.buf.Flush()
		r.mu.Unlock()

		err = multierr.Combine(r.Writer.Close(), flushErr, r.file.Close())
	})
	return err
}

// Zap logs each timer as a structured entry
type Zap struct {
	logger *zap.Logger
	level  zapcore.Level
}

// NewZap creates a recorder logging at level
func NewZap(logger *zap.Logger, level zapcore.Level) *Zap {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Zap{logger: logger, level: level}
}

// Record logs t
func (r *Zap) Record(t *timer.Timer) {
	ce := r.logger.Check(r.level, "timer stopped")
	if ce == nil {
		return
	}

	elapsed, _ := t.Elapsed()
	fields := []zap.Field{
		zap.String("task", t.Task()),
		zap.Stringer("id", t.ID()),
		zap.Duration("elapsed", elapsed),
		zap.Int("concurrent", t.Concurrent()),
	}
	if label := t.Label(); label != "" {
		fields = append(fields, zap.String("label", label))
	}
	if notes := t.Notes(); notes != nil && notes.Len() > 0 {
		fields = append(fields, zap.Stringer("notes", notes))
	}
	ce.Write(fields...)
}

// Close syncs the logger
func (r *Zap) Close() error {
	// stdout and stderr return EINVAL on Sync on some platforms
	_ = r.logger.Sync()
	return nil
}

// Tee fans each timer out to several recorders
type Tee []Recorder

// Record calls every recorder in order
func (t Tee) Record(tm *timer.Timer) {
	for _, r := range t {
		r.Record(tm)
	}
}

// Close closes every recorder and combines their errors
func (t Tee) Close() error {
	var errs error
	for _, r := range t {
		errs = multierr.Append(errs, r.Close())
	}
	return errs
}
