// Package config loads gometer settings from the environment
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	errs "github.com/jzx17/gometer/internal/errors"
	"github.com/jzx17/gometer/internal/logging"
	"github.com/jzx17/gometer/pkg/pipeline"
	"github.com/jzx17/gometer/pkg/record"
	"github.com/jzx17/gometer/pkg/tracker"
	"github.com/jzx17/gometer/pkg/types"
)

// Prefix is prepended to every environment variable
const Prefix = "GOMETER"

// Config holds all gometer configuration. The fields are flat so every
// variable is GOMETER_<name>.
type Config struct {
	ShutdownPolicy  types.ShutdownPolicy `envconfig:"SHUTDOWN_POLICY" default:"after-completion"`
	FailureStrategy errs.Strategy        `envconfig:"FAILURE_STRATEGY" default:"continue-on-error"`

	RecordFormat    types.RecordFormat `envconfig:"RECORD_FORMAT" default:"none"`
	TrackConcurrent bool               `envconfig:"TRACK_CONCURRENT" default:"false"`
	KeepList        bool               `envconfig:"KEEP_LIST" default:"false"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogDev   bool   `envconfig:"LOG_DEV" default:"false"`

	MetricsNamespace string `envconfig:"METRICS_NAMESPACE" default:"gometer"`
}

// Load loads configuration from GOMETER_* environment variables
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from the environment or returns Default
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		ShutdownPolicy:   types.TerminateAfterCompletion,
		FailureStrategy:  errs.ContinueOnErrorStrategy,
		RecordFormat:     types.FormatNone,
		LogLevel:         "info",
		MetricsNamespace: "gometer",
	}
}

// Logger builds the configured zap logger
func (c *Config) Logger() (*zap.Logger, error) {
	lc := logging.DefaultConfig()
	lc.Level = c.LogLevel
	lc.Development = c.LogDev
	return logging.New(lc)
}

// NewMetrics registers pipeline metrics with reg under the configured namespace
func (c *Config) NewMetrics(reg prometheus.Registerer) *pipeline.Metrics {
	return pipeline.NewMetrics(reg, c.MetricsNamespace)
}

// PipelineOptions translates the pipeline settings. logger and metrics may be nil.
func (c *Config) PipelineOptions(logger *zap.Logger, metrics *pipeline.Metrics) []pipeline.Option {
	opts := []pipeline.Option{
		pipeline.WithPolicy(c.ShutdownPolicy),
		pipeline.WithFailureStrategy(c.FailureStrategy),
		pipeline.WithLogger(logger),
	}
	if metrics != nil {
		opts = append(opts, pipeline.WithMetrics(metrics))
	}
	return opts
}

// TrackerOptions translates the tracker settings. A record format other than
// none gives new timers a console recorder.
func (c *Config) TrackerOptions(logger *zap.Logger, metrics *pipeline.Metrics) []tracker.Option {
	opts := []tracker.Option{
		tracker.WithLogger(logger),
		tracker.WithKeepList(c.KeepList),
		tracker.WithTrackConcurrent(c.TrackConcurrent),
		tracker.WithPipelineOptions(c.PipelineOptions(logger, metrics)...),
	}
	if c.RecordFormat != types.FormatNone {
		opts = append(opts, tracker.WithRecorder(record.NewConsole(c.RecordFormat)))
	}
	return opts
}
