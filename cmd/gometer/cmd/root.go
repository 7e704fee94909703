// Package cmd implements the gometer command line
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jzx17/gometer/pkg/config"
)

var (
	logLevel     string
	recordFormat string

	cfg    *config.Config
	logger = zap.NewNop()
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "gometer",
	Short: "Measure task timings through a measurement pipeline",
	Long: `gometer starts timers for named tasks, pushes every stopped timer through an
asynchronous stage pipeline and reports per-task statistics.

Settings are read from GOMETER_* environment variables; flags override them.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error (default from GOMETER_LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&recordFormat, "record", "", "echo every stopped timer: text, csv or none (default from GOMETER_RECORD_FORMAT)")
}

// loadConfig reads the environment then applies flag overrides
func loadConfig(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load()
	if err != nil {
		return err
	}
	if logLevel != "" {
		loaded.LogLevel = logLevel
	}
	if recordFormat != "" {
		if err := loaded.RecordFormat.Decode(recordFormat); err != nil {
			return fmt.Errorf("invalid --record: %w", err)
		}
	}

	l, err := loaded.Logger()
	if err != nil {
		return err
	}
	cfg, logger = loaded, l
	return nil
}
