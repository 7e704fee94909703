package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/jzx17/gometer/pkg/pipeline"
	"github.com/jzx17/gometer/pkg/stage"
	"github.com/jzx17/gometer/pkg/timer"
	"github.com/jzx17/gometer/pkg/types"
)

var reportStrict bool

var reportCmd = &cobra.Command{
	Use:   "report FILE...",
	Short: "Summarise timers from CSV records",
	Long: `report reads timer CSV records, such as those written by "run --csv" or
GOMETER_RECORD_FORMAT=csv, and prints per-task statistics.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return report(cmd.Context(), logger, args, reportStrict, cmd.OutOrStdout())
	},
}

func init() {
	reportCmd.Flags().BoolVar(&reportStrict, "strict", false, "fail on the first malformed row instead of skipping it")
	rootCmd.AddCommand(reportCmd)
}

func report(ctx context.Context, logger *zap.Logger, paths []string, strict bool, out io.Writer) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	statsStage := stage.NewStatsStage()
	p, _, err := pipeline.NewWithStage(statsStage,
		pipeline.WithName("gometer-report"),
		pipeline.WithLogger(logger),
		pipeline.WithPolicy(types.TerminateManually),
	)
	if err != nil {
		return err
	}

	var errs error
	for _, path := range paths {
		if err := feed(p, path, strict, logger); err != nil {
			errs = multierr.Append(errs, err)
			if strict {
				break
			}
		}
	}
	if err := p.Shutdown(ctx); err != nil {
		return multierr.Append(errs, err)
	}
	if strict && errs != nil {
		return errs
	}
	if errs != nil {
		logger.Warn("some records were not read", zap.Error(errs))
	}
	return renderSnapshots(out, statsStage.AllSnapshots())
}

// feed submits every parsable row of path
func feed(p *pipeline.Pipeline, path string, strict bool, logger *zap.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		row := strings.TrimSpace(scanner.Text())
		if row == "" || row == timer.CSVHeader {
			continue
		}
		t, err := timer.ParseCSV(row)
		if err != nil {
			if strict {
				return fmt.Errorf("%s:%d: %w", path, line, err)
			}
			logger.Debug("skipping row", zap.String("file", path), zap.Int("line", line), zap.Error(err))
			continue
		}
		p.Submit(t)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return nil
}
