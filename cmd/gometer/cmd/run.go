package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jzx17/gometer/pkg/config"
	"github.com/jzx17/gometer/pkg/pipeline"
	"github.com/jzx17/gometer/pkg/record"
	"github.com/jzx17/gometer/pkg/stage"
	"github.com/jzx17/gometer/pkg/tracker"
	"github.com/jzx17/gometer/pkg/types"
)

const shutdownTimeout = 5 * time.Second

type workload struct {
	Tasks       []string
	Iterations  int
	Workers     int
	MaxDelay    time.Duration
	MetricsAddr string
	CSVPath     string
	Hold        bool
}

var runOpts workload

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Time a synthetic workload and print per-task statistics",
	Long: `run starts one timer per iteration on a worker pool, sleeps a random delay
and stops it. Stopped timers flow through the tracker pipeline into a statistics
stage, optionally a Prometheus publisher and a CSV file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runWorkload(ctx, cfg, logger, runOpts, cmd.OutOrStdout())
	},
}

func init() {
	runCmd.Flags().StringSliceVar(&runOpts.Tasks, "tasks", []string{"fetch", "parse", "store"}, "task names to time")
	runCmd.Flags().IntVarP(&runOpts.Iterations, "iterations", "n", 100, "timers to start")
	runCmd.Flags().IntVarP(&runOpts.Workers, "workers", "w", 8, "worker pool size")
	runCmd.Flags().DurationVar(&runOpts.MaxDelay, "max-delay", 10*time.Millisecond, "upper bound of the simulated work")
	runCmd.Flags().StringVar(&runOpts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	runCmd.Flags().StringVar(&runOpts.CSVPath, "csv", "", "also write every stopped timer to this CSV file")
	runCmd.Flags().BoolVar(&runOpts.Hold, "hold", false, "keep serving metrics after the workload until interrupted")

	rootCmd.AddCommand(runCmd)
}

func (w workload) validate() error {
	if len(w.Tasks) == 0 {
		return fmt.Errorf("%w: at least one task is required", types.ErrInvalidConfig)
	}
	if w.Iterations < 0 || w.Workers <= 0 {
		return fmt.Errorf("%w: iterations must be >= 0 and workers > 0", types.ErrInvalidConfig)
	}
	if w.MaxDelay < 0 {
		return fmt.Errorf("%w: max-delay must not be negative", types.ErrInvalidConfig)
	}
	return nil
}

// runWorkload drives the workload and, when asked, a metrics server. Both run
// in one errgroup; the server stops once the report is printed unless Hold is set.
func runWorkload(ctx context.Context, cfg *config.Config, logger *zap.Logger, w workload, out io.Writer) error {
	if err := w.validate(); err != nil {
		return err
	}
	if cfg == nil {
		cfg = config.Default()
	}

	reg := prometheus.NewRegistry()
	tr := tracker.New(append(cfg.TrackerOptions(logger, cfg.NewMetrics(reg)),
		tracker.WithName("gometer-run"),
		tracker.WithPipelineOptions(pipeline.WithPolicy(types.TerminateManually)),
	)...)

	statsStage := stage.NewStatsStage()
	if _, err := tr.AddStage(statsStage); err != nil {
		return err
	}
	if w.MetricsAddr != "" {
		pub, err := stage.NewPublisherStage(stage.NewPrometheusPublisher(reg, cfg.MetricsNamespace))
		if err != nil {
			return err
		}
		if _, err := tr.AddStage(pub); err != nil {
			return err
		}
	}

	var file *record.File
	if w.CSVPath != "" {
		var err error
		if file, err = record.NewFile(w.CSVPath, types.FormatCSV); err != nil {
			return err
		}
		if err := file.WriteHeader(); err != nil {
			return multierr.Append(err, file.Close())
		}
		rs, err := stage.NewRecorderStage(file)
		if err != nil {
			return multierr.Append(err, file.Close())
		}
		if _, err := tr.AddStage(rs); err != nil {
			return multierr.Append(err, file.Close())
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if w.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              w.MetricsAddr,
			Handler:           metricsHandler(reg),
			ReadHeaderTimeout: shutdownTimeout,
		}
		g.Go(func() error {
			logger.Info("serving metrics", zap.String("addr", w.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer scancel()
			return srv.Shutdown(sctx)
		})
	}

	g.Go(func() (err error) {
		started := time.Now()
		err = w.execute(gctx, tr)

		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		err = multierr.Append(err, tr.Shutdown(sctx))
		if file != nil {
			err = multierr.Append(err, file.Close())
		}
		if err != nil {
			return err
		}

		logger.Info("workload finished",
			zap.Int("iterations", w.Iterations),
			zap.Duration("wall", time.Since(started)))
		if err := renderSnapshots(out, statsStage.AllSnapshots()); err != nil {
			return err
		}
		if !w.Hold || w.MetricsAddr == "" {
			cancel()
		}
		return nil
	})

	return g.Wait()
}

// execute submits one timing job per iteration to an ants pool and waits for them
func (w workload) execute(ctx context.Context, tr *tracker.Tracker) error {
	pool, err := ants.NewPool(w.Workers)
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i := range w.Iterations {
		if ctx.Err() != nil {
			break
		}
		task := w.Tasks[i%len(w.Tasks)]
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			tm := tr.Start(task)
			simulate(ctx, w.MaxDelay)
			_, _ = tm.StopWithKeyedNotes("iteration", strconv.Itoa(i))
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return fmt.Errorf("failed to submit iteration %d: %w", i, err)
		}
	}
	wg.Wait()
	return ctx.Err()
}

func simulate(ctx context.Context, maxDelay time.Duration) {
	if maxDelay <= 0 {
		return
	}
	select {
	case <-time.After(rand.N(maxDelay)):
	case <-ctx.Done():
	}
}

func metricsHandler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return mux
}
