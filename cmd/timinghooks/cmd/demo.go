package cmd

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/psantana5/timinghooks/internal/hostinfo"
	"github.com/psantana5/timinghooks/internal/report"
	"github.com/psantana5/timinghooks/internal/statefile"
	"github.com/psantana5/timinghooks/pkg/logging"
	"github.com/psantana5/timinghooks/pkg/timers"
	"github.com/psantana5/timinghooks/pkg/tracing"
)

var (
	demoIterations int
	demoRead       time.Duration
	demoCompute    time.Duration
	demoWorkers    int
	demoSave       string
	demoPush       bool
	demoLabel      string
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Time a simulated read/compute loop",
	Long: `Runs a loop of simulated reading and computation steps inside an outer
"walltime" interval, against the real clock, and prints the summary.

With --workers N the loop runs in N goroutines sharing one accumulator, so
the reading and computation counts are multiplied by N while walltime is
recorded once.`,
	RunE: runDemo,
}

func init() {
	rootCmd.AddCommand(demoCmd)

	demoCmd.Flags().IntVar(&demoIterations, "iterations", 3, "loop iterations per worker")
	demoCmd.Flags().DurationVar(&demoRead, "read", time.Second, "duration of each reading step")
	demoCmd.Flags().DurationVar(&demoCompute, "compute", 2*time.Second, "duration of each computation step")
	demoCmd.Flags().IntVar(&demoWorkers, "workers", 1, "number of concurrent workers")
	demoCmd.Flags().StringVar(&demoSave, "save", "", "write the recorded state to this file (.json or .yaml)")
	demoCmd.Flags().BoolVar(&demoPush, "push", false, "push the recorded state to the collector as a snapshot")
	demoCmd.Flags().StringVar(&demoLabel, "label", "demo", "snapshot label used with --push")
}

func runDemo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	format, err := report.ParseFormat(outputFormat)
	if err != nil {
		return err
	}
	if demoWorkers < 1 {
		return fmt.Errorf("--workers must be at least 1")
	}

	logger := cfg.Logger()
	tp, err := tracing.InitTracer(cfg.TracingConfig(version), logger)
	if err != nil {
		return err
	}
	defer tp.Shutdown(context.Background())

	timings := timers.New(timers.WithHooks(
		tracing.NewIntervalHook(tp),
		logging.NewIntervalHook(logger),
	))

	info := hostinfo.Detect()
	logger.Info("starting demo", map[string]interface{}{
		"host":       info.Hostname,
		"cpu":        info.CPUModel,
		"workers":    demoWorkers,
		"iterations": demoIterations,
	})

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	err = timings.Time(ctx, "walltime", func(ctx context.Context) error {
		return runDemoWorkers(ctx, timings)
	})
	if err != nil {
		return err
	}

	state := timings.Export()
	if demoSave != "" {
		if err := statefile.Save(demoSave, state); err != nil {
			return err
		}
		logger.Info("state saved", map[string]interface{}{"path": demoSave})
	}
	if demoPush {
		c, err := newClient(cfg)
		if err != nil {
			return err
		}
		snap, err := c.PushSnapshot(ctx, demoLabel, info.Hostname, state)
		if err != nil {
			return err
		}
		logger.Info("snapshot pushed", map[string]interface{}{"id": snap.ID})
	}

	return report.Render(os.Stdout, timings.Summary(), format)
}

func runDemoWorkers(ctx context.Context, timings *timers.Timers) error {
	var wg sync.WaitGroup
	errs := make([]error, demoWorkers)

	for w := 0; w < demoWorkers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < demoIterations; i++ {
				if err := timings.Time(ctx, "reading", sleepStep(demoRead)); err != nil {
					errs[w] = err
					return
				}
				if err := timings.Time(ctx, "computation", sleepStep(demoCompute)); err != nil {
					errs[w] = err
					return
				}
			}
		}(w)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// sleepStep stands in for real work, returning early on cancellation
func sleepStep(d time.Duration) func(context.Context) error {
	return func(ctx context.Context) error {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
