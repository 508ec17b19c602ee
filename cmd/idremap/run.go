package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"idremap/internal/config"
	"idremap/internal/job"
)

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a migration job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			j, err := a.loadJob(cmd.Flags())
			if err != nil {
				return err
			}
			return a.run(cmd.Context(), j)
		},
	}
	f := cmd.Flags()
	f.Int("chunk-size", 0, "rows per chunk (default from job, then IDREMAP_CHUNK_SIZE)")
	f.Int("transform-workers", 0, "transform goroutines per chunk (0 = one per CPU)")
	f.Bool("dry-run", false, "run the audit without writing the main output")
	f.String("output-dir", "", "directory for relative output paths")
	f.String("metrics-backend", "", "metrics backend (none|pushgateway|datadog)")
	f.String("pushgateway-url", "", "Prometheus Pushgateway base URL")
	f.String("statsd-addr", "", "DogStatsD address, host:port")
	return cmd
}

// loadJob reads the job file with flags applied, fills runtime knobs and
// validates it. Warnings are printed; errors fail.
func (a *app) loadJob(flags *pflag.FlagSet) (*config.Job, error) {
	j, err := config.Load(a.cfgPath, flags)
	if err != nil {
		return nil, err
	}
	applyRuntime(j)

	issues := config.ValidateJob(j)
	for _, iss := range issues {
		fmt.Fprintf(a.stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		return nil, fmt.Errorf("configuration is invalid: %s", a.cfgPath)
	}
	return j, nil
}

func (a *app) run(ctx context.Context, j *config.Job) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	defer setupMetrics(a.log, j.Metrics, j.Job, runID)()

	a.log.Info("run: start",
		zap.String("job", j.Job),
		zap.String("run_id", runID),
		zap.String("config", a.cfgPath),
		zap.Int("chunk_size", j.Run.ChunkSize),
		zap.Int("transform_workers", j.Run.TransformWorkers),
		zap.Bool("dry_run", j.Run.DryRun),
	)
	sum, err := job.Run(ctx, a.log, j, runID)
	if err != nil {
		a.log.Error("run: failed", zap.String("run_id", runID), zap.Error(err))
		return err
	}
	_, _ = fmt.Fprintln(a.stdout, sum.String())
	return nil
}

// applyRuntime fills knobs the job left at zero: environment first, then
// defaults.
func applyRuntime(j *config.Job) {
	j.Run.ChunkSize = pickInt(j.Run.ChunkSize, getenvInt("IDREMAP_CHUNK_SIZE", config.DefaultChunkSize))
	j.Run.TransformWorkers = pickInt(j.Run.TransformWorkers, getenvInt("IDREMAP_TRANSFORM_WORKERS", runtime.GOMAXPROCS(0)))
	j.Run.LookupWorkers = pickInt(j.Run.LookupWorkers, getenvInt("IDREMAP_LOOKUP_WORKERS", job.DefaultLookupWorkers))
}

func getenvInt(k string, def int) int {
	if s := os.Getenv(k); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}

func pickInt(a, b int) int {
	if a > 0 {
		return a
	}
	return b
}
