package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/brmarket-history/internal/job"
	"github.com/rickgao/brmarket-history/internal/metrics"
	"github.com/rickgao/brmarket-history/internal/scheduler"
	"github.com/rickgao/brmarket-history/internal/version"
)

var runOnStart bool

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run updates on the configured schedule",
	Long: `Runs the update at each job.schedule time (HH:MM, market timezone) and
serves /health and the Prometheus metrics endpoint until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().BoolVar(&runOnStart, "run-now", false, "also run once immediately on start")
}

// runStatus tracks the last scheduled run for /health.
type runStatus struct {
	mu       sync.Mutex
	lastRun  time.Time
	lastErr  error
	failed   []string
	target   time.Time
	finished int
}

func (s *runStatus) record(report job.Report, err error, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRun = at
	s.lastErr = err
	s.failed = report.Failed
	s.target = report.Resolution.Target
	s.finished++
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	times, err := scheduler.ParseClocks(cfg.Job.Schedule)
	if err != nil {
		return err
	}

	logger.Info("starting brhist daemon",
		"version", version.Version,
		"commit", version.Commit,
		"instance_id", cfg.Instance.ID,
	)

	ctx, stop := signalContext()
	defer stop()

	m := metrics.New()
	runner, cleanup, err := job.Build(ctx, cfg, m, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	status := &runStatus{}
	sched, err := scheduler.New(scheduler.Config{
		Times:      times,
		Location:   runner.Location(),
		RunOnStart: runOnStart,
	}, scheduler.JobFunc(func(ctx context.Context) error {
		report, err := runner.Run(ctx, job.RunOptions{})
		status.record(report, err, time.Now())
		return err
	}), logger)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:           newHandler(status, m, cfg.Metrics.Path),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("starting health server", "port", cfg.Metrics.Port, "metrics_path", cfg.Metrics.Path)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health server error", "error", err)
		}
	}()

	if err := sched.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Warn("scheduler stop", "error", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("health server shutdown", "error", err)
	}

	logger.Info("brhist daemon stopped")
	return nil
}

func newHandler(status *runStatus, m *metrics.Metrics, metricsPath string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(metricsPath, m.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status.mu.Lock()
		health := struct {
			Status  string   `json:"status"`
			Version string   `json:"version"`
			Runs    int      `json:"runs"`
			LastRun string   `json:"last_run,omitempty"`
			Target  string   `json:"target_date,omitempty"`
			Failed  []string `json:"failed,omitempty"`
			LastErr string   `json:"error,omitempty"`
		}{
			Status:  "healthy",
			Version: version.Version,
			Runs:    status.finished,
			Failed:  status.failed,
		}
		if !status.lastRun.IsZero() {
			health.LastRun = status.lastRun.Format(time.RFC3339)
			health.Target = status.target.Format(time.DateOnly)
		}
		if status.lastErr != nil {
			health.Status = "degraded"
			health.LastErr = status.lastErr.Error()
		}
		status.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(health); err != nil {
			logger.Warn("encode health", "error", err)
		}
	})

	return mux
}
