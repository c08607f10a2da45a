package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/brmarket-history/internal/calendar"
	"github.com/rickgao/brmarket-history/internal/job"
	"github.com/rickgao/brmarket-history/internal/metrics"
	"github.com/rickgao/brmarket-history/internal/tradedate"
)

var (
	runDate     string
	runDatasets []string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one update of every enabled dataset",
	Long: `Resolves the target trading date, fetches each enabled dataset for it and
merges the new rows into the stored history. The command exits non-zero when
a dataset whose on_error policy is "fail" could not be updated.`,
	Args: cobra.NoArgs,
	RunE: runOnce,
}

var targetDateCmd = &cobra.Command{
	Use:   "target-date",
	Short: "Print the trading date a run would fetch now",
	Args:  cobra.NoArgs,
	RunE:  printTargetDate,
}

func init() {
	runCmd.Flags().StringVar(&runDate, "date", "", "fetch this date (YYYY-MM-DD) instead of the resolved one")
	runCmd.Flags().StringSliceVar(&runDatasets, "dataset", nil, "only update these datasets (di1, tpf, vna, bcb_secondary)")
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runOnce(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var opts job.RunOptions
	if runDate != "" {
		d, err := calendar.ParseDate(runDate)
		if err != nil {
			return fmt.Errorf("invalid --date: %w", err)
		}
		opts.Date = d
	}
	opts.Only = splitNames(runDatasets)

	ctx, stop := signalContext()
	defer stop()

	runner, cleanup, err := job.Build(ctx, cfg, metrics.New(), logger)
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := runner.Run(ctx, opts)
	for _, r := range report.Results {
		fmt.Fprintf(cmd.OutOrStdout(), "%-14s fetched=%-6d total=%-8d %s\n",
			r.Dataset, r.Fetched, r.Total, r.Duration.Round(time.Millisecond))
	}
	return err
}

func printTargetDate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cal, err := job.NewCalendar(cfg.Market)
	if err != nil {
		return err
	}
	resolver, err := tradedate.NewResolver(cfg.Market.Timezone, cfg.Market.CutoffHour)
	if err != nil {
		return err
	}

	res := resolver.Resolve(time.Now(), cal)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "now:    %s\n", res.Now.Format(time.RFC3339))
	fmt.Fprintf(out, "target: %s\n", res.Target.Format(time.DateOnly))
	if res.Skip {
		fmt.Fprintf(out, "skip:   %s\n", res.Reason)
	}
	return nil
}
