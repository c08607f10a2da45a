package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/brmarket-history/internal/calendar"
	"github.com/rickgao/brmarket-history/internal/dataset"
	"github.com/rickgao/brmarket-history/internal/metrics"
	"github.com/rickgao/brmarket-history/internal/mirror"
	"github.com/rickgao/brmarket-history/internal/tradedate"
)

// ErrUnknownDataset is returned when a run names a dataset that is not
// configured.
var ErrUnknownDataset = errors.New("unknown dataset")

// Dataset pairs a dataset with its fetcher.
type Dataset struct {
	Config  dataset.Config
	Fetcher dataset.Fetcher
}

// Ledger records run outcomes.
type Ledger interface {
	Record(ctx context.Context, r mirror.Run) error
}

// Options configures a Runner.
type Options struct {
	Instance       string
	Concurrency    int
	Timeout        time.Duration
	PushgatewayURL string
}

// RunOptions narrows a single run.
type RunOptions struct {
	// Date overrides the resolved target date when set.
	Date time.Time

	// Only restricts the run to the named datasets.
	Only []string
}

// Report describes a finished run.
type Report struct {
	RunID      uuid.UUID
	Resolution tradedate.Resolution
	Results    []dataset.Result
	Failed     []string
}

// Runner runs updates.
type Runner struct {
	resolver *tradedate.Resolver
	cal      calendar.Oracle
	updater  *dataset.Updater
	datasets []Dataset
	metrics  *metrics.Metrics
	ledger   Ledger
	opts     Options
	logger   *slog.Logger
	now      func() time.Time
}

// NewRunner creates a Runner. m and ledger may be nil.
func NewRunner(
	resolver *tradedate.Resolver,
	cal calendar.Oracle,
	updater *dataset.Updater,
	datasets []Dataset,
	m *metrics.Metrics,
	ledger Ledger,
	opts Options,
	logger *slog.Logger,
) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Runner{
		resolver: resolver,
		cal:      cal,
		updater:  updater,
		datasets: datasets,
		metrics:  m,
		ledger:   ledger,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// Datasets returns the configured datasets.
func (r *Runner) Datasets() []Dataset {
	return r.datasets
}

// Location returns the market timezone.
func (r *Runner) Location() *time.Location {
	return r.resolver.Location()
}

// Resolve returns the target date resolution for now.
func (r *Runner) Resolve(now time.Time) tradedate.Resolution {
	return r.resolver.Resolve(now, r.cal)
}

// Run performs one update run. The returned error joins the failures of
// datasets whose policy is to fail the run.
func (r *Runner) Run(ctx context.Context, ro RunOptions) (Report, error) {
	report := Report{RunID: uuid.New()}
	logger := r.logger.With("run_id", report.RunID.String())

	res := r.Resolve(r.now())
	if !ro.Date.IsZero() {
		res.Target = calendar.Truncate(ro.Date)
		res.Skip = tradedate.IsSpecialHoliday(res.Target)
		res.Reason = ""
		if res.Skip {
			res.Reason = fmt.Sprintf("no trading session on %s", res.Target.Format("Jan 2"))
		}
	}
	report.Resolution = res

	logger.Info("target date resolved",
		"now", res.Now.Format(time.RFC3339),
		"target", res.Target.Format(time.DateOnly),
	)

	if res.Skip {
		logger.Info("skipping run", "reason", res.Reason)
		r.finish(ctx, logger, metrics.RunSkipped)
		return report, nil
	}

	selected, err := r.selectDatasets(ro.Only)
	if err != nil {
		return report, err
	}

	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g := new(errgroup.Group)
	g.SetLimit(r.opts.Concurrency)

	for _, ds := range selected {
		g.Go(func() error {
			started := time.Now()
			result, err := r.updater.Update(ctx, ds.Config, ds.Fetcher, res.Target, res.Today)
			finished := time.Now()

			r.observe(ds.Config, result, err, finished.Sub(started))
			r.record(ctx, logger, report.RunID, ds.Config, res.Target, result, err, started, finished)

			mu.Lock()
			defer mu.Unlock()
			report.Results = append(report.Results, result)
			if err != nil {
				logger.Error("dataset update failed",
					"dataset", ds.Config.Name,
					"on_error", ds.Config.OnError,
					"error", err,
				)
				report.Failed = append(report.Failed, ds.Config.Name)
				if ds.Config.Propagate() {
					errs = append(errs, err)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	slices.SortFunc(report.Results, func(a, b dataset.Result) int {
		return strings.Compare(a.Dataset, b.Dataset)
	})
	slices.Sort(report.Failed)

	status := metrics.RunOK
	if len(report.Failed) > 0 {
		status = metrics.RunFailed
	}
	r.finish(ctx, logger, status)

	logger.Info("run finished",
		"datasets", len(selected),
		"failed", len(report.Failed),
	)
	return report, errors.Join(errs...)
}

func (r *Runner) selectDatasets(only []string) ([]Dataset, error) {
	if len(only) == 0 {
		return r.datasets, nil
	}
	byName := make(map[string]Dataset, len(r.datasets))
	for _, ds := range r.datasets {
		byName[ds.Config.Name] = ds
	}
	out := make([]Dataset, 0, len(only))
	for _, name := range only {
		ds, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownDataset, name)
		}
		out = append(out, ds)
	}
	return out, nil
}

func (r *Runner) observe(cfg dataset.Config, result dataset.Result, err error, d time.Duration) {
	if r.metrics == nil {
		return
	}
	if err != nil {
		r.metrics.ObserveFailure(cfg.Name, d)
		return
	}
	if result.MirrorErr != nil {
		r.metrics.ObserveMirrorFailure(cfg.Name)
	}
	r.metrics.ObserveSuccess(cfg.Name, result.Fetched, result.Total, d, r.now())
}

func (r *Runner) record(ctx context.Context, logger *slog.Logger, id uuid.UUID, cfg dataset.Config, target time.Time, result dataset.Result, err error, started, finished time.Time) {
	if r.ledger == nil {
		return
	}
	run := mirror.Run{
		ID:         id,
		Dataset:    cfg.Name,
		Target:     target,
		Status:     mirror.StatusOK,
		Fetched:    result.Fetched,
		Total:      result.Total,
		StartedAt:  started,
		FinishedAt: finished,
	}
	switch {
	case err != nil:
		run.Status = mirror.StatusFailed
		run.Error = err.Error()
	case result.Skipped:
		run.Status = mirror.StatusSkipped
	}
	// The run context may have expired; the ledger entry is still wanted.
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := r.ledger.Record(recCtx, run); err != nil {
		logger.Warn("ledger record failed", "dataset", cfg.Name, "error", err)
	}
}

func (r *Runner) finish(ctx context.Context, logger *slog.Logger, status string) {
	if r.metrics == nil {
		return
	}
	r.metrics.ObserveRun(status)
	if r.opts.PushgatewayURL == "" {
		return
	}
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := r.metrics.Push(pushCtx, r.opts.PushgatewayURL, "brhist", r.opts.Instance); err != nil {
		logger.Warn("metrics push failed", "error", err)
	}
}
