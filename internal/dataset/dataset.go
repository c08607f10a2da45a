// Package dataset updates one historical table: it loads the stored table,
// fetches the new rows, validates them, merges them in by natural key and
// writes the result back.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-gota/gota/dataframe"

	"github.com/rickgao/brmarket-history/internal/table"
)

var (
	// ErrNoData is returned when a fetch yields no rows.
	ErrNoData = errors.New("no data")

	// ErrMissingColumn is returned when fetched rows lack a required column.
	ErrMissingColumn = table.ErrMissingColumn
)

// Failure policies.
const (
	OnErrorFail = "fail"
	OnErrorLog  = "log"
)

// Config describes a dataset.
type Config struct {
	Name        string
	Path        string
	Keys        []string
	Required    []string
	DateColumns []string

	// AllowEmpty treats an empty fetch as "nothing new" instead of ErrNoData.
	AllowEmpty bool

	// OnError is OnErrorFail or OnErrorLog.
	OnError string
}

// Propagate reports whether a failure of this dataset fails the run.
func (c Config) Propagate() bool {
	return c.OnError != OnErrorLog
}

// Request is what a Fetcher is asked for.
type Request struct {
	Target   time.Time
	Today    time.Time
	Existing dataframe.DataFrame
}

// Fetcher returns the new rows of a dataset.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (dataframe.DataFrame, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req Request) (dataframe.DataFrame, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, req Request) (dataframe.DataFrame, error) {
	return f(ctx, req)
}

// Store persists tables.
type Store interface {
	Load(path string) (dataframe.DataFrame, bool, error)
	Save(path string, df dataframe.DataFrame, dateColumns []string) error
}

// Mirror receives the rows written by an update.
type Mirror interface {
	Sync(ctx context.Context, cfg Config, rows dataframe.DataFrame) error
}

// Result summarizes one update.
type Result struct {
	Dataset  string
	Target   time.Time
	Existed  bool
	Fetched  int
	Total    int
	Skipped  bool
	Duration time.Duration

	// MirrorErr is set when the rows were saved but could not be mirrored.
	MirrorErr error
}

// Updater runs dataset updates.
type Updater struct {
	store  Store
	mirror Mirror
	logger *slog.Logger
}

// NewUpdater creates an Updater. mirror may be nil.
func NewUpdater(store Store, mirror Mirror, logger *slog.Logger) *Updater {
	if logger == nil {
		logger = slog.Default()
	}
	return &Updater{store: store, mirror: mirror, logger: logger}
}

// Update fetches and merges the rows of cfg for req.Target. The stored table
// is only replaced after a successful fetch and merge.
func (u *Updater) Update(ctx context.Context, cfg Config, fetcher Fetcher, target, today time.Time) (Result, error) {
	start := time.Now()
	logger := u.logger.With("dataset", cfg.Name, "target", target.Format(time.DateOnly))
	res := Result{Dataset: cfg.Name, Target: target}

	existing, existed, err := u.store.Load(cfg.Path)
	if err != nil {
		return res, fmt.Errorf("%s: load: %w", cfg.Name, err)
	}
	res.Existed = existed
	res.Total = existing.Nrow()

	incoming, err := fetcher.Fetch(ctx, Request{Target: target, Today: today, Existing: existing})
	if err != nil {
		return res, fmt.Errorf("%s: fetch: %w", cfg.Name, err)
	}
	if incoming.Err != nil {
		return res, fmt.Errorf("%s: fetch: %w", cfg.Name, incoming.Err)
	}

	if table.IsEmpty(incoming) {
		if cfg.AllowEmpty {
			res.Skipped = true
			res.Duration = time.Since(start)
			logger.Info("nothing new to add")
			return res, nil
		}
		return res, fmt.Errorf("%s: %w for %s", cfg.Name, ErrNoData, target.Format(time.DateOnly))
	}
	res.Fetched = incoming.Nrow()

	if err := table.RequireColumns(incoming, cfg.Required...); err != nil {
		return res, fmt.Errorf("%s: %w", cfg.Name, err)
	}

	merged, err := table.Upsert(existing, incoming, cfg.Keys)
	if err != nil {
		return res, fmt.Errorf("%s: merge: %w", cfg.Name, err)
	}

	if err := u.store.Save(cfg.Path, merged, cfg.DateColumns); err != nil {
		return res, fmt.Errorf("%s: %w", cfg.Name, err)
	}
	res.Total = merged.Nrow()

	if u.mirror != nil {
		if err := u.mirror.Sync(ctx, cfg, incoming); err != nil {
			res.MirrorErr = err
			logger.Warn("mirror sync failed", "error", err)
		}
	}

	res.Duration = time.Since(start)
	logger.Info("dataset updated",
		"fetched", res.Fetched,
		"total", res.Total,
		"duration", res.Duration,
	)
	return res, nil
}

// Compact rewrites the stored table deduplicated and sorted by key.
func (u *Updater) Compact(cfg Config) (before, after int, err error) {
	df, existed, err := u.store.Load(cfg.Path)
	if err != nil {
		return 0, 0, fmt.Errorf("%s: load: %w", cfg.Name, err)
	}
	if !existed {
		return 0, 0, fmt.Errorf("%s: %s does not exist", cfg.Name, cfg.Path)
	}
	before = df.Nrow()

	out, err := table.Normalize(df, cfg.Keys)
	if err != nil {
		return before, 0, fmt.Errorf("%s: compact: %w", cfg.Name, err)
	}
	if err := u.store.Save(cfg.Path, out, cfg.DateColumns); err != nil {
		return before, 0, fmt.Errorf("%s: %w", cfg.Name, err)
	}
	after = out.Nrow()
	u.logger.Info("dataset compacted", "dataset", cfg.Name, "before", before, "after", after)
	return before, after, nil
}
