package job

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/go-gota/gota/dataframe"

	"github.com/rickgao/brmarket-history/internal/api"
	"github.com/rickgao/brmarket-history/internal/calendar"
	"github.com/rickgao/brmarket-history/internal/config"
	"github.com/rickgao/brmarket-history/internal/database"
	"github.com/rickgao/brmarket-history/internal/dataset"
	"github.com/rickgao/brmarket-history/internal/metrics"
	"github.com/rickgao/brmarket-history/internal/mirror"
	"github.com/rickgao/brmarket-history/internal/provider/anbima"
	"github.com/rickgao/brmarket-history/internal/provider/b3"
	"github.com/rickgao/brmarket-history/internal/provider/bcb"
	"github.com/rickgao/brmarket-history/internal/provider/ibge"
	"github.com/rickgao/brmarket-history/internal/store"
	"github.com/rickgao/brmarket-history/internal/tradedate"
	"github.com/rickgao/brmarket-history/internal/vna"
)

// Dataset names.
const (
	DI1          = "di1"
	TPF          = "tpf"
	VNA          = "vna"
	BCBSecondary = "bcb_secondary"
)

// NewCalendar builds the market calendar from the configured holiday
// sources.
func NewCalendar(cfg config.MarketConfig) (*calendar.Brazil, error) {
	var extra []time.Time
	if cfg.HolidaysFile != "" {
		days, err := calendar.LoadHolidays(cfg.HolidaysFile)
		if err != nil {
			return nil, err
		}
		extra = append(extra, days...)
	}
	for _, s := range cfg.ExtraHolidays {
		d, err := calendar.ParseDate(s)
		if err != nil {
			return nil, fmt.Errorf("extra holiday %q: %w", s, err)
		}
		extra = append(extra, d)
	}
	return calendar.NewBrazil(extra...), nil
}

// NewStore builds the parquet store from the storage settings.
func NewStore(cfg config.StorageConfig, logger *slog.Logger) (*store.Store, error) {
	return store.New(store.Options{
		Compression: cfg.Compression,
		Snapshot:    cfg.Snapshot,
		Logger:      logger,
	})
}

func newAPIClient(p config.ProviderConfig, logger *slog.Logger) *api.Client {
	return api.NewClient(p.BaseURL,
		api.WithTimeout(p.Timeout),
		api.WithRetries(p.MaxRetries, p.RetryDelay),
		api.WithRateLimit(p.RateLimit, p.Burst),
		api.WithLogger(logger),
	)
}

// Datasets builds the enabled datasets and their fetchers.
func Datasets(cfg *config.Config, cal calendar.Oracle, logger *slog.Logger) []Dataset {
	dir := cfg.Storage.DataDir
	var out []Dataset

	if d := cfg.Datasets.DI1; d.Enabled {
		client := b3.NewClient(newAPIClient(cfg.Providers.B3, logger), cal, logger)
		out = append(out, Dataset{
			Config: dataset.Config{
				Name:        DI1,
				Path:        filepath.Join(dir, d.File),
				Keys:        b3.Keys,
				Required:    b3.Required,
				DateColumns: b3.DateColumns,
				OnError:     d.OnError,
			},
			Fetcher: dataset.FetcherFunc(func(ctx context.Context, req dataset.Request) (dataframe.DataFrame, error) {
				return client.DI1(ctx, req.Target)
			}),
		})
	}

	var anbimaClient *anbima.Client
	if cfg.Datasets.TPF.Enabled || cfg.Datasets.VNA.Enabled {
		anbimaClient = anbima.NewClient(newAPIClient(cfg.Providers.ANBIMA, logger), cal, logger)
	}

	if d := cfg.Datasets.TPF; d.Enabled {
		out = append(out, Dataset{
			Config: dataset.Config{
				Name:        TPF,
				Path:        filepath.Join(dir, d.File),
				Keys:        anbima.Keys,
				Required:    anbima.Required,
				DateColumns: anbima.DateColumns,
				OnError:     d.OnError,
			},
			Fetcher: dataset.FetcherFunc(func(ctx context.Context, req dataset.Request) (dataframe.DataFrame, error) {
				return anbimaClient.TPF(ctx, req.Target)
			}),
		})
	}

	if d := cfg.Datasets.VNA; d.Enabled {
		ibgeClient := ibge.NewClient(
			newAPIClient(cfg.Providers.IBGE, logger),
			newAPIClient(cfg.Providers.SIDRA, logger),
			logger,
		)
		source := vna.NewSource(cal, ibgeClient, ibgeClient, anbimaClient,
			filepath.Join(dir, d.BaseFile), d.IPCAMonthsBack, logger)
		out = append(out, Dataset{
			Config: dataset.Config{
				Name:        VNA,
				Path:        filepath.Join(dir, d.File),
				Keys:        vna.Keys,
				Required:    vna.Required,
				DateColumns: vna.DateColumns,
				AllowEmpty:  true,
				OnError:     d.OnError,
			},
			Fetcher: dataset.FetcherFunc(func(ctx context.Context, req dataset.Request) (dataframe.DataFrame, error) {
				return source.Fetch(ctx, req.Existing, req.Today)
			}),
		})
	}

	if d := cfg.Datasets.BCB; d.Enabled {
		client := bcb.NewClient(newAPIClient(cfg.Providers.BCB, logger), logger)
		out = append(out, Dataset{
			Config: dataset.Config{
				Name:        BCBSecondary,
				Path:        filepath.Join(dir, d.File),
				Keys:        bcb.Keys,
				Required:    bcb.Required,
				DateColumns: bcb.DateColumns,
				OnError:     d.OnError,
			},
			Fetcher: dataset.FetcherFunc(func(ctx context.Context, req dataset.Request) (dataframe.DataFrame, error) {
				return client.Trades(ctx, req.Target)
			}),
		})
	}

	return out
}

// Build wires a Runner from the configuration. The returned cleanup
// releases the database pool when the mirror is enabled.
func Build(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*Runner, func(), error) {
	cleanup := func() {}

	cal, err := NewCalendar(cfg.Market)
	if err != nil {
		return nil, cleanup, err
	}

	resolver, err := tradedate.NewResolver(cfg.Market.Timezone, cfg.Market.CutoffHour)
	if err != nil {
		return nil, cleanup, err
	}

	st, err := NewStore(cfg.Storage, logger)
	if err != nil {
		return nil, cleanup, err
	}

	var (
		sink   dataset.Mirror
		ledger Ledger
	)
	if cfg.Database.Enabled {
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, cleanup, err
		}
		cleanup = pool.Close

		l := mirror.NewLedger(pool)
		if err := l.Ensure(ctx); err != nil {
			pool.Close()
			return nil, func() {}, err
		}
		sink = mirror.New(pool, mirror.DefaultBatchSize, logger)
		ledger = l
		logger.Info("database mirror enabled", "host", cfg.Database.Host, "schema", cfg.Database.Schema)
	}

	updater := dataset.NewUpdater(st, sink, logger)
	runner := NewRunner(resolver, cal, updater, Datasets(cfg, cal, logger), m, ledger, Options{
		Instance:       cfg.Instance.ID,
		Concurrency:    cfg.Job.Concurrency,
		Timeout:        cfg.Job.Timeout,
		PushgatewayURL: cfg.Metrics.PushgatewayURL,
	}, logger)
	return runner, cleanup, nil
}
