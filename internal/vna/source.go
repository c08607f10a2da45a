package vna

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/shopspring/decimal"

	"github.com/rickgao/brmarket-history/internal/calendar"
	"github.com/rickgao/brmarket-history/internal/provider/anbima"
	"github.com/rickgao/brmarket-history/internal/provider/ibge"
)

// Releases lists IPCA release dates.
type Releases interface {
	ReleaseDates(ctx context.Context) ([]time.Time, error)
}

// Index returns the latest monthly IPCA in percent.
type Index interface {
	MonthlyRate(ctx context.Context, now time.Time, monthsBack int) (decimal.Decimal, error)
}

// Projections returns the ANBIMA IPCA projection.
type Projections interface {
	IPCAProjection(ctx context.Context) (anbima.Projection, error)
}

// Source gathers the inputs of a projection run and computes it.
type Source struct {
	cal         calendar.Oracle
	releases    Releases
	index       Index
	projections Projections
	basePath    string
	monthsBack  int
	logger      *slog.Logger
}

// NewSource creates a Source reading the base VNA from basePath.
func NewSource(cal calendar.Oracle, releases Releases, index Index, projections Projections, basePath string, monthsBack int, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	if monthsBack <= 0 {
		monthsBack = 4
	}
	return &Source{
		cal:         cal,
		releases:    releases,
		index:       index,
		projections: projections,
		basePath:    basePath,
		monthsBack:  monthsBack,
		logger:      logger.With("dataset", "vna"),
	}
}

// Fetch returns the projection rows for the days after the last date in
// existing up to today. It returns an empty table when there is nothing
// new.
func (s *Source) Fetch(ctx context.Context, existing dataframe.DataFrame, today time.Time) (dataframe.DataFrame, error) {
	last := LastDate(existing)
	days := Days(s.cal, last, today)
	if len(days) == 0 {
		s.logger.Info("VNA already up to date", "last", last.Format(time.DateOnly))
		return dataframe.DataFrame{}, nil
	}

	base, err := LoadBase(s.basePath)
	if err != nil {
		return dataframe.DataFrame{}, err
	}

	in := Inputs{Base: base, Last: last, Today: today}

	dates, err := s.releases.ReleaseDates(ctx)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	in.Release, in.HasRelease = ibge.ReleaseInMonth(dates, today)
	if !in.HasRelease {
		s.logger.Warn("no IPCA release date for the month", "month", today.Format("2006-01"))
	}

	if p, err := s.projections.IPCAProjection(ctx); err != nil {
		s.logger.Warn("ANBIMA projection unavailable", "error", err)
	} else {
		pct := p.Percent
		in.Projection = &pct
	}

	if pct, err := s.index.MonthlyRate(ctx, today, s.monthsBack); err != nil {
		s.logger.Warn("IPCA index unavailable", "error", err)
	} else {
		in.IPCA = &pct
	}

	rows, err := Project(s.cal, in)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("project VNA: %w", err)
	}
	s.logger.Info("VNA projected", "days", len(rows), "from", days[0].Format(time.DateOnly), "to", days[len(days)-1].Format(time.DateOnly))
	return Frame(rows), nil
}
