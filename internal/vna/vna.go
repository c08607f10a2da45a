package vna

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/shopspring/decimal"

	"github.com/rickgao/brmarket-history/internal/calendar"
	"github.com/rickgao/brmarket-history/internal/table"
)

// Column names of the projection table.
const (
	ColReferenceDate = "reference_date"
	ColInflation     = "inflation"
	ColVNADU         = "vna_du"
	ColVNADC         = "vna_dc"

	colVNA = "vna"
)

// Keys is the natural key of the projection table.
var Keys = []string{ColReferenceDate}

// DateColumns are stored with a date type.
var DateColumns = []string{ColReferenceDate}

// Required must be present in every computed table.
var Required = []string{ColReferenceDate, ColInflation, ColVNADU, ColVNADC}

const anniversaryDay = 15

var (
	// ErrNoInflation is returned when neither the IPCA nor the projection
	// is available.
	ErrNoInflation = errors.New("no inflation value available")

	// ErrMissingBase is returned when the base VNA for an anniversary is
	// absent.
	ErrMissingBase = errors.New("missing base VNA")
)

// Inputs are the values a projection run depends on. Percent values are
// monthly rates, e.g. 0.35 for 0.35%.
type Inputs struct {
	Base Base

	// Last is the last stored reference date; zero when nothing is stored.
	Last  time.Time
	Today time.Time

	// Release is the IPCA release date in Today's month, when known.
	Release    time.Time
	HasRelease bool

	IPCA       *decimal.Decimal
	Projection *decimal.Decimal
}

// PreviousAnniversary returns the 15th on or before d.
func PreviousAnniversary(d time.Time) time.Time {
	if d.Day() >= anniversaryDay {
		return calendar.Date(d.Year(), d.Month(), anniversaryDay)
	}
	return calendar.Date(d.Year(), d.Month()-1, anniversaryDay)
}

// Inflation picks the monthly rate used for day d.
func Inflation(d time.Time, in Inputs) (decimal.Decimal, error) {
	switch {
	case in.HasRelease && in.IPCA != nil && in.Projection != nil:
		if d.Day() < anniversaryDay && !d.Before(in.Release) {
			return *in.IPCA, nil
		}
		return *in.Projection, nil
	case in.Projection != nil:
		return *in.Projection, nil
	case in.IPCA != nil:
		return *in.IPCA, nil
	}
	return decimal.Decimal{}, ErrNoInflation
}

// Days returns the business days to project: those after Last up to and
// including Today. With nothing stored only Today is considered.
func Days(cal calendar.Oracle, last, today time.Time) []time.Time {
	today = calendar.Truncate(today)
	if last.IsZero() {
		last = today.AddDate(0, 0, -1)
	}
	last = calendar.Truncate(last)
	if !last.Before(today) {
		return nil
	}
	return cal.Generate(last, today)
}

// Row is one projected day.
type Row struct {
	Date      time.Time
	Inflation decimal.Decimal
	VNADU     decimal.Decimal
	VNADC     decimal.Decimal
}

// ProjectDay computes the VNA of d with the monthly rate pct.
func ProjectDay(cal calendar.Oracle, base Base, d time.Time, pct decimal.Decimal) (Row, error) {
	anniv := PreviousAnniversary(d)
	vna, ok := base[anniv]
	if !ok {
		return Row{}, fmt.Errorf("%w for %s", ErrMissingBase, anniv.Format(time.DateOnly))
	}
	next := anniv.AddDate(0, 1, 0)

	duRF := cal.Count(anniv, d)
	duM := cal.Count(anniv, next)
	dcRF := int(d.Sub(anniv).Hours() / 24)
	dcM := int(next.Sub(anniv).Hours() / 24)
	if duM <= 0 || dcM <= 0 {
		return Row{}, fmt.Errorf("empty accrual period starting %s", anniv.Format(time.DateOnly))
	}

	growth := 1 + pct.InexactFloat64()/100
	return Row{
		Date:      d,
		Inflation: pct,
		VNADU:     accrue(vna, growth, float64(duRF)/float64(duM)),
		VNADC:     accrue(vna, growth, float64(dcRF)/float64(dcM)),
	}, nil
}

// accrue returns base * growth^fraction truncated to 6 decimals.
func accrue(base decimal.Decimal, growth, fraction float64) decimal.Decimal {
	return base.Mul(decimal.NewFromFloat(math.Pow(growth, fraction))).Truncate(6)
}

// Project computes the rows for every day after in.Last up to in.Today.
func Project(cal calendar.Oracle, in Inputs) ([]Row, error) {
	var rows []Row
	for _, d := range Days(cal, in.Last, in.Today) {
		pct, err := Inflation(d, in)
		if err != nil {
			return nil, err
		}
		row, err := ProjectDay(cal, in.Base, d, pct)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Frame converts rows to the projection table. No rows yield an empty
// table.
func Frame(rows []Row) dataframe.DataFrame {
	if len(rows) == 0 {
		return dataframe.DataFrame{}
	}
	b := table.NewBuilder().
		Column(ColReferenceDate, series.String).
		Column(ColInflation, series.Float).
		Column(ColVNADU, series.Float).
		Column(ColVNADC, series.Float)
	for _, r := range rows {
		// Columns are declared above; Append cannot fail.
		_ = b.Append(map[string]interface{}{
			ColReferenceDate: r.Date.Format(time.DateOnly),
			ColInflation:     r.Inflation.InexactFloat64(),
			ColVNADU:         r.VNADU.InexactFloat64(),
			ColVNADC:         r.VNADC.InexactFloat64(),
		})
	}
	return b.Build(false)
}

// LastDate returns the greatest reference date in df, or zero when df has
// no usable dates.
func LastDate(df dataframe.DataFrame) time.Time {
	if df.Ncol() == 0 || df.Nrow() == 0 {
		return time.Time{}
	}
	col := df.Col(ColReferenceDate)
	if col.Err != nil {
		return time.Time{}
	}
	var last time.Time
	for i := 0; i < col.Len(); i++ {
		e := col.Elem(i)
		if e.IsNA() {
			continue
		}
		d, err := calendar.ParseDate(e.String())
		if err != nil {
			continue
		}
		if d.After(last) {
			last = d
		}
	}
	return last
}
