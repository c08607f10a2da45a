package vna

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/shopspring/decimal"

	"github.com/rickgao/brmarket-history/internal/calendar"
)

// Base holds the official VNA on anniversary dates.
type Base map[time.Time]decimal.Decimal

// LoadBase reads the base VNA file, a CSV with reference_date and vna
// columns.
func LoadBase(path string) (Base, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open VNA base: %w", err)
	}
	defer f.Close()

	df := dataframe.ReadCSV(f, dataframe.DetectTypes(false), dataframe.DefaultType(series.String))
	if df.Err != nil {
		return nil, fmt.Errorf("read VNA base: %w", df.Err)
	}
	return BaseFromFrame(df)
}

// BaseFromFrame builds a Base from a table with reference_date and vna
// columns.
func BaseFromFrame(df dataframe.DataFrame) (Base, error) {
	dates := df.Col(ColReferenceDate)
	if dates.Err != nil {
		return nil, fmt.Errorf("VNA base: %w", dates.Err)
	}
	values := df.Col(colVNA)
	if values.Err != nil {
		return nil, fmt.Errorf("VNA base: %w", values.Err)
	}

	base := make(Base, df.Nrow())
	for i := 0; i < df.Nrow(); i++ {
		rawDate := strings.TrimSpace(dates.Elem(i).String())
		if len(rawDate) > 10 {
			rawDate = rawDate[:10]
		}
		d, err := calendar.ParseDate(rawDate)
		if err != nil {
			return nil, fmt.Errorf("VNA base row %d: %w", i+1, err)
		}
		v, err := decimal.NewFromString(strings.TrimSpace(values.Elem(i).String()))
		if err != nil {
			return nil, fmt.Errorf("VNA base row %d: invalid vna %q", i+1, values.Elem(i).String())
		}
		base[d] = v
	}
	return base, nil
}
