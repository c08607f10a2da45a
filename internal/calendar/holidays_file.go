package calendar

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

var holidayLayouts = []string{time.DateOnly, "02/01/2006"}

// LoadHolidays reads extra market closures from a CSV file. The dates are
// taken from a "date" or "Data" column, or from the first column when
// neither exists, in YYYY-MM-DD or DD/MM/YYYY form. Blank rows are skipped.
func LoadHolidays(path string) ([]time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open holidays file: %w", err)
	}
	defer f.Close()

	df := dataframe.ReadCSV(f, dataframe.DetectTypes(false), dataframe.DefaultType(series.String))
	if df.Err != nil {
		return nil, fmt.Errorf("read holidays file: %w", df.Err)
	}

	col := ""
	for _, name := range df.Names() {
		if strings.EqualFold(name, "date") || strings.EqualFold(name, "data") {
			col = name
			break
		}
	}
	if col == "" {
		if df.Ncol() == 0 {
			return nil, fmt.Errorf("holidays file %s has no columns", path)
		}
		col = df.Names()[0]
	}

	var out []time.Time
	for _, raw := range df.Col(col).Records() {
		raw = strings.TrimSpace(raw)
		if raw == "" || raw == "NaN" {
			continue
		}
		d, err := ParseDate(raw)
		if err != nil {
			return nil, fmt.Errorf("holidays file %s: %w", path, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// ParseDate parses a civil date in YYYY-MM-DD or DD/MM/YYYY form.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range holidayLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}
