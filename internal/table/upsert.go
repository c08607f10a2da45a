package table

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// ErrMissingColumn is returned when a requested column does not exist.
var ErrMissingColumn = errors.New("missing column")

// keySep never appears in rendered key values.
const keySep = "\x1f"

// Upsert merges incoming into existing. The result has one row per distinct
// key tuple, the incoming row winning over the stored one, and is sorted
// ascending by keys. Columns present on only one side are kept and filled
// with nulls on the other; a column typed differently on the two sides
// takes the wider of both types (see Widen).
func Upsert(existing, incoming dataframe.DataFrame, keys []string) (dataframe.DataFrame, error) {
	if len(keys) == 0 {
		return dataframe.DataFrame{}, errors.New("upsert: no key columns")
	}
	if existing.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("upsert: existing table: %w", existing.Err)
	}
	if incoming.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("upsert: incoming table: %w", incoming.Err)
	}

	var merged dataframe.DataFrame
	switch {
	case existing.Ncol() == 0:
		merged = incoming
	case incoming.Ncol() == 0:
		merged = existing
	default:
		var err error
		merged, err = Concat(existing, incoming)
		if err != nil {
			return dataframe.DataFrame{}, fmt.Errorf("upsert: %w", err)
		}
	}

	return Normalize(merged, keys)
}

// Normalize deduplicates df on keys keeping the last occurrence and sorts it
// ascending by keys.
func Normalize(df dataframe.DataFrame, keys []string) (dataframe.DataFrame, error) {
	if err := RequireColumns(df, keys...); err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("upsert: %w", err)
	}
	if df.Nrow() == 0 {
		return df, nil
	}

	cols := make([]series.Series, len(keys))
	for i, k := range keys {
		cols[i] = df.Col(k)
	}

	last := make(map[string]int, df.Nrow())
	var b strings.Builder
	for row := 0; row < df.Nrow(); row++ {
		b.Reset()
		for i, col := range cols {
			if i > 0 {
				b.WriteString(keySep)
			}
			e := col.Elem(row)
			if e.IsNA() {
				b.WriteString("\x00")
			} else {
				b.WriteString(e.String())
			}
		}
		last[b.String()] = row
	}

	rows := make([]int, 0, len(last))
	for _, row := range last {
		rows = append(rows, row)
	}
	sort.Ints(rows)
	sort.SliceStable(rows, func(i, j int) bool {
		return lessRow(cols, rows[i], rows[j])
	})

	out := df.Subset(rows)
	if out.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("upsert: subset: %w", out.Err)
	}
	return out, nil
}

// lessRow compares two rows by key columns. Nulls sort last.
func lessRow(cols []series.Series, a, b int) bool {
	for _, col := range cols {
		ea, eb := col.Elem(a), col.Elem(b)
		switch {
		case ea.IsNA() && eb.IsNA():
			continue
		case ea.IsNA():
			return false
		case eb.IsNA():
			return true
		case ea.Less(eb):
			return true
		case eb.Less(ea):
			return false
		}
	}
	return false
}

// IsEmpty reports whether df has no columns or no rows.
func IsEmpty(df dataframe.DataFrame) bool {
	return df.Ncol() == 0 || df.Nrow() == 0
}

// RequireColumns returns an error wrapping ErrMissingColumn naming every
// absent column.
func RequireColumns(df dataframe.DataFrame, names ...string) error {
	have := make(map[string]struct{}, df.Ncol())
	for _, n := range df.Names() {
		have[n] = struct{}{}
	}
	var missing []string
	for _, n := range names {
		if _, ok := have[n]; !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return nil
}
