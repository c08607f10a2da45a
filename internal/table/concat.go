package table

import (
	"fmt"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// Concat stacks the rows of b under the rows of a over the union of their
// columns: a's columns first, then the columns only b has. Cells of a column
// missing on one side are null, and nulls on either side stay null.
func Concat(a, b dataframe.DataFrame) (dataframe.DataFrame, error) {
	names := a.Names()
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		seen[n] = true
	}
	for _, n := range b.Names() {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}

	cols := make([]series.Series, 0, len(names))
	for _, name := range names {
		ca, okA := column(a, name)
		cb, okB := column(b, name)

		var t series.Type
		switch {
		case okA && okB:
			t = Widen(ca.Type(), cb.Type())
		case okA:
			t = ca.Type()
		default:
			t = cb.Type()
		}

		vals := make([]interface{}, 0, a.Nrow()+b.Nrow())
		vals = appendCells(vals, ca, okA, a.Nrow(), t)
		vals = appendCells(vals, cb, okB, b.Nrow(), t)
		cols = append(cols, series.New(vals, t, name))
	}

	out := dataframe.New(cols...)
	if out.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("concat: %w", out.Err)
	}
	return out, nil
}

func column(df dataframe.DataFrame, name string) (series.Series, bool) {
	for _, n := range df.Names() {
		if n == name {
			return df.Col(name), true
		}
	}
	return series.Series{}, false
}

// Widen returns the type able to hold values of both a and b: String if
// either is String, else Float if either is Float, else Int if either is
// Int, else Bool.
func Widen(a, b series.Type) series.Type {
	switch {
	case a == b:
		return a
	case a == series.String || b == series.String:
		return series.String
	case a == series.Float || b == series.Float:
		return series.Float
	case a == series.Int || b == series.Int:
		return series.Int
	}
	return series.Bool
}

func appendCells(vals []interface{}, s series.Series, ok bool, n int, t series.Type) []interface{} {
	if !ok {
		for i := 0; i < n; i++ {
			vals = append(vals, nil)
		}
		return vals
	}
	for i := 0; i < n; i++ {
		vals = append(vals, cell(s.Elem(i), t))
	}
	return vals
}

// cell converts e to a value series.New stores as type t. Nulls become nil.
func cell(e series.Element, t series.Type) interface{} {
	if e.IsNA() {
		return nil
	}
	switch t {
	case series.Float:
		return e.Float()
	case series.Int:
		v, err := e.Int()
		if err != nil {
			return nil
		}
		return v
	case series.Bool:
		v, err := e.Bool()
		if err != nil {
			return nil
		}
		return v
	}
	if e.Type() == series.Float {
		return formatFloat(e.Float())
	}
	return e.String()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
