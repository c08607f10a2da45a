package table

import (
	"fmt"
	"math"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// Builder accumulates typed columns row by row. Providers use it to turn
// parsed records into a dataframe while keeping explicit nulls.
type Builder struct {
	names []string
	types []series.Type
	cols  [][]interface{}
	index map[string]int
	rows  int
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{index: make(map[string]int)}
}

// Column declares a column. Declaring an existing column is a no-op.
func (b *Builder) Column(name string, t series.Type) *Builder {
	if _, ok := b.index[name]; ok {
		return b
	}
	b.index[name] = len(b.names)
	b.names = append(b.names, name)
	b.types = append(b.types, t)
	b.cols = append(b.cols, make([]interface{}, b.rows))
	return b
}

// Append adds a row. Values for undeclared columns are an error; declared
// columns missing from row are null. A nil value, a NaN float or a nil
// pointer is null.
func (b *Builder) Append(row map[string]interface{}) error {
	for name := range row {
		if _, ok := b.index[name]; !ok {
			return fmt.Errorf("append row: undeclared column %q", name)
		}
	}
	for i, name := range b.names {
		b.cols[i] = append(b.cols[i], nullable(row[name]))
	}
	b.rows++
	return nil
}

// Len returns the number of appended rows.
func (b *Builder) Len() int {
	return b.rows
}

// Build returns the dataframe. Columns whose values are all null are dropped
// when dropEmpty is set.
func (b *Builder) Build(dropEmpty bool) dataframe.DataFrame {
	cols := make([]series.Series, 0, len(b.names))
	for i, name := range b.names {
		if dropEmpty && allNull(b.cols[i]) {
			continue
		}
		cols = append(cols, series.New(b.cols[i], b.types[i], name))
	}
	if len(cols) == 0 {
		return dataframe.DataFrame{}
	}
	return dataframe.New(cols...)
}

func nullable(v interface{}) interface{} {
	switch x := v.(type) {
	case nil:
		return nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
	case *float64:
		if x == nil {
			return nil
		}
		return nullable(*x)
	case *int:
		if x == nil {
			return nil
		}
		return *x
	case *string:
		if x == nil {
			return nil
		}
		return *x
	}
	return v
}

func allNull(vals []interface{}) bool {
	for _, v := range vals {
		if v != nil {
			return false
		}
	}
	return true
}
