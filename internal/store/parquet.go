package store

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
)

const secondsPerDay = 24 * 60 * 60

// columnKind is how a column is represented on both sides.
type columnKind int

const (
	kindString columnKind = iota
	kindDate
	kindInt
	kindFloat
	kindBool
)

func (k columnKind) seriesType() series.Type {
	switch k {
	case kindInt:
		return series.Int
	case kindFloat:
		return series.Float
	case kindBool:
		return series.Bool
	}
	return series.String
}

func (k columnKind) node() parquet.Node {
	switch k {
	case kindDate:
		return parquet.Date()
	case kindInt:
		return parquet.Leaf(parquet.Int64Type)
	case kindFloat:
		return parquet.Leaf(parquet.DoubleType)
	case kindBool:
		return parquet.Leaf(parquet.BooleanType)
	}
	return parquet.String()
}

func kindFromSeries(t series.Type, date bool) columnKind {
	switch t {
	case series.Int:
		return kindInt
	case series.Float:
		return kindFloat
	case series.Bool:
		return kindBool
	}
	if date {
		return kindDate
	}
	return kindString
}

func kindFromParquet(t parquet.Type) columnKind {
	switch t.Kind() {
	case parquet.Boolean:
		return kindBool
	case parquet.Int32:
		if lt := t.LogicalType(); lt != nil && lt.Date != nil {
			return kindDate
		}
		return kindInt
	case parquet.Int64:
		return kindInt
	case parquet.Float, parquet.Double:
		return kindFloat
	}
	return kindString
}

func encode(w io.Writer, df dataframe.DataFrame, dateColumns []string, codec compress.Codec) error {
	isDate := make(map[string]bool, len(dateColumns))
	for _, c := range dateColumns {
		isDate[c] = true
	}

	names := df.Names()
	types := df.Types()
	kinds := make([]columnKind, len(names))
	group := make(parquet.Group, len(names))
	for i, name := range names {
		kinds[i] = kindFromSeries(types[i], isDate[name])
		group[name] = parquet.Optional(kinds[i].node())
	}
	schema := parquet.NewSchema("table", group)

	index := make(map[string]int, len(names))
	for _, path := range schema.Columns() {
		leaf, ok := schema.Lookup(path...)
		if !ok {
			return fmt.Errorf("schema lookup %v", path)
		}
		index[path[0]] = leaf.ColumnIndex
	}

	pw := parquet.NewWriter(w, schema,
		parquet.Compression(codec),
		parquet.KeyValueMetadata(columnOrderKey, encodeColumnOrder(names)),
	)

	cols := make([]series.Series, len(names))
	for i, name := range names {
		cols[i] = df.Col(name)
	}

	batch := make([]parquet.Row, 0, readBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := pw.WriteRows(batch); err != nil {
			return fmt.Errorf("write rows: %w", err)
		}
		batch = batch[:0]
		return nil
	}

	for r := 0; r < df.Nrow(); r++ {
		row := make(parquet.Row, len(names))
		for i, name := range names {
			col := index[name]
			v, err := toValue(cols[i].Elem(r), kinds[i])
			if err != nil {
				return fmt.Errorf("column %s row %d: %w", name, r, err)
			}
			if v.IsNull() {
				row[col] = v.Level(0, 0, col)
			} else {
				row[col] = v.Level(0, 1, col)
			}
		}
		batch = append(batch, row)
		if len(batch) == cap(batch) {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

func toValue(e series.Element, kind columnKind) (parquet.Value, error) {
	if e.IsNA() {
		return parquet.NullValue(), nil
	}
	switch kind {
	case kindDate:
		d, err := time.Parse(time.DateOnly, e.String())
		if err != nil {
			return parquet.Value{}, fmt.Errorf("invalid date %q", e.String())
		}
		return parquet.Int32Value(int32(d.Unix() / secondsPerDay)), nil
	case kindInt:
		n, err := e.Int()
		if err != nil {
			return parquet.Value{}, err
		}
		return parquet.Int64Value(int64(n)), nil
	case kindFloat:
		return parquet.DoubleValue(e.Float()), nil
	case kindBool:
		b, err := e.Bool()
		if err != nil {
			return parquet.Value{}, err
		}
		return parquet.BooleanValue(b), nil
	}
	return parquet.ByteArrayValue([]byte(e.String())), nil
}

func fromValue(v parquet.Value, kind columnKind) interface{} {
	switch kind {
	case kindDate:
		return time.Unix(int64(v.Int32())*secondsPerDay, 0).UTC().Format(time.DateOnly)
	case kindInt:
		if v.Kind() == parquet.Int32 {
			return int(v.Int32())
		}
		return int(v.Int64())
	case kindFloat:
		if v.Kind() == parquet.Float {
			return float64(v.Float())
		}
		return v.Double()
	case kindBool:
		return v.Boolean()
	}
	return string(v.ByteArray())
}

func decode(r io.ReaderAt, size int64) (dataframe.DataFrame, error) {
	f, err := parquet.OpenFile(r, size)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("open parquet: %w", err)
	}

	schema := f.Schema()
	paths := schema.Columns()
	names := make([]string, len(paths))
	kinds := make([]columnKind, len(paths))
	for _, path := range paths {
		leaf, ok := schema.Lookup(path...)
		if !ok {
			return dataframe.DataFrame{}, fmt.Errorf("schema lookup %v", path)
		}
		names[leaf.ColumnIndex] = path[len(path)-1]
		kinds[leaf.ColumnIndex] = kindFromParquet(leaf.Node.Type())
	}

	values := make([][]interface{}, len(paths))
	reader := parquet.NewReader(f)
	defer reader.Close()

	buf := make([]parquet.Row, readBatch)
	for {
		n, err := reader.ReadRows(buf)
		for _, row := range buf[:n] {
			for c := range values {
				values[c] = append(values[c], nil)
			}
			for _, v := range row {
				c := v.Column()
				if c < 0 || c >= len(values) || v.IsNull() {
					continue
				}
				values[c][len(values[c])-1] = fromValue(v, kinds[c])
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return dataframe.DataFrame{}, fmt.Errorf("read rows: %w", err)
		}
	}

	order := names
	if meta, ok := f.Lookup(columnOrderKey); ok {
		if stored, err := decodeColumnOrder(meta); err == nil && len(stored) == len(names) {
			order = stored
		}
	}

	position := make(map[string]int, len(names))
	for i, n := range names {
		position[n] = i
	}

	cols := make([]series.Series, 0, len(order))
	for _, name := range order {
		i, ok := position[name]
		if !ok {
			return dataframe.DataFrame{}, fmt.Errorf("column order names unknown column %q", name)
		}
		vals := values[i]
		if vals == nil {
			vals = []interface{}{}
		}
		cols = append(cols, series.New(vals, kinds[i].seriesType(), name))
	}
	if len(cols) == 0 {
		return dataframe.DataFrame{}, nil
	}
	df := dataframe.New(cols...)
	return df, df.Err
}

// DateColumns reports which columns of a parquet file carry the
// DATE logical type.
func DateColumns(r io.ReaderAt, size int64) ([]string, error) {
	f, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	schema := f.Schema()
	var out []string
	for _, path := range schema.Columns() {
		leaf, ok := schema.Lookup(path...)
		if ok && kindFromParquet(leaf.Node.Type()) == kindDate {
			out = append(out, path[len(path)-1])
		}
	}
	return out, nil
}
