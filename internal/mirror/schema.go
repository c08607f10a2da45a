package mirror

import (
	"fmt"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/jackc/pgx/v5"
)

// column is a table column with its SQL type.
type column struct {
	Name string
	Type string
}

// TableName returns the mirror table of a dataset.
func TableName(dataset string) string {
	return strings.ToLower(strings.NewReplacer("-", "_", " ", "_", ".", "_").Replace(dataset))
}

func quote(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// columns maps the dataframe schema to SQL types.
func columns(df dataframe.DataFrame, dateColumns []string) []column {
	isDate := make(map[string]bool, len(dateColumns))
	for _, c := range dateColumns {
		isDate[c] = true
	}
	names := df.Names()
	types := df.Types()
	cols := make([]column, len(names))
	for i, name := range names {
		cols[i] = column{Name: name, Type: sqlType(types[i], isDate[name])}
	}
	return cols
}

func sqlType(t series.Type, date bool) string {
	switch t {
	case series.Int:
		return "BIGINT"
	case series.Float:
		return "DOUBLE PRECISION"
	case series.Bool:
		return "BOOLEAN"
	}
	if date {
		return "DATE"
	}
	return "TEXT"
}

func createTableSQL(table string, cols []column, keys []string) string {
	defs := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		defs = append(defs, quote(c.Name)+" "+c.Type)
	}
	defs = append(defs, "PRIMARY KEY ("+quoteAll(keys)+")")
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quote(table), strings.Join(defs, ", "))
}

func addColumnSQL(table string, c column) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s", quote(table), quote(c.Name), c.Type)
}

func upsertSQL(table string, cols []column, keys []string) string {
	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		isKey[k] = true
	}

	names := make([]string, len(cols))
	params := make([]string, len(cols))
	var sets []string
	for i, c := range cols {
		names[i] = quote(c.Name)
		params[i] = fmt.Sprintf("$%d", i+1)
		if !isKey[c.Name] {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", quote(c.Name), quote(c.Name)))
		}
	}

	action := "DO NOTHING"
	if len(sets) > 0 {
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) %s",
		quote(table), strings.Join(names, ", "), strings.Join(params, ", "), quoteAll(keys), action)
}

func quoteAll(names []string) string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = quote(n)
	}
	return strings.Join(out, ", ")
}
