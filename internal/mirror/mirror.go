package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/brmarket-history/internal/dataset"
)

// DefaultBatchSize is the number of upserts sent per round trip.
const DefaultBatchSize = 500

// DB is the subset of *pgxpool.Pool the mirror uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Metrics counts mirror activity.
type Metrics struct {
	Rows    int64
	Flushes int64
	Errors  int64
}

// Mirror upserts dataset rows into PostgreSQL.
type Mirror struct {
	db        DB
	logger    *slog.Logger
	batchSize int

	mu      sync.Mutex
	metrics Metrics
}

// New creates a Mirror. A non-positive batchSize uses DefaultBatchSize.
func New(db DB, batchSize int, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Mirror{db: db, batchSize: batchSize, logger: logger}
}

// Stats returns current metrics.
func (m *Mirror) Stats() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metrics
}

// Sync creates or widens the dataset table and upserts rows into it.
func (m *Mirror) Sync(ctx context.Context, cfg dataset.Config, rows dataframe.DataFrame) error {
	if rows.Nrow() == 0 {
		return nil
	}
	table := TableName(cfg.Name)
	cols := columns(rows, cfg.DateColumns)

	if err := m.ensureTable(ctx, table, cols, cfg.Keys); err != nil {
		m.count(0, err)
		return err
	}

	start := time.Now()
	stmt := upsertSQL(table, cols, cfg.Keys)
	values, err := rowValues(rows, cfg.DateColumns)
	if err != nil {
		m.count(0, err)
		return err
	}

	for lo := 0; lo < len(values); lo += m.batchSize {
		hi := min(lo+m.batchSize, len(values))
		if err := m.flush(ctx, stmt, values[lo:hi]); err != nil {
			m.count(0, err)
			return fmt.Errorf("mirror %s: %w", table, err)
		}
		m.count(hi-lo, nil)
	}

	m.logger.Debug("mirrored rows",
		"table", table,
		"count", len(values),
		"duration", time.Since(start),
	)
	return nil
}

func (m *Mirror) count(rows int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.metrics.Errors++
		return
	}
	m.metrics.Rows += int64(rows)
	m.metrics.Flushes++
}

func (m *Mirror) ensureTable(ctx context.Context, table string, cols []column, keys []string) error {
	if _, err := m.db.Exec(ctx, createTableSQL(table, cols, keys)); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	for _, c := range cols {
		if _, err := m.db.Exec(ctx, addColumnSQL(table, c)); err != nil {
			return fmt.Errorf("add column %s.%s: %w", table, c.Name, err)
		}
	}
	return nil
}

// flush sends one batch of upserts.
func (m *Mirror) flush(ctx context.Context, stmt string, rows [][]any) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(stmt, r...)
	}

	results := m.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// rowValues converts the dataframe into query arguments. Nulls become nil
// and date columns become time.Time.
func rowValues(df dataframe.DataFrame, dateColumns []string) ([][]any, error) {
	isDate := make(map[string]bool, len(dateColumns))
	for _, c := range dateColumns {
		isDate[c] = true
	}
	names := df.Names()
	cols := make([]series.Series, len(names))
	for i, n := range names {
		cols[i] = df.Col(n)
	}

	out := make([][]any, df.Nrow())
	for r := range out {
		row := make([]any, len(cols))
		for c, col := range cols {
			v, err := value(col.Elem(r), col.Type(), isDate[names[c]])
			if err != nil {
				return nil, fmt.Errorf("column %s row %d: %w", names[c], r, err)
			}
			row[c] = v
		}
		out[r] = row
	}
	return out, nil
}

func value(e series.Element, t series.Type, date bool) (any, error) {
	if e.IsNA() {
		return nil, nil
	}
	switch t {
	case series.Int:
		n, err := e.Int()
		return int64(n), err
	case series.Float:
		return e.Float(), nil
	case series.Bool:
		return e.Bool()
	}
	if date {
		d, err := time.Parse(time.DateOnly, e.String())
		if err != nil {
			return nil, fmt.Errorf("invalid date %q", e.String())
		}
		return d, nil
	}
	return e.String(), nil
}
