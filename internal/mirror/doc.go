// Package mirror copies dataset rows into PostgreSQL and records update
// runs in a ledger table.
//
// Each dataset gets a table named after it with a primary key on the
// natural key. Rows are upserted with INSERT ... ON CONFLICT DO UPDATE so
// the table converges to the parquet file. Columns that appear later are
// added with ALTER TABLE ... ADD COLUMN IF NOT EXISTS.
package mirror
