// Package table implements the upsert-merge used by every dataset:
// diagonal concatenation of the stored history with freshly fetched rows,
// deduplication on a natural key keeping the newest row, and a stable sort
// by that key.
//
// Tables are gota dataframes. Nulls are gota NaN elements.
package table
