// Package store persists dataset tables as compressed parquet files.
//
// Writes are atomic: the table is written to a temporary file in the target
// directory, synced and renamed over the previous file, so a failed run never
// leaves a truncated history behind. Date columns are stored with the parquet
// DATE logical type and read back as YYYY-MM-DD strings. An optional gzip CSV
// snapshot can be written next to the parquet file.
package store
