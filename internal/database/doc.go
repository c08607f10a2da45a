// Package database opens the PostgreSQL pool used by the optional dataset
// mirror.
//
// Parquet files stay the source of truth. The mirror keeps a queryable
// copy of every dataset plus a ledger of update runs.
package database
