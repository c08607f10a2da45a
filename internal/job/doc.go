// Package job runs one update of every enabled dataset.
//
// A run resolves the target trading date, skips the year-end days without
// a session, and updates the datasets concurrently. Each dataset carries
// its own failure policy: "fail" datasets make the run return an error,
// "log" datasets are only logged. Outcomes go to Prometheus and, when the
// database mirror is enabled, to the update_runs ledger.
package job
