// Package scheduler runs the daily update at fixed wall-clock times in the
// market timezone. A run that fails is logged; the next scheduled time is
// unaffected.
package scheduler
