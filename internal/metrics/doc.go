// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Rows stored and fetched per dataset
//   - Last successful update time per dataset
//   - Update failures and mirror failures
//   - Update duration
//   - Runs by outcome
//
// A one-shot run pushes to a Pushgateway; the daemon serves /metrics.
package metrics
