// Package metrics provides the centralized Prometheus metrics registry for
// the tracker. All metrics are defined in their respective packages
// (ratelimit, torn, batch, tracker) to maintain modularity and avoid
// circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the tracker.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - torn_limiter_grants_total (Counter): Calls granted by the rate limiter
//   - torn_limiter_wait_seconds (Histogram): Time callers spent waiting for a grant
//   - torn_limiter_penalties_total (Counter): Cooldown penalties applied
//   - torn_limiter_cooldown_seconds (Gauge): Remaining cooldown window
//
// Request Metrics (pkg/torn):
//   - torn_requests_total{outcome} (Counter): Fetches by outcome (ok, error, cancelled, exhausted)
//   - torn_request_duration_seconds (Histogram): End-to-end fetch duration including retries
//   - torn_errors_total{class} (Counter): Errors by class (network, server, rate_limit, ...)
//
// Retry Metrics (pkg/torn):
//   - torn_retries_total{error_class} (Counter): Retry attempts by error class
//   - torn_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - torn_retry_exhausted_total (Counter): Fetches that exhausted max attempts
//
// Batch Metrics (pkg/batch):
//   - torn_batch_runs_total (Counter): Batch runs started
//   - torn_batch_targets_total (Counter): Targets processed across all batches
//   - torn_batch_failures_total (Counter): Targets finishing with an error record
//   - torn_batch_duration_seconds (Histogram): Wall-clock batch duration
//   - torn_batch_panics_total (Counter): Panics recovered at the worker boundary
//
// Tracker Metrics (pkg/tracker):
//   - torn_tracker_results_applied_total (Counter): Results merged into the live store
//   - torn_tracker_results_discarded_total (Counter): Stale results discarded
//   - torn_tracker_saves_total (Counter): Snapshot persistence calls
//   - torn_tracker_save_failures_total (Counter): Failed persistence calls
//   - torn_tracker_refreshes_total (Counter): Refresh runs started
//   - torn_tracker_refreshes_skipped_total (Counter): Auto-refresh ticks skipped
//
// Example Prometheus Queries:
//
//   # Fetch Error Rate
//   rate(torn_errors_total[5m])
//
//   # P95 Fetch Latency (including retries)
//   histogram_quantile(0.95, rate(torn_request_duration_seconds_bucket[5m]))
//
//   # Limiter Pressure
//   histogram_quantile(0.95, rate(torn_limiter_wait_seconds_bucket[5m]))
//
//   # Share of Targets Failing
//   rate(torn_batch_failures_total[15m]) / rate(torn_batch_targets_total[15m])
