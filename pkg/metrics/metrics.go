// Package metrics provides the Prometheus registry and HTTP handler for the
// data modeling client. All metrics are defined in their respective packages
// (client, batch, pagination, ratelimit) to maintain modularity and avoid
// circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer matching Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves every registered metric in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - dm_requests_total{endpoint, status} (Counter): Attempts by endpoint and HTTP status ("network_error" for transport failures)
//   - dm_request_duration_seconds{endpoint} (Histogram): Logical request duration including retries
//   - dm_errors_total{class} (Counter): Failed attempts by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - dm_retries_total{failure_kind} (Counter): Retry attempts by failure kind
//   - dm_retry_backoff_seconds{failure_kind} (Histogram): Backoff before each retry
//   - dm_retry_exhausted_total{failure_kind} (Counter): Requests that ran out of retries
//
// Batch Metrics (pkg/batch):
//   - dm_batch_chunks_total{result} (Counter): Chunks by outcome (success, failed_response, failed_request)
//   - dm_batch_duration_seconds (Histogram): Duration of a batch call across all chunks
//
// Pagination Metrics (pkg/pagination):
//   - dm_pages_fetched_total (Counter): Pages fetched
//   - dm_page_items_total (Counter): Items received in pages
//
// Cooldown Metrics (pkg/ratelimit):
//   - dm_rate_limit_cooldowns_recorded_total (Counter): Retry-After cooldowns stored in Redis
//   - dm_rate_limit_cooldown_waits_total (Counter): Requests delayed by an active shared cooldown
//   - dm_rate_limit_cooldown_remaining_seconds (Gauge): Remaining seconds of the last observed cooldown
//
// Example Prometheus Queries:
//
//   # Retry rate by failure kind
//   sum by (failure_kind) (rate(dm_retries_total[5m]))
//
//   # Share of chunks that failed
//   sum(rate(dm_batch_chunks_total{result!="success"}[5m])) / sum(rate(dm_batch_chunks_total[5m]))
//
//   # Request Error Rate
//   rate(dm_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(dm_request_duration_seconds_bucket[5m]))
//
//   # Time spent throttled by the server
//   dm_rate_limit_cooldown_remaining_seconds > 0
