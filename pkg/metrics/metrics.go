// Package metrics provides the Prometheus registry reference for the loader,
// an HTTP exposition handler for serve mode, and a Pushgateway push for
// batch runs. All metrics are defined in their respective packages (client,
// pagination, loader, quota, runlog) via promauto.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Registry is the default Prometheus registry used by the loader.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer collects the metrics registered on Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics exposition handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Push sends every gathered metric to the Pushgateway at url under job,
// replacing the job's previous group. Batch runs exit before a scrape could
// reach them, so they push once at the end instead.
func Push(ctx context.Context, url, job string, grouping map[string]string) error {
	if url == "" {
		return fmt.Errorf("pushgateway url is required")
	}
	if job == "" {
		return fmt.Errorf("job name is required")
	}

	pusher := push.New(url, job).Gatherer(Gatherer)
	for name, value := range grouping {
		pusher = pusher.Grouping(name, value)
	}

	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - yelp_requests_total{operation, status} (Counter): Requests by operation and HTTP status
//   - yelp_request_duration_seconds{operation} (Histogram): Request duration by operation
//   - yelp_errors_total{class} (Counter): Errors by class (client, server, network, graphql, decode)
//
// Pagination Metrics (pkg/pagination):
//   - yelp_pages_fetched_total (Counter): Search pages fetched successfully
//   - yelp_pagination_stops_total{reason} (Counter): Collections by stop reason
//   - yelp_collect_duration_seconds (Histogram): Full collection duration
//
// Load Metrics (pkg/loader):
//   - yelp_rows_loaded_total{table} (Counter): Rows appended by target table
//   - yelp_load_duration_seconds{table} (Histogram): Load transaction duration
//
// Quota Metrics (pkg/quota):
//   - yelp_quota_daily_limit (Gauge): Daily call limit from the last response
//   - yelp_quota_remaining (Gauge): Calls remaining today
//   - yelp_quota_low_total (Counter): Responses seen below the low watermark
//
// Run Log Metrics (pkg/runlog):
//   - yelp_runs_recorded_total{complete} (Counter): Runs recorded by completeness
//   - yelp_runlog_errors_total{operation} (Counter): Run log Redis errors
//
// Example Prometheus Queries:
//
//   # Partial collections in the last day
//   sum(increase(yelp_pagination_stops_total{reason="fetch_error"}[1d]))
//
//   # Quota headroom
//   yelp_quota_remaining / yelp_quota_daily_limit
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(yelp_request_duration_seconds_bucket[5m]))
