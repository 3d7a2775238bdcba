// Package metrics exposes Prometheus collectors for the ingest pipeline.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	upstreamRequestsTotal *prometheus.CounterVec
	upstreamRetriesTotal  prometheus.Counter
	cacheLookupsTotal     *prometheus.CounterVec
	seriesProcessedTotal  *prometheus.CounterVec
	issuesUpsertedTotal   prometheus.Counter
	issuesSkippedTotal    prometheus.Counter

	once sync.Once
)

// Init registers the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		upstreamRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_upstream_requests_total",
				Help: "Upstream API requests, labeled by endpoint and outcome.",
			},
			[]string{"endpoint", "outcome"},
		)
		upstreamRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_upstream_retries_total",
				Help: "Retried upstream requests after 5xx or timeout.",
			},
		)
		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_cache_lookups_total",
				Help: "Response cache lookups, labeled hit or miss.",
			},
			[]string{"result"},
		)
		seriesProcessedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_series_processed_total",
				Help: "Series processed per run, labeled by outcome.",
			},
			[]string{"outcome"},
		)
		issuesUpsertedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_issues_upserted_total",
				Help: "Issue rows inserted or updated.",
			},
		)
		issuesSkippedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_issues_skipped_total",
				Help: "Issues skipped for missing identifying data.",
			},
		)
	})
}

// ObserveUpstreamRequest counts one upstream request attempt.
func ObserveUpstreamRequest(endpoint, outcome string) {
	if upstreamRequestsTotal != nil {
		upstreamRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
	}
}

// ObserveUpstreamRetry counts a retried request.
func ObserveUpstreamRetry() {
	if upstreamRetriesTotal != nil {
		upstreamRetriesTotal.Inc()
	}
}

// ObserveCacheLookup counts a cache hit or miss.
func ObserveCacheLookup(hit bool) {
	if cacheLookupsTotal == nil {
		return
	}
	if hit {
		cacheLookupsTotal.WithLabelValues("hit").Inc()
	} else {
		cacheLookupsTotal.WithLabelValues("miss").Inc()
	}
}

// ObserveSeriesOutcome counts one processed series by outcome.
func ObserveSeriesOutcome(outcome string) {
	if seriesProcessedTotal != nil {
		seriesProcessedTotal.WithLabelValues(outcome).Inc()
	}
}

// ObserveIssueUpserted counts one upserted issue row.
func ObserveIssueUpserted() {
	if issuesUpsertedTotal != nil {
		issuesUpsertedTotal.Inc()
	}
}

// ObserveIssueSkipped counts one skipped issue.
func ObserveIssueSkipped() {
	if issuesSkippedTotal != nil {
		issuesSkippedTotal.Inc()
	}
}
