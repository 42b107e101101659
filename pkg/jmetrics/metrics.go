// Package jmetrics exposes JungleDB's Prometheus instrumentation: counters
// and histograms for transaction lifecycle, flush activity, index
// maintenance and combined commits.
package jmetrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TransactionsOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jungledb_transactions_opened_total",
			Help: "Total number of transactions opened, by store and kind (root/nested)",
		},
		[]string{"store", "kind"},
	)

	TransactionsCommitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jungledb_transactions_committed_total",
			Help: "Total number of transactions committed, by store and kind",
		},
		[]string{"store", "kind"},
	)

	TransactionsAborted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jungledb_transactions_aborted_total",
			Help: "Total number of transactions aborted, by store",
		},
		[]string{"store"},
	)

	TransactionsConflicted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jungledb_transactions_conflicted_total",
			Help: "Total number of transaction commits rejected with an optimistic conflict",
		},
		[]string{"store"},
	)

	CommitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jungledb_commit_duration_seconds",
			Help:    "Time taken to validate and push a root transaction commit",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"store"},
	)

	CombinedCommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jungledb_combined_commit_duration_seconds",
			Help:    "Time taken to commit a CombinedTransaction across its member stores",
			Buckets: prometheus.DefBuckets,
		},
	)

	CombinedCommitFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jungledb_combined_commit_failures_total",
			Help: "Total number of CombinedTransaction commits that failed validation",
		},
	)

	FlushDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jungledb_flush_duration_seconds",
			Help:    "Time taken to flush the oldest committed transaction to the backend",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"store"},
	)

	CommittedStackDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jungledb_committed_stack_depth",
			Help: "Number of committed-but-unflushed transactions currently stacked on a store",
		},
		[]string{"store"},
	)

	IndexBackfillDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jungledb_index_backfill_duration_seconds",
			Help:    "Time taken to backfill a newly created index from an existing store",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"store", "index"},
	)
)

func init() {
	prometheus.MustRegister(
		TransactionsOpened,
		TransactionsCommitted,
		TransactionsAborted,
		TransactionsConflicted,
		CommitDuration,
		CombinedCommitDuration,
		CombinedCommitFailuresTotal,
		FlushDuration,
		CommittedStackDepth,
		IndexBackfillDuration,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler { return promhttp.Handler() }

// Timer measures elapsed wall-clock time for a single operation.
type Timer struct {
	start time.Time
}

// NewTimer starts a Timer.
func NewTimer() *Timer { return &Timer{start: time.Now()} }

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a labeled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the time elapsed since the timer started.
func (t *Timer) Duration() time.Duration { return time.Since(t.start) }
