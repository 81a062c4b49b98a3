// Package observability declares the run's Prometheus metrics, in the
// same promauto style as the teacher's control_plane/observability
// package. Because this process is one-shot rather than a long-lived
// server, the metrics are registered against a private registry and
// pushed to an optional Pushgateway right before exit instead of being
// served over HTTP.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds every counter/gauge/histogram the run records.
type Metrics struct {
	registry *prometheus.Registry

	TasksGenerated *prometheus.CounterVec
	TasksInserted  prometheus.Counter

	QueueDepth       prometheus.Gauge
	QueuePublishedTotal prometheus.Counter

	ProbeDuration     *prometheus.HistogramVec
	ProbeResultsTotal *prometheus.CounterVec

	LedgerBulkUpdateSeconds   prometheus.Histogram
	LedgerBulkUpdateBatchSize prometheus.Histogram

	PromotedRowsTotal prometheus.Counter

	RunDurationSeconds prometheus.Gauge
}

// New registers every metric against a fresh, private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		TasksGenerated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dnsbl_tasks_generated_total",
			Help: "Total number of ip/dns task seeds produced by the generator",
		}, []string{"zone"}),

		TasksInserted: factory.NewCounter(prometheus.CounterOpts{
			Name: "dnsbl_tasks_inserted_total",
			Help: "Total number of ledger rows inserted as pending this run",
		}),

		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dnsbl_queue_depth",
			Help: "Number of pending messages published to the work queue this run",
		}),

		QueuePublishedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "dnsbl_queue_publish_total",
			Help: "Total number of messages published to the work queue",
		}),

		ProbeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dnsbl_probe_duration_seconds",
			Help:    "Duration of a single DNSBL probe, by terminal result",
			Buckets: prometheus.DefBuckets,
		}, []string{"result"}),

		ProbeResultsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dnsbl_probe_results_total",
			Help: "Total number of probes completed, by terminal result",
		}, []string{"result"}),

		LedgerBulkUpdateSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dnsbl_ledger_bulk_update_seconds",
			Help:    "Duration of a single Ledger.BulkUpdate call",
			Buckets: prometheus.DefBuckets,
		}),

		LedgerBulkUpdateBatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dnsbl_ledger_bulk_update_batch_size",
			Help:    "Number of rows drained per Ledger.BulkUpdate call",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),

		PromotedRowsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "dnsbl_promoted_rows_total",
			Help: "Total number of listed rows upserted into the analytic store",
		}),

		RunDurationSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dnsbl_run_duration_seconds",
			Help: "Wall-clock duration of the most recent run",
		}),
	}
}

// Push flushes the registry to a Pushgateway at url, if url is
// non-empty. Errors are returned for the caller to log and ignore:
// a failed metrics push must never fail the run.
func (m *Metrics) Push(url, job string) error {
	if url == "" {
		return nil
	}
	return push.New(url, job).Gatherer(m.registry).Push()
}
