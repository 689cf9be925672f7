package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the paper catalog service.
// Metrics are organized by subsystem: ingestion runs, categories, works,
// catalog writes, source requests, events, snapshots and maintenance. All
// collectors are registered via promauto with the default registry.
type Metrics struct {
	// RunsStarted counts ingestion runs initiated.
	RunsStarted prometheus.Counter

	// RunsCompleted counts ingestion runs that visited every category.
	RunsCompleted prometheus.Counter

	// RunsFailed counts ingestion runs aborted by a fatal error.
	RunsFailed prometheus.Counter

	// RunDuration observes the end-to-end duration of ingestion runs in seconds.
	RunDuration prometheus.Histogram

	// LastRunTimestamp is the unix time of the last finished run.
	LastRunTimestamp prometheus.Gauge

	// CategoriesProcessed counts categories by outcome ("ok", "failed").
	CategoriesProcessed *prometheus.CounterVec

	// WorksFetched counts works returned by the source paginator.
	WorksFetched prometheus.Counter

	// WorksSelected counts works kept by the year bucketer.
	WorksSelected prometheus.Counter

	// WorksSkipped counts works dropped before writing, labeled by reason.
	WorksSkipped *prometheus.CounterVec

	// RowsWritten counts catalog upserts, labeled by table and outcome ("inserted", "updated").
	RowsWritten *prometheus.CounterVec

	// SourceRequestsTotal counts HTTP requests to the source API, labeled by source and endpoint.
	SourceRequestsTotal *prometheus.CounterVec

	// SourceRequestsFailed counts failed source requests, labeled by source, endpoint and error type.
	SourceRequestsFailed *prometheus.CounterVec

	// SourceRequestDuration observes source request duration in seconds.
	SourceRequestDuration *prometheus.HistogramVec

	// SourceRateLimited counts rate-limited responses, labeled by source.
	SourceRateLimited *prometheus.CounterVec

	// EventsPublished counts new-paper events handed to the broker.
	EventsPublished prometheus.Counter

	// EventsFailed counts new-paper events the broker rejected.
	EventsFailed prometheus.Counter

	// SnapshotRows counts rows moved by export or import, labeled by operation and table.
	SnapshotRows *prometheus.CounterVec

	// SnapshotRowsSkipped counts imported rows that were skipped, labeled by table and reason.
	SnapshotRowsSkipped *prometheus.CounterVec

	// SnapshotDuration observes export/import duration in seconds, labeled by operation.
	SnapshotDuration *prometheus.HistogramVec

	// WeeklyResets counts weekly view counter resets.
	WeeklyResets prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Runs
		RunsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_runs_started_total",
			Help:      "Total number of ingestion runs started",
		}),
		RunsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_runs_completed_total",
			Help:      "Total number of ingestion runs completed",
		}),
		RunsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_runs_failed_total",
			Help:      "Total number of ingestion runs that failed",
		}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_run_duration_seconds",
			Help:      "Duration of ingestion runs in seconds",
			Buckets:   []float64{10, 30, 60, 300, 600, 1800, 3600, 7200, 14400},
		}),
		LastRunTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ingest_last_run_timestamp_seconds",
			Help:      "Unix time of the last finished ingestion run",
		}),

		// Categories and works
		CategoriesProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "categories_processed_total",
			Help:      "Total number of categories processed by outcome",
		}, []string{"outcome"}),
		WorksFetched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "works_fetched_total",
			Help:      "Total number of works fetched from the source",
		}),
		WorksSelected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "works_selected_total",
			Help:      "Total number of works selected by the year bucketer",
		}),
		WorksSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "works_skipped_total",
			Help:      "Total number of works skipped before writing",
		}, []string{"reason"}),
		RowsWritten: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_rows_written_total",
			Help:      "Total number of catalog rows upserted",
		}, []string{"table", "outcome"}),

		// Sources
		SourceRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Total number of requests to the source API",
		}, []string{"source", "endpoint"}),
		SourceRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_failed_total",
			Help:      "Total number of failed requests to the source API",
		}, []string{"source", "endpoint", "error_type"}),
		SourceRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_request_duration_seconds",
			Help:      "Duration of source API requests in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source", "endpoint"}),
		SourceRateLimited: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_rate_limited_total",
			Help:      "Total number of rate-limited responses from the source API",
		}, []string{"source"}),

		// Events
		EventsPublished: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of new-paper events published",
		}),
		EventsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_failed_total",
			Help:      "Total number of new-paper events that failed to publish",
		}),

		// Snapshots
		SnapshotRows: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_rows_total",
			Help:      "Total number of rows exported or imported",
		}, []string{"operation", "table"}),
		SnapshotRowsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_rows_skipped_total",
			Help:      "Total number of snapshot rows skipped on import",
		}, []string{"table", "reason"}),
		SnapshotDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snapshot_duration_seconds",
			Help:      "Duration of snapshot export/import in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}, []string{"operation"}),

		// Maintenance
		WeeklyResets: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weekly_count_resets_total",
			Help:      "Total number of weekly view counter resets",
		}),
	}
}

// RecordRunStarted records that an ingestion run has started.
func (m *Metrics) RecordRunStarted() {
	m.RunsStarted.Inc()
}

// RecordRunCompleted records a finished run and its duration.
func (m *Metrics) RecordRunCompleted(durationSeconds float64, finishedAtUnix float64) {
	m.RunsCompleted.Inc()
	m.RunDuration.Observe(durationSeconds)
	m.LastRunTimestamp.Set(finishedAtUnix)
}

// RecordRunFailed records an aborted run and its duration.
func (m *Metrics) RecordRunFailed(durationSeconds float64, finishedAtUnix float64) {
	m.RunsFailed.Inc()
	m.RunDuration.Observe(durationSeconds)
	m.LastRunTimestamp.Set(finishedAtUnix)
}

// RecordCategory records the outcome of one category.
func (m *Metrics) RecordCategory(ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.CategoriesProcessed.WithLabelValues(outcome).Inc()
}

// RecordWorksFetched records how many works a category pagination returned and how many were kept.
func (m *Metrics) RecordWorksFetched(fetched, selected int) {
	m.WorksFetched.Add(float64(fetched))
	m.WorksSelected.Add(float64(selected))
}

// RecordWorkSkipped records a work dropped before writing.
func (m *Metrics) RecordWorkSkipped(reason string) {
	m.WorksSkipped.WithLabelValues(reason).Inc()
}

// RecordRowWritten records one upsert into table.
func (m *Metrics) RecordRowWritten(table string, inserted bool) {
	outcome := "updated"
	if inserted {
		outcome = "inserted"
	}
	m.RowsWritten.WithLabelValues(table, outcome).Inc()
}

// RecordSourceRequest records a successful source API request.
func (m *Metrics) RecordSourceRequest(source, endpoint string, durationSeconds float64) {
	m.SourceRequestsTotal.WithLabelValues(source, endpoint).Inc()
	m.SourceRequestDuration.WithLabelValues(source, endpoint).Observe(durationSeconds)
}

// RecordSourceRequestFailed records a failed source API request.
func (m *Metrics) RecordSourceRequestFailed(source, endpoint, errorType string) {
	m.SourceRequestsFailed.WithLabelValues(source, endpoint, errorType).Inc()
}

// RecordSourceRateLimited records a rate-limited response.
func (m *Metrics) RecordSourceRateLimited(source string) {
	m.SourceRateLimited.WithLabelValues(source).Inc()
}

// RecordEventPublished records the outcome of one new-paper event.
func (m *Metrics) RecordEventPublished(ok bool) {
	if ok {
		m.EventsPublished.Inc()
		return
	}
	m.EventsFailed.Inc()
}

// RecordSnapshotTable records rows moved for one table.
func (m *Metrics) RecordSnapshotTable(operation, table string, rows int) {
	m.SnapshotRows.WithLabelValues(operation, table).Add(float64(rows))
}

// RecordSnapshotSkips records rows of table skipped on import, per reason.
func (m *Metrics) RecordSnapshotSkips(table string, reasons map[string]int) {
	for reason, n := range reasons {
		m.SnapshotRowsSkipped.WithLabelValues(table, reason).Add(float64(n))
	}
}

// RecordSnapshotDuration records how long an export or import took.
func (m *Metrics) RecordSnapshotDuration(operation string, durationSeconds float64) {
	m.SnapshotDuration.WithLabelValues(operation).Observe(durationSeconds)
}

// RecordWeeklyReset records a weekly view counter reset.
func (m *Metrics) RecordWeeklyReset() {
	m.WeeklyResets.Inc()
}
