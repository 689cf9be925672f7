package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Note: promauto registers metrics globally, so every test uses its own namespace.

func TestNewMetrics(t *testing.T) {
	m := NewMetrics("test_catalog_new")

	assert.NotNil(t, m.RunsStarted)
	assert.NotNil(t, m.RunsCompleted)
	assert.NotNil(t, m.RunsFailed)
	assert.NotNil(t, m.RunDuration)
	assert.NotNil(t, m.CategoriesProcessed)
	assert.NotNil(t, m.WorksFetched)
	assert.NotNil(t, m.WorksSkipped)
	assert.NotNil(t, m.RowsWritten)
	assert.NotNil(t, m.SourceRequestsTotal)
	assert.NotNil(t, m.EventsPublished)
	assert.NotNil(t, m.SnapshotRows)
	assert.NotNil(t, m.WeeklyResets)
}

func TestRecordRunLifecycle(t *testing.T) {
	m := NewMetrics("test_run_lifecycle")

	m.RecordRunStarted()
	m.RecordRunCompleted(12.5, 1700000000)
	m.RecordRunStarted()
	m.RecordRunFailed(2, 1700000100)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.RunsStarted))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RunsCompleted))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RunsFailed))
	assert.Equal(t, float64(1700000100), testutil.ToFloat64(m.LastRunTimestamp))

	count, err := getHistogramSampleCount(m.RunDuration)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}

func TestRecordCategory(t *testing.T) {
	m := NewMetrics("test_category_outcome")

	m.RecordCategory(true)
	m.RecordCategory(true)
	m.RecordCategory(false)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.CategoriesProcessed.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CategoriesProcessed.WithLabelValues("failed")))
}

func TestRecordWorks(t *testing.T) {
	m := NewMetrics("test_works")

	m.RecordWorksFetched(1000, 80)
	m.RecordWorkSkipped("category_mismatch")

	assert.Equal(t, float64(1000), testutil.ToFloat64(m.WorksFetched))
	assert.Equal(t, float64(80), testutil.ToFloat64(m.WorksSelected))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.WorksSkipped.WithLabelValues("category_mismatch")))
}

func TestRecordRowWritten(t *testing.T) {
	m := NewMetrics("test_rows_written")

	m.RecordRowWritten("paper", true)
	m.RecordRowWritten("paper", false)
	m.RecordRowWritten("paper", false)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.RowsWritten.WithLabelValues("paper", "inserted")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.RowsWritten.WithLabelValues("paper", "updated")))
}

func TestRecordSourceRequests(t *testing.T) {
	m := NewMetrics("test_source_requests")

	m.RecordSourceRequest("openalex", "works", 0.3)
	m.RecordSourceRequestFailed("openalex", "works", "http_500")
	m.RecordSourceRateLimited("openalex")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.SourceRequestsTotal.WithLabelValues("openalex", "works")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SourceRequestsFailed.WithLabelValues("openalex", "works", "http_500")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SourceRateLimited.WithLabelValues("openalex")))
}

func TestRecordEventPublished(t *testing.T) {
	m := NewMetrics("test_events")

	m.RecordEventPublished(true)
	m.RecordEventPublished(false)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsPublished))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsFailed))
}

func TestRecordSnapshot(t *testing.T) {
	m := NewMetrics("test_snapshot")

	m.RecordSnapshotTable("export", "paper", 42)
	m.RecordSnapshotDuration("export", 1.5)
	m.RecordWeeklyReset()

	assert.Equal(t, float64(42), testutil.ToFloat64(m.SnapshotRows.WithLabelValues("export", "paper")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.WeeklyResets))
}

func TestRecordSnapshotSkips(t *testing.T) {
	m := NewMetrics("test_snapshot_skips")

	m.RecordSnapshotTable("import", "authorpaper", 3)
	m.RecordSnapshotSkips("authorpaper", map[string]int{"unresolved_reference": 2, "constraint_violation": 1})
	m.RecordSnapshotSkips("paper", nil)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.SnapshotRowsSkipped.WithLabelValues("authorpaper", "unresolved_reference")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SnapshotRowsSkipped.WithLabelValues("authorpaper", "constraint_violation")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.SnapshotRowsSkipped))
	assert.Equal(t, 1, testutil.CollectAndCount(m.SnapshotRows))
}

func getHistogramSampleCount(h prometheus.Histogram) (uint64, error) {
	ch := make(chan prometheus.Metric, 1)
	h.Collect(ch)
	close(ch)

	var metric prometheus.Metric
	for metric = range ch {
		break
	}

	out := &dto.Metric{}
	if err := metric.Write(out); err != nil {
		return 0, err
	}
	return out.Histogram.GetSampleCount(), nil
}
