package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	m := New()

	m.RecordIngest("data", "accepted")
	m.RecordIngest("data", "accepted")
	m.RecordIngest("register", "capped")
	m.RecordClassification("Good")
	m.RecordNotification(true)
	m.RecordNotification(false)
	m.RecordPruned(3)
	m.RecordDatabaseHealth(true)
	m.RecordCycle("scan", 20*time.Millisecond)
	m.RecordCycleError("scan")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.IngestTotal.WithLabelValues("data", "accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestTotal.WithLabelValues("register", "capped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ClassificationTotal.WithLabelValues("Good")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.PrunedBatches))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DatabaseHealthy))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CycleErrors.WithLabelValues("scan")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordIngest("data", "accepted")
		m.RecordClassification("Good")
		m.RecordNotification(true)
		m.RecordCycle("scan", time.Second)
		m.RecordCycleError("scan")
		m.RecordPruned(1)
		m.RecordDatabaseHealth(false)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordIngest("data", "accepted")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `meteornet_ingest_requests_total{operation="data",result="accepted"} 1`)
}
