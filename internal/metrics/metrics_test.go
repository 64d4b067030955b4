package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dl-alexandre/gdrvflow/internal/watermark"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Hooks(t *testing.T) {
	m := New()
	m.PageFetched(10)
	m.PageFetched(3)
	m.BatchCommitted(2)
	m.BatchCommitted(1)
	m.RunFinished("success", watermark.Watermark{HighWaterMark: time.Unix(1700000000, 500_000_000)})
	m.RunFinished("failed", watermark.Watermark{})
	m.UploadFinished("created")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Pages))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Flushes))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Entries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("failed")))
	assert.Equal(t, 1700000000.5, testutil.ToFloat64(m.Watermark))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Uploads.WithLabelValues("created")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.UploadFinished("conflict")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `gdrvflow_uploads_total{outcome="conflict"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestMetrics_NilIsNoOp(t *testing.T) {
	var m *Metrics
	m.PageFetched(1)
	m.BatchCommitted(1)
	m.RunFinished("success", watermark.Watermark{})
	m.UploadFinished("created")
	assert.Nil(t, m.Collectors())
}
