package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsIndependentRegistries(t *testing.T) {
	a, err := InitMetrics()
	require.NoError(t, err)
	b, err := InitMetrics()
	require.NoError(t, err, "a second instance must not collide")

	a.FileUploaded("image/png", 100)
	a.FileUploaded("image/png", 50)
	a.UploadRejected("SIZE_LIMIT")
	a.JobFinished("completed")

	assert.Equal(t, float64(2), testutil.ToFloat64(a.uploadFiles.WithLabelValues("image/png")))
	assert.Equal(t, float64(150), testutil.ToFloat64(a.uploadBytes))
	assert.Equal(t, float64(1), testutil.ToFloat64(a.rejections.WithLabelValues("SIZE_LIMIT")))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.uploadBytes))
}

func TestMetricsHandler(t *testing.T) {
	m, err := InitMetrics()
	require.NoError(t, err)
	m.ObserveHTTP("/api/portfolio", http.MethodPost, http.StatusCreated, 20*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(body), `urbanease_http_requests_total{code="201",method="POST",route="/api/portfolio"} 1`)
}
