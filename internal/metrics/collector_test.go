package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCollectorCounts(t *testing.T) {
	t.Parallel()

	c := NewCollector(zap.NewNop())
	c.RecordingSaved()
	c.RecordingSaved()
	c.RecordingFailed(StageStorage)
	c.SweepCompleted("abort", 3, 1)
	c.UploadFinished(UploadDropped)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.recordingsSaved))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.recordingFailures.WithLabelValues(StageStorage)))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.sweepDeletes.WithLabelValues("abort")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.sweepFailures.WithLabelValues("abort")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.uploads.WithLabelValues(UploadDropped)))
}

func TestNilCollectorIsNoop(t *testing.T) {
	t.Parallel()

	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordingSaved()
		c.RecordingFailed(StageStart)
		c.SweepCompleted("commit", 1, 0)
		c.UploadFinished(UploadSucceeded)
	})
}

func TestCollectorHandlerExposesMetrics(t *testing.T) {
	t.Parallel()

	c := NewCollector(nil)
	c.RecordingSaved()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "avatarmail_recordings_saved_total 1"))
}
