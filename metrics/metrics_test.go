package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.RecordPipelineRun("voice", "dispatched")
	m.RecordPipelineRun("voice", "dispatched")
	m.RecordPipelineRun("text", "no_speech")
	m.RecordSideEffect("webhook", 10*time.Millisecond, errors.New("boom"))
	m.RecordSideEffect("local", time.Millisecond, nil)
	m.RecordCreated("task")
	m.SetQueueSize(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PipelineRuns.WithLabelValues("voice", "dispatched")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SideEffects.WithLabelValues("webhook", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SideEffects.WithLabelValues("local", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsCreated.WithLabelValues("task")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.QueuedRecording))
}

func TestNilSafe(t *testing.T) {
	var m *Metrics
	m.RecordSessionStart()
	m.RecordPipelineRun("voice", "x")
	m.RecordSideEffect("local", 0, nil)
	m.SetQueueSize(1)
	assert.Nil(t, m.Registry())
}

func TestIndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.RecordSessionStart()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.SessionsStarted))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.SessionsStarted))
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordSessionStart()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "cos_sessions_started_total 1")
}
