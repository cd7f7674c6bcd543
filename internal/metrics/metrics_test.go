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

func TestMetrics_Observe(t *testing.T) {
	m := New()
	m.ObserveRun("ARTIFACT_BUILT", time.Second)
	m.ObserveTier("gemini", false)
	m.ObserveTier("heuristic", true)
	m.ObserveCorrection()
	m.ObserveArtifact("B", true)
	m.ObserveLLMCall("Groq:x", time.Millisecond, errors.New("x"))
	m.ObserveJob("pool", nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("ARTIFACT_BUILT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TierAttempts.WithLabelValues("gemini", "fail")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Corrections))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Artifacts.WithLabelValues("B", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Jobs.WithLabelValues("pool", "ok")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "kiri_classification_runs_total")
	assert.Contains(t, string(body), "kiri_llm_call_duration_seconds")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRun("x", 0)
	m.ObserveTier("x", true)
	m.ObserveCorrection()
	m.ObserveArtifact("A", true)
	m.ObserveLLMCall("p", 0, nil)
	m.ObserveJob("inline", nil)
	assert.NotNil(t, m.Handler())
}
