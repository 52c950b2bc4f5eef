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

func TestMetricsCountersAndHandler(t *testing.T) {
	m := NewMetrics("echo_test")
	m.ObserveModelAttempt("rate_limited")
	m.ObserveModelAttempt("ok")
	m.ObserveModelCall(false)
	m.ObserveIntentCache(true)
	m.ObserveIntentCache(false)
	m.ObserveFallback("emotion")
	m.ObserveAnalysisLatency(1200 * time.Millisecond)
	m.SetMemoryTurns(4)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModelAttempts.WithLabelValues("rate_limited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModelCalls.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IntentCache.WithLabelValues("hit")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.MemoryTurns))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "echo_test_model_attempts_total")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveModelAttempt("ok")
		m.ObserveModelCall(true)
		m.ObserveIntentCache(true)
		m.ObserveFallback("x")
		m.ObserveAnalysisLatency(time.Second)
		m.SetMemoryTurns(1)
		m.SetActiveSessions(1)
		m.ObserveSessionEvent("created")
		m.ObserveWSMessage("inbound", "client_text")
		m.ObservePipelineOutcome("ok")
	})
}

func TestTwoInstancesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics("echo")
		NewMetrics("echo")
	})
}
