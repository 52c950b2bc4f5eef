package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. Every
// instance owns its registry. A nil *Metrics is a valid no-op.
type Metrics struct {
	registry *prometheus.Registry
	stages   *stageTracker

	ModelAttempts    *prometheus.CounterVec
	ModelCalls       *prometheus.CounterVec
	IntentCache      *prometheus.CounterVec
	Fallbacks        *prometheus.CounterVec
	AnalysisLatency  prometheus.Histogram
	MemoryTurns      prometheus.Gauge
	ActiveSessions   prometheus.Gauge
	SessionEvents    *prometheus.CounterVec
	WSMessages       *prometheus.CounterVec
	PipelineOutcomes *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		stages:   newStageTracker(256),
		ModelAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_attempts_total",
			Help:      "Remote model attempts by outcome.",
		}, []string{"outcome"}),
		ModelCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_calls_total",
			Help:      "Remote model calls by final result.",
		}, []string{"result"}),
		IntentCache: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intent_cache_total",
			Help:      "Intent cache lookups by result.",
		}, []string{"result"}),
		Fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Fallback values substituted by kind.",
		}, []string{"kind"}),
		AnalysisLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_latency_ms",
			Help:      "End-to-end analysis latency in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 16000, 32000},
		}),
		MemoryTurns: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_turns",
			Help:      "Conversation turns currently retained.",
		}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active conversation sessions.",
		}),
		SessionEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		WSMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		PipelineOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_outcomes_total",
			Help:      "Voice/text pipeline outcomes.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) ObserveModelAttempt(outcome string) {
	if m == nil {
		return
	}
	m.ModelAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveModelCall(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.ModelCalls.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveIntentCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.IntentCache.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveFallback(kind string) {
	if m == nil {
		return
	}
	m.Fallbacks.WithLabelValues(kind).Inc()
	m.stages.fallback(kind)
}

func (m *Metrics) ObserveAnalysisLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.AnalysisLatency.Observe(float64(d.Milliseconds()))
}

// ObserveStage records an analysis stage duration in the rolling window.
func (m *Metrics) ObserveStage(stage Stage, d time.Duration) {
	if m == nil {
		return
	}
	m.stages.observe(stage, d)
}

// StageSnapshot summarizes recent stage latencies.
func (m *Metrics) StageSnapshot() StageSnapshot {
	if m == nil {
		return StageSnapshot{GeneratedAt: time.Now().UTC()}
	}
	return m.stages.snapshot()
}

func (m *Metrics) SetMemoryTurns(n int) {
	if m == nil {
		return
	}
	m.MemoryTurns.Set(float64(n))
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func (m *Metrics) ObserveSessionEvent(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) ObserveWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

func (m *Metrics) ObservePipelineOutcome(outcome string) {
	if m == nil {
		return
	}
	m.PipelineOutcomes.WithLabelValues(outcome).Inc()
}

// Handler exposes this instance's registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
