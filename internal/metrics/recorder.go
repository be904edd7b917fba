package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jackzampolin/plotline/internal/providers"
)

const namespace = "plotline"

// Chunk outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeResumed   = "resumed"
	OutcomeAbandoned = "abandoned"
	OutcomeSkipped   = "skipped"
)

// Recorder records run metrics into its own Prometheus registry and keeps
// the per-call records for end-of-run statistics. A nil Recorder discards
// everything.
type Recorder struct {
	registry *prometheus.Registry

	calls     *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	tokens    *prometheus.CounterVec
	cost      *prometheus.CounterVec
	chunks    *prometheus.CounterVec
	healthy   *prometheus.GaugeVec
	pending   prometheus.Gauge
	unhealthy *prometheus.CounterVec

	mu      sync.Mutex
	metrics []Metric
}

// NewRecorder creates a recorder with a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_calls_total",
			Help:      "Backend calls by executor and result.",
		}, []string{"executor", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_call_seconds",
			Help:      "Backend call latency.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"executor"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Tokens consumed by executor and kind.",
		}, []string{"executor", "kind"}),
		cost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cost_usd_total",
			Help:      "Reported backend cost in USD.",
		}, []string{"executor"}),
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_total",
			Help:      "Chunks by outcome.",
		}, []string{"outcome"}),
		healthy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "executor_healthy",
			Help:      "1 while the executor accepts work, 0 once quarantined.",
		}, []string{"executor"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chunks_unresolved",
			Help:      "Chunks neither completed nor abandoned.",
		}),
		unhealthy: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executor_quarantines_total",
			Help:      "Healthy to unhealthy transitions.",
		}, []string{"executor"}),
	}
	r.registry.MustRegister(r.calls, r.latency, r.tokens, r.cost, r.chunks, r.healthy, r.pending, r.unhealthy)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveCall records one backend call.
func (r *Recorder) ObserveCall(executor string, chunkIndex int, result *providers.ChatResult, err error) {
	if r == nil {
		return
	}
	m := FromChatResult(executor, chunkIndex, result, err)

	outcome := "success"
	if !m.Success {
		outcome = m.ErrorType
		if outcome == "" {
			outcome = "error"
		}
	}
	r.calls.WithLabelValues(executor, outcome).Inc()
	if m.ExecutionSeconds > 0 {
		r.latency.WithLabelValues(executor).Observe(m.ExecutionSeconds)
	}
	if m.PromptTokens > 0 {
		r.tokens.WithLabelValues(executor, "prompt").Add(float64(m.PromptTokens))
	}
	if m.CompletionTokens > 0 {
		r.tokens.WithLabelValues(executor, "completion").Add(float64(m.CompletionTokens))
	}
	if m.CostUSD > 0 {
		r.cost.WithLabelValues(executor).Add(m.CostUSD)
	}

	r.mu.Lock()
	r.metrics = append(r.metrics, m)
	r.mu.Unlock()
}

// ChunkOutcome counts n chunks with the given outcome.
func (r *Recorder) ChunkOutcome(outcome string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.chunks.WithLabelValues(outcome).Add(float64(n))
}

// SetHealthy records an executor's health state.
func (r *Recorder) SetHealthy(executor string, healthy bool) {
	if r == nil {
		return
	}
	v := 0.0
	if healthy {
		v = 1
	} else {
		r.unhealthy.WithLabelValues(executor).Inc()
	}
	r.healthy.WithLabelValues(executor).Set(v)
}

// SetUnresolved records how many chunks are still outstanding.
func (r *Recorder) SetUnresolved(n int) {
	if r == nil {
		return
	}
	r.pending.Set(float64(n))
}

// Metrics returns a copy of the recorded per-call metrics.
func (r *Recorder) Metrics() []Metric {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Metric(nil), r.metrics...)
}
