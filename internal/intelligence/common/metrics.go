package common

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ---------------------------------------------------------------------------
// Interfaces
// ---------------------------------------------------------------------------

// IntelligenceMetrics defines the metrics API of the intelligence layer. The
// recognizer adapter and the generative model decorators record through it so
// that the implementation (Prometheus, in-memory, noop) can be swapped
// without touching business code.
type IntelligenceMetrics interface {
	// RecordInference records a single model invocation.
	RecordInference(ctx context.Context, params *InferenceMetricParams)

	// RecordCacheAccess records a response cache hit or miss.
	RecordCacheAccess(ctx context.Context, hit bool, modelName string)
}

// Task types recorded in InferenceMetricParams.TaskType.
const (
	TaskNER            = "ner"
	TaskExtraction     = "extraction"
	TaskRecommendation = "recommendation"
	TaskGenerate       = "generate"
)

// InferenceMetricParams carries the data for a single inference event.
type InferenceMetricParams struct {
	ModelName   string  `json:"model_name"`
	TaskType    string  `json:"task_type"`
	DurationMs  float64 `json:"duration_ms"`
	Success     bool    `json:"success"`
	InputLength int     `json:"input_length,omitempty"`
}

// ---------------------------------------------------------------------------
// Prometheus implementation
// ---------------------------------------------------------------------------

const metricsPrefix = "biorx_intelligence_"

var defaultLatencyBuckets = []float64{5, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}

type prometheusIntelligenceMetrics struct {
	inferenceLatency *prometheus.HistogramVec
	inferenceTotal   *prometheus.CounterVec
	cacheAccessTotal *prometheus.CounterVec
}

// NewPrometheusIntelligenceMetrics creates a Prometheus-backed metrics collector
// and registers all metrics with the supplied Registerer.
func NewPrometheusIntelligenceMetrics(registerer prometheus.Registerer) (IntelligenceMetrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &prometheusIntelligenceMetrics{}

	m.inferenceLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    metricsPrefix + "inference_duration_milliseconds",
		Help:    "Histogram of model inference latency in milliseconds.",
		Buckets: defaultLatencyBuckets,
	}, []string{"model_name", "task_type"})

	m.inferenceTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricsPrefix + "inference_total",
		Help: "Total number of model inferences.",
	}, []string{"model_name", "task_type", "status"})

	m.cacheAccessTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricsPrefix + "cache_access_total",
		Help: "Total number of response cache accesses.",
	}, []string{"model_name", "result"})

	for _, c := range []prometheus.Collector{m.inferenceLatency, m.inferenceTotal, m.cacheAccessTotal} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *prometheusIntelligenceMetrics) RecordInference(_ context.Context, p *InferenceMetricParams) {
	if p == nil {
		return
	}
	status := "success"
	if !p.Success {
		status = "failure"
	}
	m.inferenceLatency.WithLabelValues(p.ModelName, p.TaskType).Observe(p.DurationMs)
	m.inferenceTotal.WithLabelValues(p.ModelName, p.TaskType, status).Inc()
}

func (m *prometheusIntelligenceMetrics) RecordCacheAccess(_ context.Context, hit bool, modelName string) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheAccessTotal.WithLabelValues(modelName, result).Inc()
}

// ---------------------------------------------------------------------------
// Noop implementation
// ---------------------------------------------------------------------------

type noopIntelligenceMetrics struct{}

// NewNoopIntelligenceMetrics returns a no-op metrics implementation.
func NewNoopIntelligenceMetrics() IntelligenceMetrics {
	return noopIntelligenceMetrics{}
}

func (noopIntelligenceMetrics) RecordInference(context.Context, *InferenceMetricParams) {}
func (noopIntelligenceMetrics) RecordCacheAccess(context.Context, bool, string)         {}

// ---------------------------------------------------------------------------
// In-memory implementation (for testing)
// ---------------------------------------------------------------------------

// InMemoryIntelligenceMetrics records every event for later inspection.
type InMemoryIntelligenceMetrics struct {
	mu sync.Mutex

	inferences  []*InferenceMetricParams
	cacheHits   int64
	cacheMisses int64
}

// NewInMemoryIntelligenceMetrics returns an in-memory metrics implementation
// suitable for unit tests.
func NewInMemoryIntelligenceMetrics() *InMemoryIntelligenceMetrics {
	return &InMemoryIntelligenceMetrics{}
}

func (m *InMemoryIntelligenceMetrics) RecordInference(_ context.Context, p *InferenceMetricParams) {
	if p == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.inferences = append(m.inferences, &cp)
}

func (m *InMemoryIntelligenceMetrics) RecordCacheAccess(_ context.Context, hit bool, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.cacheHits++
	} else {
		m.cacheMisses++
	}
}

// RecordedInferences returns a copy of all recorded inference params.
func (m *InMemoryIntelligenceMetrics) RecordedInferences() []InferenceMetricParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]InferenceMetricParams, len(m.inferences))
	for i, p := range m.inferences {
		out[i] = *p
	}
	return out
}

// CacheCounts returns the recorded cache hits and misses.
func (m *InMemoryIntelligenceMetrics) CacheCounts() (hits, misses int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cacheHits, m.cacheMisses
}
