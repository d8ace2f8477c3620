package prometheus

import (
	"strconv"
	"time"
)

// AppMetrics holds the service level metrics.
type AppMetrics struct {
	// HTTP Layer
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	HTTPActiveRequests  GaugeVec

	// Documents
	DocumentsLoadedTotal CounterVec
	DocumentSizeBytes    HistogramVec

	// Analysis
	AnalysesTotal      CounterVec
	AnalysisDuration   HistogramVec
	EntitiesExtracted  CounterVec
	MalformedResponses CounterVec

	// Recommendations
	RecommendationsTotal   CounterVec
	RecommendationDuration HistogramVec
	DiseasesPerRequest     HistogramVec

	// Infrastructure
	ArchiveUploadsTotal  CounterVec
	EventsPublishedTotal CounterVec
	EventsConsumedTotal  CounterVec

	// System Health
	ServiceUptime     GaugeVec
	HealthCheckStatus GaugeVec
	ErrorsTotal       CounterVec
}

// Default Buckets
var (
	DefaultHTTPDurationBuckets     = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}
	DefaultAnalysisDurationBuckets = []float64{.1, .5, 1, 2, 5, 10, 30, 60, 120}
	DefaultSizeBuckets             = []float64{100, 1000, 10000, 100000, 1000000, 10000000}
	DefaultCountBuckets            = []float64{0, 1, 2, 5, 10, 20, 50, 100}
)

// NewAppMetrics registers all metrics on collector.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	// HTTP
	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path")
	m.HTTPActiveRequests = collector.RegisterGauge("http_active_requests", "Active HTTP requests", "method")

	// Documents
	m.DocumentsLoadedTotal = collector.RegisterCounter("documents_loaded_total", "Documents converted to text", "kind", "status")
	m.DocumentSizeBytes = collector.RegisterHistogram("document_size_bytes", "Uploaded document size", DefaultSizeBuckets, "kind")

	// Analysis
	m.AnalysesTotal = collector.RegisterCounter("analyses_total", "Analysis runs", "variant", "status")
	m.AnalysisDuration = collector.RegisterHistogram("analysis_duration_seconds", "Analysis duration", DefaultAnalysisDurationBuckets, "variant")
	m.EntitiesExtracted = collector.RegisterCounter("entities_extracted_total", "Entities extracted", "variant", "category")
	m.MalformedResponses = collector.RegisterCounter("malformed_responses_total", "Model responses that could not be parsed", "stage")

	// Recommendations
	m.RecommendationsTotal = collector.RegisterCounter("recommendations_total", "Recommendation runs", "mode", "status")
	m.RecommendationDuration = collector.RegisterHistogram("recommendation_duration_seconds", "Recommendation duration", DefaultAnalysisDurationBuckets, "mode")
	m.DiseasesPerRequest = collector.RegisterHistogram("diseases_per_request", "Diseases submitted per recommendation run", DefaultCountBuckets, "mode")

	// Infrastructure
	m.ArchiveUploadsTotal = collector.RegisterCounter("archive_uploads_total", "Uploaded documents archived", "status")
	m.EventsPublishedTotal = collector.RegisterCounter("events_published_total", "Events published", "topic", "status")
	m.EventsConsumedTotal = collector.RegisterCounter("events_consumed_total", "Events consumed", "topic", "status")

	// System Health
	m.ServiceUptime = collector.RegisterGauge("service_uptime_seconds", "Service uptime", "service")
	m.HealthCheckStatus = collector.RegisterGauge("health_check_status", "Health check status (1=up, 0=down)", "component")
	m.ErrorsTotal = collector.RegisterCounter("errors_total", "Total errors", "component", "code")

	return m
}

// NewNoopAppMetrics returns metrics that record nothing.
func NewNoopAppMetrics() *AppMetrics {
	return &AppMetrics{
		HTTPRequestsTotal:      noopCounterVec{},
		HTTPRequestDuration:    noopHistogramVec{},
		HTTPActiveRequests:     noopGaugeVec{},
		DocumentsLoadedTotal:   noopCounterVec{},
		DocumentSizeBytes:      noopHistogramVec{},
		AnalysesTotal:          noopCounterVec{},
		AnalysisDuration:       noopHistogramVec{},
		EntitiesExtracted:      noopCounterVec{},
		MalformedResponses:     noopCounterVec{},
		RecommendationsTotal:   noopCounterVec{},
		RecommendationDuration: noopHistogramVec{},
		DiseasesPerRequest:     noopHistogramVec{},
		ArchiveUploadsTotal:    noopCounterVec{},
		EventsPublishedTotal:   noopCounterVec{},
		EventsConsumedTotal:    noopCounterVec{},
		ServiceUptime:          noopGaugeVec{},
		HealthCheckStatus:      noopGaugeVec{},
		ErrorsTotal:            noopCounterVec{},
	}
}

// Helpers

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func RecordHTTPRequest(metrics *AppMetrics, method, path string, statusCode int, duration time.Duration) {
	metrics.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func RecordDocumentLoad(metrics *AppMetrics, kind string, size int, ok bool) {
	metrics.DocumentsLoadedTotal.WithLabelValues(kind, status(ok)).Inc()
	metrics.DocumentSizeBytes.WithLabelValues(kind).Observe(float64(size))
}

// RecordAnalysis counts a run and its entities by category.
func RecordAnalysis(metrics *AppMetrics, variant string, duration time.Duration, ok bool, entitiesByCategory map[string]int) {
	metrics.AnalysesTotal.WithLabelValues(variant, status(ok)).Inc()
	metrics.AnalysisDuration.WithLabelValues(variant).Observe(duration.Seconds())
	for category, n := range entitiesByCategory {
		metrics.EntitiesExtracted.WithLabelValues(variant, category).Add(float64(n))
	}
}

func RecordMalformed(metrics *AppMetrics, stage string) {
	metrics.MalformedResponses.WithLabelValues(stage).Inc()
}

func RecordRecommendation(metrics *AppMetrics, mode string, diseases int, duration time.Duration, ok bool) {
	metrics.RecommendationsTotal.WithLabelValues(mode, status(ok)).Inc()
	metrics.RecommendationDuration.WithLabelValues(mode).Observe(duration.Seconds())
	metrics.DiseasesPerRequest.WithLabelValues(mode).Observe(float64(diseases))
}

func RecordArchiveUpload(metrics *AppMetrics, ok bool) {
	metrics.ArchiveUploadsTotal.WithLabelValues(status(ok)).Inc()
}

func RecordEventPublish(metrics *AppMetrics, topic string, ok bool) {
	metrics.EventsPublishedTotal.WithLabelValues(topic, status(ok)).Inc()
}

func RecordEventConsume(metrics *AppMetrics, topic string, ok bool) {
	metrics.EventsConsumedTotal.WithLabelValues(topic, status(ok)).Inc()
}

func RecordError(metrics *AppMetrics, component, code string) {
	metrics.ErrorsTotal.WithLabelValues(component, code).Inc()
}
