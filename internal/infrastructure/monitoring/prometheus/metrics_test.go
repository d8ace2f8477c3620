package prometheus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAppMetrics(t *testing.T) (*AppMetrics, MetricsCollector) {
	c := newTestCollector(t)
	return NewAppMetrics(c), c
}

func TestNewAppMetrics_AllMetricsRegistered(t *testing.T) {
	m, _ := newTestAppMetrics(t)
	require.NotNil(t, m)
	assert.NotNil(t, m.HTTPRequestsTotal)
	assert.NotNil(t, m.DocumentsLoadedTotal)
	assert.NotNil(t, m.AnalysesTotal)
	assert.NotNil(t, m.RecommendationsTotal)
	assert.NotNil(t, m.EventsPublishedTotal)
}

func TestRecordHTTPRequest(t *testing.T) {
	m, c := newTestAppMetrics(t)
	RecordHTTPRequest(m, "POST", "/api/v1/analyze", 200, 100*time.Millisecond)

	output := scrapeMetrics(t, c)
	assert.Contains(t, output, `test_unit_http_requests_total{method="POST",path="/api/v1/analyze",status_code="200"} 1`)
	assert.Contains(t, output, `test_unit_http_request_duration_seconds_count{method="POST",path="/api/v1/analyze"} 1`)
}

func TestRecordDocumentLoad(t *testing.T) {
	m, c := newTestAppMetrics(t)
	RecordDocumentLoad(m, "csv", 1024, true)
	RecordDocumentLoad(m, "pdf", 10, false)

	output := scrapeMetrics(t, c)
	assert.Contains(t, output, `test_unit_documents_loaded_total{kind="csv",status="success"} 1`)
	assert.Contains(t, output, `test_unit_documents_loaded_total{kind="pdf",status="failure"} 1`)
	assert.Contains(t, output, `test_unit_document_size_bytes_sum{kind="csv"} 1024`)
}

func TestRecordAnalysis_CountsEntitiesByCategory(t *testing.T) {
	m, c := newTestAppMetrics(t)
	RecordAnalysis(m, "generative", time.Second, true, map[string]int{"Disease": 2, "Drug": 1})

	output := scrapeMetrics(t, c)
	assert.Contains(t, output, `test_unit_analyses_total{status="success",variant="generative"} 1`)
	assert.Contains(t, output, `test_unit_entities_extracted_total{category="Disease",variant="generative"} 2`)
	assert.Contains(t, output, `test_unit_entities_extracted_total{category="Drug",variant="generative"} 1`)
}

func TestRecordRecommendation(t *testing.T) {
	m, c := newTestAppMetrics(t)
	RecordRecommendation(m, "batch", 3, 2*time.Second, true)
	RecordMalformed(m, "recommendation")

	output := scrapeMetrics(t, c)
	assert.Contains(t, output, `test_unit_recommendations_total{mode="batch",status="success"} 1`)
	assert.Contains(t, output, `test_unit_diseases_per_request_sum{mode="batch"} 3`)
	assert.Contains(t, output, `test_unit_malformed_responses_total{stage="recommendation"} 1`)
}

func TestRecordInfrastructure(t *testing.T) {
	m, c := newTestAppMetrics(t)
	RecordArchiveUpload(m, false)
	RecordEventPublish(m, "biorx.analysis.completed", true)
	RecordEventConsume(m, "biorx.analysis.completed", true)
	RecordError(m, "loader", "BIORX_002")

	output := scrapeMetrics(t, c)
	assert.Contains(t, output, `test_unit_archive_uploads_total{status="failure"} 1`)
	assert.Contains(t, output, `test_unit_events_published_total{status="success",topic="biorx.analysis.completed"} 1`)
	assert.Contains(t, output, `test_unit_events_consumed_total{status="success",topic="biorx.analysis.completed"} 1`)
	assert.Contains(t, output, `test_unit_errors_total{code="BIORX_002",component="loader"} 1`)
}

func TestNoopAppMetrics(t *testing.T) {
	m := NewNoopAppMetrics()
	assert.NotPanics(t, func() {
		RecordHTTPRequest(m, "GET", "/", 200, time.Millisecond)
		RecordDocumentLoad(m, "txt", 1, true)
		RecordAnalysis(m, "recognizer", time.Millisecond, true, map[string]int{"Disease": 1})
		RecordRecommendation(m, "per_disease", 1, time.Millisecond, true)
		RecordError(m, "x", "y")
	})
}
