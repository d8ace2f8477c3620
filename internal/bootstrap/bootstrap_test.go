package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/turtacn/BioRx-Intelligence/internal/application/analysis"
	"github.com/turtacn/BioRx-Intelligence/internal/application/recommendation"
	"github.com/turtacn/BioRx-Intelligence/internal/config"
	"github.com/turtacn/BioRx-Intelligence/internal/domain/biomed"
	"github.com/turtacn/BioRx-Intelligence/internal/intelligence/llm"
	"github.com/turtacn/BioRx-Intelligence/internal/testutil"
	"github.com/turtacn/BioRx-Intelligence/pkg/errors"
)

const asthmaJSON = `{"diseases":[{"text":"asthma","context":"history of asthma"}],"drugs":[],"genes_proteins":[],"symptoms":[]}`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Extraction.Variant = config.ExtractionGenerative
	cfg.LLM.Provider = config.ProviderOllama
	cfg.LLM.OllamaHost = "http://127.0.0.1:1"
	cfg.Server.Mode = "test"
	config.ApplyDefaults(cfg)
	cfg.LLM.Retry.MaxRetries = 0
	return cfg
}

func scriptedModel() *llm.Fake {
	return llm.NewFakeFunc(func(prompt string) (string, error) {
		if strings.Contains(prompt, "Text to analyze") {
			return asthmaJSON, nil
		}
		return "Albuterol, Fluticasone", nil
	})
}

func TestNew_GenerativePipeline(t *testing.T) {
	app, err := New(context.Background(), testConfig(t), nil, WithModel(scriptedModel()))
	require.NoError(t, err)
	defer app.Close()

	ctx := context.Background()
	s, err := app.Service.Analyze(ctx, biomed.NewSession(), &analysis.AnalyzeInput{Text: "Patient has a history of asthma."})
	require.NoError(t, err)
	assert.True(t, s.Diseases.Contains("asthma"))

	s, err = app.Service.Recommend(ctx, s, app.Mode)
	require.NoError(t, err)
	rec, ok := s.Recommendations.Get("asthma")
	require.True(t, ok)
	assert.Equal(t, "Asthma: Albuterol, Fluticasone", rec.Line())
	assert.Equal(t, recommendation.ModePerDisease, app.Mode)
	assert.Nil(t, app.MetricsHandler())
	assert.Empty(t, app.HealthCheckers())
}

func TestNew_OllamaProviderFromConfig(t *testing.T) {
	app, err := New(context.Background(), testConfig(t), nil)
	require.NoError(t, err)
	defer app.Close()
	assert.NotNil(t, app.Service)
}

func TestNew_RejectsBadConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Recommendation.Mode = "everything"
	_, err := New(context.Background(), cfg, nil, WithModel(scriptedModel()))
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.Extraction.Variant = "regex"
	_, err = New(context.Background(), cfg, nil, WithModel(scriptedModel()))
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestNew_GoogleAIWithoutKeyIsModelUnavailable(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.Provider = config.ProviderGoogleAI
	cfg.LLM.APIKey = ""
	_, err := New(context.Background(), cfg, nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeModelUnavailable))
}

func TestNew_RecognizerVariantRegistersHealthCheck(t *testing.T) {
	cfg := testConfig(t)
	cfg.Extraction.Variant = config.ExtractionRecognizer
	cfg.NER.Endpoint = "http://127.0.0.1:1/predict"

	app, err := New(context.Background(), cfg, nil, WithModel(scriptedModel()))
	require.NoError(t, err)
	defer app.Close()

	checkers := app.HealthCheckers()
	require.Len(t, checkers, 1)
	assert.Equal(t, "ner", checkers[0].Name())
	assert.Equal(t, biomed.VariantRecognizer, app.Service.Variant())
}

func TestNew_RedisCachesModelAnswers(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = mr.Addr()

	model := scriptedModel()
	app, err := New(context.Background(), cfg, nil, WithModel(model))
	require.NoError(t, err)
	defer app.Close()

	diseases := biomed.NewDiseaseSet("gout")
	for i := 0; i < 3; i++ {
		recs, err := app.Engine.Recommend(context.Background(), diseases, recommendation.ModePerDisease)
		require.NoError(t, err)
		assert.Equal(t, 1, recs.Len())
	}
	assert.Equal(t, 1, model.Calls())
	assert.NotEmpty(t, mr.Keys())

	checkers := app.HealthCheckers()
	require.Len(t, checkers, 1)
	assert.Equal(t, "redis", checkers[0].Name())
	assert.NoError(t, checkers[0].Check(context.Background()))
}

func TestNew_UnreachableRedisIsSkipped(t *testing.T) {
	cfg := testConfig(t)
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = "127.0.0.1:1"

	model := scriptedModel()
	logs := testutil.NewLogRecorder()
	app, err := New(context.Background(), cfg, logs, WithModel(model))
	require.NoError(t, err)
	defer app.Close()
	assert.True(t, logs.Has(zapcore.WarnLevel, "redis unavailable, answers will not be cached"))
	assert.True(t, logs.Has(zapcore.InfoLevel, "pipeline ready"))

	for i := 0; i < 2; i++ {
		_, err := app.Engine.Recommend(context.Background(), biomed.NewDiseaseSet("gout"), recommendation.ModePerDisease)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, model.Calls())
	assert.Empty(t, app.HealthCheckers())
}

func TestRouter_ServesAPIAndMetrics(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Enabled = true

	app, err := New(context.Background(), cfg, nil, WithModel(scriptedModel()))
	require.NoError(t, err)
	defer app.Close()
	r := app.Router("test")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/analyze",
		strings.NewReader(`{"text":"Patient has a history of asthma."}`)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "history of asthma")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "biorx_")
}

func TestRouter_RateLimitFromConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.RateLimitRPS = 0.001
	cfg.Server.RateLimitBurst = 1

	app, err := New(context.Background(), cfg, nil, WithModel(scriptedModel()))
	require.NoError(t, err)
	defer app.Close()
	r := app.Router("test")

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/analyze", strings.NewReader(`{"text":"asthma"}`)))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}
