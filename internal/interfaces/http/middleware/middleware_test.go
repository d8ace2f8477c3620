package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/turtacn/BioRx-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/BioRx-Intelligence/internal/infrastructure/monitoring/prometheus"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/items/:id", func(c *gin.Context) { c.String(http.StatusOK, c.Param("id")) })
	r.GET("/bad", func(c *gin.Context) { c.String(http.StatusBadRequest, "bad") })
	r.GET("/boom", func(c *gin.Context) { panic("boom") })
	return r
}

func serve(r http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// RequestID
// ---------------------------------------------------------------------------

func TestRequestID_GeneratesAndEchoes(t *testing.T) {
	var seen string
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) {
		seen = logging.RequestIDFromContext(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	w := serve(r, http.MethodGet, "/", nil)
	id := w.Header().Get(HeaderRequestID)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, seen)

	w = serve(r, http.MethodGet, "/", map[string]string{HeaderRequestID: "req-123"})
	assert.Equal(t, "req-123", w.Header().Get(HeaderRequestID))
	assert.Equal(t, "req-123", seen)
}

// ---------------------------------------------------------------------------
// Logging
// ---------------------------------------------------------------------------

func TestRequestLogging_LevelsByStatus(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := logging.NewLoggerFromCore(core)
	r := newEngine(RequestID(), RequestLogging(logger, DefaultLoggingConfig()))

	serve(r, http.MethodGet, "/ok", nil)
	serve(r, http.MethodGet, "/bad", nil)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, "/ok", entries[0].ContextMap()["path"])
	assert.NotEmpty(t, entries[0].ContextMap()[logging.FieldRequestID])
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
}

func TestRequestLogging_SkipsHealthChecks(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	r := gin.New()
	r.Use(RequestLogging(logging.NewLoggerFromCore(core), DefaultLoggingConfig()))
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(r, http.MethodGet, "/healthz", nil)
	assert.Zero(t, logs.Len())
}

func TestRequestLogging_SlowRequestWarns(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	r := gin.New()
	r.Use(RequestLogging(logging.NewLoggerFromCore(core), LoggingConfig{SlowThreshold: time.Millisecond}))
	r.GET("/slow", func(c *gin.Context) {
		time.Sleep(5 * time.Millisecond)
		c.Status(http.StatusOK)
	})

	serve(r, http.MethodGet, "/slow", nil)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zap.WarnLevel, logs.All()[0].Level)
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	r := newEngine(Recovery(logging.NewLoggerFromCore(core)))

	w := serve(r, http.MethodGet, "/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "COMMON_001")
	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

// ---------------------------------------------------------------------------
// Metrics
// ---------------------------------------------------------------------------

func TestMetrics_UsesRouteTemplate(t *testing.T) {
	c, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "mw"}, nil)
	require.NoError(t, err)
	r := newEngine(Metrics(prometheus.NewAppMetrics(c)))

	serve(r, http.MethodGet, "/items/42", nil)
	serve(r, http.MethodGet, "/items/43", nil)
	serve(r, http.MethodGet, "/nowhere", nil)

	body := serve(c.Handler(), http.MethodGet, "/metrics", nil).Body.String()
	assert.Contains(t, body, `mw_http_requests_total{method="GET",path="/items/:id",status_code="200"} 2`)
	assert.Contains(t, body, `path="unmatched",status_code="404"`)
}

// ---------------------------------------------------------------------------
// CORS
// ---------------------------------------------------------------------------

func TestCORS_PreflightRequest(t *testing.T) {
	r := newEngine(CORS(DefaultCORSConfig("https://app.example.com")))
	r.OPTIONS("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, http.MethodOptions, "/ok", map[string]string{
		"Origin":                        "https://app.example.com",
		"Access-Control-Request-Method": http.MethodPost,
	})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Methods"))
}

func TestCORS_SimpleRequestExposesHeaders(t *testing.T) {
	r := newEngine(CORS(DefaultCORSConfig("https://app.example.com")))

	w := serve(r, http.MethodGet, "/ok", map[string]string{"Origin": "https://app.example.com"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), HeaderRequestID)
}

func TestCORS_WildcardAllowsAll(t *testing.T) {
	r := newEngine(CORS(DefaultCORSConfig("*")))

	w := serve(r, http.MethodGet, "/ok", map[string]string{"Origin": "https://anything.test"})
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_NoOriginsIsPassThrough(t *testing.T) {
	r := newEngine(CORS(DefaultCORSConfig()))

	w := serve(r, http.MethodGet, "/ok", map[string]string{"Origin": "https://app.example.com"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

// ---------------------------------------------------------------------------
// RateLimit
// ---------------------------------------------------------------------------

func TestRateLimit_RejectsOverBurst(t *testing.T) {
	l := NewClientLimiter(RateLimitConfig{RequestsPerSecond: 0.001, BurstSize: 2})
	defer l.Stop()
	r := newEngine(RateLimit(l))

	for i := 0; i < 2; i++ {
		w := serve(r, http.MethodGet, "/ok", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}
	w := serve(r, http.MethodGet, "/ok", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")
}

func TestRateLimit_KeysAreIndependent(t *testing.T) {
	l := NewClientLimiter(RateLimitConfig{
		RequestsPerSecond: 0.001,
		BurstSize:         1,
		KeyFunc:           func(c *gin.Context) string { return c.GetHeader("X-Client") },
	})
	defer l.Stop()
	r := newEngine(RateLimit(l))

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/ok", map[string]string{"X-Client": "a"}).Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/ok", map[string]string{"X-Client": "b"}).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(r, http.MethodGet, "/ok", map[string]string{"X-Client": "a"}).Code)
	assert.Equal(t, 2, l.Len())
}

func TestClientLimiter_CleanupForgetsIdleClients(t *testing.T) {
	l := NewClientLimiter(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, CleanupInterval: time.Minute})
	defer l.Stop()
	now := time.Now()
	l.now = func() time.Time { return now }

	l.Allow("a")
	now = now.Add(2 * time.Minute)
	l.Allow("b")
	l.cleanup()
	assert.Equal(t, 1, l.Len())

	l.Stop()
	l.Stop()
}
