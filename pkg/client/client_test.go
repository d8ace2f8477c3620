package client

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/BioRx-Intelligence/internal/domain/biomed"
	"github.com/turtacn/BioRx-Intelligence/pkg/errors"
)

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts = append([]Option{WithRetryWait(time.Millisecond, 2*time.Millisecond)}, opts...)
	c, err := NewClient(server.URL, opts...)
	require.NoError(t, err)
	return c
}

func sessionJSON(w http.ResponseWriter, diseases ...string) {
	s := biomed.NewSession()
	s.Diseases = biomed.NewDiseaseSet(diseases...)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"session": s,
		"view":    map[string]interface{}{"columns": []string{"Entity", "Label", "Score"}, "rows": [][]string{}, "diseases": diseases},
	})
}

type testLogger struct{ count int32 }

func (l *testLogger) Debugf(string, ...interface{}) { atomic.AddInt32(&l.count, 1) }
func (l *testLogger) Infof(string, ...interface{})  { atomic.AddInt32(&l.count, 1) }
func (l *testLogger) Errorf(string, ...interface{}) { atomic.AddInt32(&l.count, 1) }

// ---------------------------------------------------------------------------
// Constructor
// ---------------------------------------------------------------------------

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient("")
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
	_, err = NewClient("ftp://host")
	assert.Error(t, err)
	_, err = NewClient("not a url")
	assert.Error(t, err)

	c, err := NewClient("http://api.example.com/", WithRetryMax(5), WithUserAgent("ua"))
	require.NoError(t, err)
	assert.Equal(t, "http://api.example.com", c.baseURL)
	assert.Equal(t, 5, c.retryMax)
	assert.Equal(t, "ua", c.userAgent)
}

// ---------------------------------------------------------------------------
// Endpoints
// ---------------------------------------------------------------------------

func TestAnalyze_PostsJSON(t *testing.T) {
	var got AnalyzeRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathAnalyze, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		sessionJSON(w, "asthma")
	}, WithAPIKey("k"))

	prev := biomed.NewSession()
	resp, err := c.Analyze(context.Background(), &AnalyzeRequest{Text: "asthma", Session: &prev, RecommendMode: "batch"})
	require.NoError(t, err)
	assert.Equal(t, "asthma", got.Text)
	assert.Equal(t, "batch", got.RecommendMode)
	require.NotNil(t, got.Session)
	assert.Equal(t, prev.ID, got.Session.ID)
	assert.True(t, resp.Session.Diseases.Contains("asthma"))
	assert.Equal(t, []string{"asthma"}, resp.View.Diseases)
}

func TestAnalyzeDocument_PostsMultipart(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, fh, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "note.csv", fh.Filename)
		assert.Equal(t, "text/csv", fh.Header.Get("Content-Type"))
		assert.Equal(t, "condition\ngout\n", string(data))
		assert.Equal(t, "per_disease", r.FormValue("recommend_mode"))

		var s biomed.Session
		require.NoError(t, json.Unmarshal([]byte(r.FormValue("session")), &s))
		assert.Equal(t, "prev-id", s.ID)
		sessionJSON(w, "gout")
	})

	prev := biomed.Session{ID: "prev-id"}
	resp, err := c.AnalyzeDocument(context.Background(), &DocumentRequest{
		FileName:      "note.csv",
		ContentType:   "text/csv",
		Data:          []byte("condition\ngout\n"),
		Session:       &prev,
		RecommendMode: "per_disease",
	})
	require.NoError(t, err)
	assert.True(t, resp.Session.Diseases.Contains("gout"))
}

func TestRecommend_PostsSessionAndMode(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathRecommendations, r.URL.Path)
		var body struct {
			Session biomed.Session `json:"session"`
			Mode    string         `json:"mode"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "batch", body.Mode)
		assert.True(t, body.Session.Diseases.Contains("gout"))
		sessionJSON(w, "gout")
	})

	s := biomed.NewSession()
	s.Diseases = biomed.NewDiseaseSet("gout")
	_, err := c.Recommend(context.Background(), s, "batch")
	require.NoError(t, err)
}

// ---------------------------------------------------------------------------
// Errors and retries
// ---------------------------------------------------------------------------

func TestDo_RetriesServerErrors(t *testing.T) {
	var calls int32
	logger := &testLogger{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, `{"code":"BIORX_006","message":"generative model call failed"}`)
			return
		}
		sessionJSON(w, "asthma")
	}, WithLogger(logger))

	_, err := c.Analyze(context.Background(), &AnalyzeRequest{Text: "asthma"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Positive(t, atomic.LoadInt32(&logger.count))
}

func TestDo_GivesUpAfterRetryMax(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"code":"BIORX_003","message":"model unavailable","detail":"gemini"}`)
	}, WithRetryMax(1))

	_, err := c.Analyze(context.Background(), &AnalyzeRequest{Text: "x"})
	var apiErr *APIError
	require.True(t, stderrors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, errors.ErrCodeModelUnavailable, apiErr.ErrorCode())
	assert.Equal(t, "gemini", apiErr.Detail)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestDo_ClientErrorsAreNotRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnsupportedMediaType)
		fmt.Fprint(w, `{"code":"BIORX_001","message":"unsupported document format","detail":"png","request_id":"rid-1"}`)
	})

	_, err := c.AnalyzeDocument(context.Background(), &DocumentRequest{FileName: "scan.png", Data: []byte{1}})
	var apiErr *APIError
	require.True(t, stderrors.As(err, &apiErr))
	assert.Equal(t, "BIORX_001", apiErr.Code)
	assert.Equal(t, "rid-1", apiErr.RequestID)
	assert.Contains(t, apiErr.Error(), "[BIORX_001]")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDo_PlainTextErrorBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "page not found", http.StatusNotFound)
	})
	_, err := c.Analyze(context.Background(), &AnalyzeRequest{Text: "x"})
	var apiErr *APIError
	require.True(t, stderrors.As(err, &apiErr))
	assert.Equal(t, string(errors.ErrCodeInternal), apiErr.Code)
	assert.Equal(t, "page not found", apiErr.Message)
}

func TestDo_StopsOnCancelledContext(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}, WithRetryWait(time.Hour, time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Analyze(ctx, &AnalyzeRequest{Text: "x"})
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestReady_NoRetry(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, PathReady, r.URL.Path)
		if atomic.LoadInt32(&calls) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"code":"COMMON_003","message":"not ready"}`)
			return
		}
		fmt.Fprint(w, `{"status":"ready","components":{"redis":{"status":"up","latency":"1ms"}}}`)
	})

	_, err := c.Ready(context.Background())
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	status, err := c.Ready(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ready", status.Status)
	assert.Equal(t, "up", status.Components["redis"].Status)
}
