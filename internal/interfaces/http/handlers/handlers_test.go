package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/BioRx-Intelligence/internal/application/analysis"
	"github.com/turtacn/BioRx-Intelligence/internal/application/recommendation"
	"github.com/turtacn/BioRx-Intelligence/internal/domain/biomed"
	"github.com/turtacn/BioRx-Intelligence/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// --- Mock Analysis Service ---

type mockAnalysisService struct {
	mock.Mock
}

func (m *mockAnalysisService) Analyze(ctx context.Context, prev biomed.Session, input *analysis.AnalyzeInput) (biomed.Session, error) {
	args := m.Called(ctx, prev, input)
	return args.Get(0).(biomed.Session), args.Error(1)
}

func (m *mockAnalysisService) Recommend(ctx context.Context, s biomed.Session, mode recommendation.Mode) (biomed.Session, error) {
	args := m.Called(ctx, s, mode)
	return args.Get(0).(biomed.Session), args.Error(1)
}

func (m *mockAnalysisService) Variant() biomed.Variant { return biomed.VariantRecognizer }

func newAnalysisRouter(svc analysis.Service) *gin.Engine {
	r := gin.New()
	NewAnalysisHandler(svc, "", 1<<20, nil).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func postJSON(r http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func goutSession() biomed.Session {
	s := biomed.NewSession()
	s.Variant = biomed.VariantRecognizer
	s.AnalyzedAt = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	s.Entities = []biomed.Entity{{Category: biomed.CategoryDisease, Label: "Disease", Text: "gout"}}
	s.Rows = []biomed.DisplayRow{{Word: "gout", Entity: "Disease"}}
	s.Diseases.Add("gout")
	return s
}

func TestAnalyze_JSON(t *testing.T) {
	svc := new(mockAnalysisService)
	out := goutSession()
	svc.On("Analyze", mock.Anything, biomed.Session{}, mock.MatchedBy(func(in *analysis.AnalyzeInput) bool {
		return in.Text == "Patient has gout." && in.Document == nil && in.RecommendMode == ""
	})).Return(out, nil)

	w := postJSON(newAnalysisRouter(svc), "/api/v1/analyze", AnalyzeRequest{Text: "Patient has gout."})
	require.Equal(t, http.StatusOK, w.Code)

	var resp SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, out.ID, resp.Session.ID)
	assert.Equal(t, []string{"gout"}, resp.Session.Diseases.Names())
	assert.Equal(t, []string{"Word", "Entity"}, resp.View.Columns)
	assert.Equal(t, [][]string{{"gout", "Disease"}}, resp.View.Rows)
	svc.AssertExpectations(t)
}

func TestAnalyze_EmptyInputIsWarning(t *testing.T) {
	svc := new(mockAnalysisService)
	svc.On("Analyze", mock.Anything, mock.Anything, mock.Anything).
		Return(biomed.Session{Warning: analysis.WarningEmptyInput}, nil)

	w := postJSON(newAnalysisRouter(svc), "/api/v1/analyze", AnalyzeRequest{Text: "  "})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Please enter text or upload a file for analysis.")
}

func TestAnalyze_Multipart(t *testing.T) {
	svc := new(mockAnalysisService)
	prev := goutSession()
	svc.On("Analyze", mock.Anything, mock.MatchedBy(func(s biomed.Session) bool { return s.ID == prev.ID }),
		mock.MatchedBy(func(in *analysis.AnalyzeInput) bool {
			return in.Document != nil &&
				in.Document.Name == "notes.csv" &&
				string(in.Document.Data) == "a,b\nc,d\n" &&
				in.RecommendMode == recommendation.ModeBatch
		})).Return(goutSession(), nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	sessionJSON, _ := json.Marshal(prev)
	require.NoError(t, mw.WriteField(FormSession, string(sessionJSON)))
	require.NoError(t, mw.WriteField(FormRecommendMode, "batch"))
	fw, err := mw.CreateFormFile(FormFile, "notes.csv")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("a,b\nc,d\n"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	newAnalysisRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestAnalyze_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unsupported", errors.UnsupportedFormat("png"), http.StatusUnsupportedMediaType, "BIORX_001"},
		{"decode", errors.DecodeError(stderrors.New("bad zip"), "a.docx"), http.StatusUnprocessableEntity, "BIORX_002"},
		{"model", errors.ModelUnavailable(stderrors.New("down"), "ner"), http.StatusServiceUnavailable, "BIORX_003"},
		{"generative", errors.GenerativeCallFailed(stderrors.New("503"), "gemini"), http.StatusBadGateway, "BIORX_006"},
		{"plain", stderrors.New("secret internals"), http.StatusInternalServerError, "COMMON_001"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := new(mockAnalysisService)
			svc.On("Analyze", mock.Anything, mock.Anything, mock.Anything).Return(biomed.Session{}, tc.err)

			w := postJSON(newAnalysisRouter(svc), "/api/v1/analyze", AnalyzeRequest{Text: "x"})
			assert.Equal(t, tc.status, w.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tc.code, resp.Code)
			assert.NotContains(t, resp.Message, "secret internals")
		})
	}
}

func TestAnalyze_InvalidBodies(t *testing.T) {
	svc := new(mockAnalysisService)
	r := newAnalysisRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(r, "/api/v1/analyze", AnalyzeRequest{Text: "x", RecommendMode: "sideways"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything, mock.Anything)
}

func TestRecommend(t *testing.T) {
	svc := new(mockAnalysisService)
	in := goutSession()
	out := in.WithRecommendations(biomed.RecommendationMap{Items: []biomed.Recommendation{
		biomed.NewTextRecommendation("gout", "Allopurinol, Colchicine"),
	}})
	svc.On("Recommend", mock.Anything, mock.MatchedBy(func(s biomed.Session) bool { return s.ID == in.ID }),
		recommendation.ModePerDisease).Return(out, nil)

	w := postJSON(newAnalysisRouter(svc), "/api/v1/recommendations", RecommendRequest{Session: in})
	require.Equal(t, http.StatusOK, w.Code)

	var resp SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"Gout: Allopurinol, Colchicine"}, resp.View.Recommendations)
	require.NotNil(t, resp.Session.Recommendations)
	assert.Equal(t, []string{"gout"}, resp.Session.Recommendations.Keys())
	svc.AssertExpectations(t)
}

func TestRecommend_BatchMode(t *testing.T) {
	svc := new(mockAnalysisService)
	svc.On("Recommend", mock.Anything, mock.Anything, recommendation.ModeBatch).Return(goutSession(), nil)

	w := postJSON(newAnalysisRouter(svc), "/api/v1/recommendations", RecommendRequest{Session: goutSession(), Mode: "batch"})
	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

// --- Health ---

func TestHealth(t *testing.T) {
	healthy := CheckerFunc{ComponentName: "redis", Fn: func(context.Context) error { return nil }}
	broken := CheckerFunc{ComponentName: "minio", Fn: func(context.Context) error { return stderrors.New("down") }}

	r := gin.New()
	NewHealthHandler("1.0.0", healthy).RegisterRoutes(r)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"version":"1.0.0"`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	r = gin.New()
	NewHealthHandler("1.0.0", healthy, broken).RegisterRoutes(r)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp ReadinessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "not_ready", resp.Status)
	assert.Equal(t, "unhealthy", resp.Components["minio"].Status)
	assert.Equal(t, "healthy", resp.Components["redis"].Status)
}
