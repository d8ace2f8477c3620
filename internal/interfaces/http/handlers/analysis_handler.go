package handlers

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/BioRx-Intelligence/internal/application/analysis"
	"github.com/turtacn/BioRx-Intelligence/internal/application/document"
	"github.com/turtacn/BioRx-Intelligence/internal/application/recommendation"
	"github.com/turtacn/BioRx-Intelligence/internal/domain/biomed"
	"github.com/turtacn/BioRx-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/BioRx-Intelligence/pkg/errors"
)

// Multipart form fields of POST /analyze.
const (
	FormText          = "text"
	FormFile          = "file"
	FormSession       = "session"
	FormRecommendMode = "recommend_mode"
)

// AnalyzeRequest is the JSON body of POST /analyze. Session is the
// client-held state from the previous response.
type AnalyzeRequest struct {
	Text          string          `json:"text"`
	Session       *biomed.Session `json:"session,omitempty"`
	RecommendMode string          `json:"recommend_mode,omitempty"`
}

// RecommendRequest is the body of POST /recommendations.
type RecommendRequest struct {
	Session biomed.Session `json:"session"`
	Mode    string         `json:"mode,omitempty"`
}

// SessionResponse carries the new session and its rendered view.
type SessionResponse struct {
	Session biomed.Session `json:"session"`
	View    analysis.View  `json:"view"`
}

// AnalysisHandler serves analysis and recommendation requests.
type AnalysisHandler struct {
	service     analysis.Service
	defaultMode recommendation.Mode
	maxBytes    int64
	logger      logging.Logger
}

// NewAnalysisHandler creates the handler. defaultMode applies when a
// recommendation request names no mode.
func NewAnalysisHandler(service analysis.Service, defaultMode recommendation.Mode, maxUploadBytes int64, logger logging.Logger) *AnalysisHandler {
	if defaultMode == "" {
		defaultMode = recommendation.ModePerDisease
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = document.DefaultMaxBytes
	}
	return &AnalysisHandler{
		service:     service,
		defaultMode: defaultMode,
		maxBytes:    maxUploadBytes,
		logger:      logging.OrNop(logger).Named("analysis_handler"),
	}
}

// RegisterRoutes mounts the analysis routes on rg.
func (h *AnalysisHandler) RegisterRoutes(rg gin.IRoutes) {
	rg.POST("/analyze", h.Analyze)
	rg.POST("/recommendations", h.Recommend)
}

// Analyze handles POST /analyze with either a JSON body or a multipart form
// carrying an optional file. An empty input answers 200 with a warning.
func (h *AnalysisHandler) Analyze(c *gin.Context) {
	var (
		prev  biomed.Session
		input analysis.AnalyzeInput
		mode  string
	)

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.Request.ParseMultipartForm(h.maxBytes); err != nil {
			badRequest(c, h.logger, "invalid multipart form", err)
			return
		}
		input.Text = c.PostForm(FormText)
		mode = c.PostForm(FormRecommendMode)
		if raw := c.PostForm(FormSession); raw != "" {
			if err := json.Unmarshal([]byte(raw), &prev); err != nil {
				badRequest(c, h.logger, "invalid session", err)
				return
			}
		}
		if fh, err := c.FormFile(FormFile); err == nil {
			src, err := h.readUpload(fh)
			if err != nil {
				writeAppError(c, h.logger, err)
				return
			}
			input.Document = src
		}
	} else {
		var req AnalyzeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, h.logger, "invalid request body", err)
			return
		}
		input.Text = req.Text
		mode = req.RecommendMode
		if req.Session != nil {
			prev = *req.Session
		}
	}

	if mode != "" {
		m, err := recommendation.ParseMode(mode)
		if err != nil {
			writeAppError(c, h.logger, err)
			return
		}
		input.RecommendMode = m
	}

	session, err := h.service.Analyze(c.Request.Context(), prev, &input)
	if err != nil {
		writeAppError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, SessionResponse{Session: session, View: analysis.NewView(session)})
}

// Recommend handles POST /recommendations for the diseases of the posted
// session.
func (h *AnalysisHandler) Recommend(c *gin.Context) {
	var req RecommendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "invalid request body", err)
		return
	}
	mode := h.defaultMode
	if req.Mode != "" {
		m, err := recommendation.ParseMode(req.Mode)
		if err != nil {
			writeAppError(c, h.logger, err)
			return
		}
		mode = m
	}

	session, err := h.service.Recommend(c.Request.Context(), req.Session, mode)
	if err != nil {
		writeAppError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, SessionResponse{Session: session, View: analysis.NewView(session)})
}

func (h *AnalysisHandler) readUpload(fh *multipart.FileHeader) (*document.Source, error) {
	if fh.Size > h.maxBytes {
		return nil, errors.UnsupportedFormat(fh.Filename).WithDetail("too large")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidParam, "cannot open upload")
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, h.maxBytes+1))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidParam, "cannot read upload")
	}
	return &document.Source{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}
