// Package client is the Go SDK for the BioRx-Intelligence HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/turtacn/BioRx-Intelligence/internal/application/analysis"
	"github.com/turtacn/BioRx-Intelligence/internal/domain/biomed"
	"github.com/turtacn/BioRx-Intelligence/pkg/errors"
)

const Version = "0.1.0"

// API paths.
const (
	PathAnalyze         = "/api/v1/analyze"
	PathRecommendations = "/api/v1/recommendations"
	PathReady           = "/readyz"
)

// Logger defines the logging interface used by the Client
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Debugf(format string, args ...interface{}) {}
func (noopLogger) Infof(format string, args ...interface{})  {}
func (noopLogger) Errorf(format string, args ...interface{}) {}

// Client talks to one BioRx-Intelligence server.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	apiKey       string
	userAgent    string
	logger       Logger
	retryMax     int
	retryWaitMin time.Duration
	retryWaitMax time.Duration
}

// APIError is an error response of the API.
type APIError struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	RequestID  string `json:"request_id"`
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("[%s] %s (HTTP %d)", e.Code, e.Message, e.StatusCode)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg + " [request_id=" + e.RequestID + "]"
}

// ErrorCode returns the service error code, for use with errors.IsCode
// style checks on the client side.
func (e *APIError) ErrorCode() errors.ErrorCode { return errors.ErrorCode(e.Code) }

func (e *APIError) IsRateLimited() bool { return e.StatusCode == http.StatusTooManyRequests }

func (e *APIError) IsServerError() bool { return e.StatusCode >= 500 && e.StatusCode < 600 }

// AnalyzeRequest is the JSON form of an analysis. Session is the state
// returned by the previous call, if any.
type AnalyzeRequest struct {
	Text          string          `json:"text"`
	Session       *biomed.Session `json:"session,omitempty"`
	RecommendMode string          `json:"recommend_mode,omitempty"`
}

// DocumentRequest uploads a document for analysis.
type DocumentRequest struct {
	FileName      string
	ContentType   string
	Data          []byte
	Text          string
	Session       *biomed.Session
	RecommendMode string
}

// SessionResponse is the new session and its rendered view.
type SessionResponse struct {
	Session biomed.Session `json:"session"`
	View    analysis.View  `json:"view"`
}

// HealthStatus is the readiness report of the server.
type HealthStatus struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentStatus `json:"components,omitempty"`
}

// ComponentStatus is the health check result of one dependency.
type ComponentStatus struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewClient creates a client for baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.InvalidParam("client: base URL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, errors.InvalidParam("client: base URL must be an http or https URL")
	}

	c := &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		httpClient:   &http.Client{Timeout: 2 * time.Minute},
		userAgent:    fmt.Sprintf("biorx-go-sdk/%s", Version),
		logger:       noopLogger{},
		retryMax:     3,
		retryWaitMin: 500 * time.Millisecond,
		retryWaitMax: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Analyze extracts entities from text.
func (c *Client) Analyze(ctx context.Context, req *AnalyzeRequest) (*SessionResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	var out SessionResponse
	if err := c.do(ctx, http.MethodPost, PathAnalyze, "application/json", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AnalyzeDocument uploads a document as multipart form data.
func (c *Client) AnalyzeDocument(ctx context.Context, req *DocumentRequest) (*SessionResponse, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, req.FileName))
	ct := req.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(req.Data); err != nil {
		return nil, err
	}
	if req.Text != "" {
		_ = w.WriteField("text", req.Text)
	}
	if req.RecommendMode != "" {
		_ = w.WriteField("recommend_mode", req.RecommendMode)
	}
	if req.Session != nil {
		raw, err := json.Marshal(req.Session)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal session: %w", err)
		}
		_ = w.WriteField("session", string(raw))
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	var out SessionResponse
	if err := c.do(ctx, http.MethodPost, PathAnalyze, w.FormDataContentType(), buf.Bytes(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Recommend recommends drugs for the diseases of session. An empty mode
// uses the server default.
func (c *Client) Recommend(ctx context.Context, session biomed.Session, mode string) (*SessionResponse, error) {
	body, err := json.Marshal(struct {
		Session biomed.Session `json:"session"`
		Mode    string         `json:"mode,omitempty"`
	}{session, mode})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	var out SessionResponse
	if err := c.do(ctx, http.MethodPost, PathRecommendations, "application/json", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ready fetches the readiness report once, without retries. A not-ready
// server answers with an APIError carrying status 503.
func (c *Client) Ready(ctx context.Context) (*HealthStatus, error) {
	var out HealthStatus
	if err := c.send(ctx, http.MethodGet, PathReady, "", nil, &out, 0); err != nil {
		return nil, err
	}
	return &out, nil
}

// do performs a request, retrying network errors, 429 and 5xx answers
// with exponential backoff.
func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte, result interface{}) error {
	return c.send(ctx, method, path, contentType, body, result, c.retryMax)
}

func (c *Client) send(ctx context.Context, method, path, contentType string, body []byte, result interface{}, retries int) error {
	fullURL := c.baseURL + path
	requestID := uuid.NewString()

	var respBody []byte
	op := func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("X-Request-ID", requestID)
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			c.logger.Errorf("request failed: %v", err)
			return err
		}
		defer resp.Body.Close()
		c.logger.Debugf("%s %s %d (%v)", method, path, resp.StatusCode, time.Since(start))

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}
		if resp.StatusCode >= 400 {
			apiErr := decodeAPIError(resp.StatusCode, requestID, data)
			if apiErr.IsRateLimited() || apiErr.IsServerError() {
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}
		respBody = data
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryWaitMin
	b.MaxInterval = c.retryWaitMax
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
	notify := func(err error, wait time.Duration) {
		c.logger.Infof("retrying %s %s in %v: %v", method, path, wait, err)
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return err
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}

func decodeAPIError(status int, requestID string, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, RequestID: requestID}
	var payload struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		Detail    string `json:"detail"`
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Code != "" {
		apiErr.Code = payload.Code
		apiErr.Message = payload.Message
		apiErr.Detail = payload.Detail
		if payload.RequestID != "" {
			apiErr.RequestID = payload.RequestID
		}
	} else {
		apiErr.Code = string(errors.ErrCodeInternal)
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}
