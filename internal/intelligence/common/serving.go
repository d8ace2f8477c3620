package common

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/turtacn/BioRx-Intelligence/internal/infrastructure/monitoring/logging"
)

// HTTPBackendConfig configures an HTTPBackend.
type HTTPBackendConfig struct {
	// Endpoint is the full inference URL the payload is POSTed to.
	Endpoint string
	// Healthy sends GET to HealthURL. Empty means Healthy only
	// checks that the client is open.
	HealthURL string
	APIToken  string
	Timeout   time.Duration
	// Client overrides the default http.Client.
	Client *http.Client
}

// HTTPBackend implements ModelBackend over a JSON inference endpoint.
type HTTPBackend struct {
	endpoint  string
	healthURL string
	token     string
	client    *http.Client
	logger    logging.Logger
	closed    atomic.Bool
}

// NewHTTPBackend creates a new HTTP backend.
func NewHTTPBackend(cfg HTTPBackendConfig, logger logging.Logger) (*HTTPBackend, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint cannot be empty")
	}
	if _, err := url.ParseRequestURI(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPBackend{
		endpoint:  cfg.Endpoint,
		healthURL: cfg.HealthURL,
		token:     cfg.APIToken,
		client:    client,
		logger:    logging.OrNop(logger),
	}, nil
}

// Predict posts req.InputData and returns the body under Outputs[OutputBody].
func (b *HTTPBackend) Predict(ctx context.Context, req *PredictRequest) (*PredictResponse, error) {
	if b.closed.Load() {
		return nil, ErrClientClosed
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(req.InputData))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if b.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrServingUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrServingUnavailable, err)
	}

	if err := statusError(resp.StatusCode, body); err != nil {
		b.logger.Warn("inference endpoint returned error",
			logging.String(logging.FieldModel, req.ModelName),
			logging.Int("status", resp.StatusCode),
			logging.Truncated("body", string(body), 256),
		)
		return nil, err
	}

	return &PredictResponse{
		ModelName:       req.ModelName,
		Outputs:         map[string][]byte{OutputBody: body},
		InferenceTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

// Healthy checks HealthURL when configured.
func (b *HTTPBackend) Healthy(ctx context.Context) error {
	if b.closed.Load() {
		return ErrClientClosed
	}
	if b.healthURL == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.healthURL, nil)
	if err != nil {
		return err
	}
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServingUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: health status %d", ErrServingUnavailable, resp.StatusCode)
	}
	return nil
}

// Close marks the backend closed. Idle connections are released.
func (b *HTTPBackend) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	b.client.CloseIdleConnections()
	return nil
}

func statusError(code int, body []byte) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: status %d", ErrModelNotDeployed, code)
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: status %d: %s", ErrInvalidInput, code, truncate(body, 200))
	case code == http.StatusGatewayTimeout || code == http.StatusRequestTimeout:
		return fmt.Errorf("%w: status %d", ErrInferenceTimeout, code)
	default:
		return fmt.Errorf("%w: status %d: %s", ErrServingUnavailable, code, truncate(body, 200))
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// ---------------------------------------------------------------------------
// MockBackend
// ---------------------------------------------------------------------------

// MockBackend is a ModelBackend whose behavior is set through func fields.
// It counts Predict calls.
type MockBackend struct {
	PredictFunc func(ctx context.Context, req *PredictRequest) (*PredictResponse, error)
	HealthyFunc func(ctx context.Context) error

	mu       sync.Mutex
	requests []*PredictRequest
}

func NewMockBackend() *MockBackend {
	return &MockBackend{}
}

func (m *MockBackend) Predict(ctx context.Context, req *PredictRequest) (*PredictResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.PredictFunc != nil {
		return m.PredictFunc(ctx, req)
	}
	return &PredictResponse{ModelName: req.ModelName, Outputs: map[string][]byte{OutputBody: []byte("[]")}}, nil
}

func (m *MockBackend) Healthy(ctx context.Context) error {
	if m.HealthyFunc != nil {
		return m.HealthyFunc(ctx)
	}
	return nil
}

func (m *MockBackend) Close() error { return nil }

// Calls returns the number of Predict invocations.
func (m *MockBackend) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns the recorded Predict requests.
func (m *MockBackend) Requests() []*PredictRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*PredictRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

var (
	_ ModelBackend = (*HTTPBackend)(nil)
	_ ModelBackend = (*MockBackend)(nil)
)
