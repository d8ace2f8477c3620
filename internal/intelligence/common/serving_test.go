package common

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPredictRequest() *PredictRequest {
	payload, _ := EncodeTokenClassificationRequest("Patient has asthma.", "simple")
	return &PredictRequest{ModelName: "biobert", InputData: payload}
}

func TestNewHTTPBackend_Validation(t *testing.T) {
	_, err := NewHTTPBackend(HTTPBackendConfig{}, nil)
	assert.Error(t, err)

	_, err = NewHTTPBackend(HTTPBackendConfig{Endpoint: "not a url"}, nil)
	assert.Error(t, err)

	b, err := NewHTTPBackend(HTTPBackendConfig{Endpoint: "http://localhost:9000/ner"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, b)
}

func TestHTTPBackend_Predict_Success(t *testing.T) {
	var gotAuth string
	var gotBody TokenClassificationRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"entity_group":"Disease","word":"asthma","score":0.98,"start":12,"end":18}]`))
	}))
	defer srv.Close()

	b, err := NewHTTPBackend(HTTPBackendConfig{Endpoint: srv.URL, APIToken: "secret"}, nil)
	require.NoError(t, err)

	resp, err := b.Predict(context.Background(), newTestPredictRequest())
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "Patient has asthma.", gotBody.Inputs)
	assert.Equal(t, "simple", gotBody.Parameters.AggregationStrategy)

	preds, err := DecodeTokenPredictions(resp.Outputs[OutputBody])
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.Equal(t, "Disease", preds[0].Label())
	assert.True(t, preds[0].Aggregated())
}

func TestHTTPBackend_Predict_StatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusServiceUnavailable, ErrServingUnavailable},
		{http.StatusInternalServerError, ErrServingUnavailable},
		{http.StatusNotFound, ErrModelNotDeployed},
		{http.StatusBadRequest, ErrInvalidInput},
		{http.StatusGatewayTimeout, ErrInferenceTimeout},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(`{"error":"Model is currently loading"}`))
		}))
		b, err := NewHTTPBackend(HTTPBackendConfig{Endpoint: srv.URL}, nil)
		require.NoError(t, err)

		_, err = b.Predict(context.Background(), newTestPredictRequest())
		assert.True(t, errors.Is(err, tc.want), "status %d: %v", tc.status, err)
		srv.Close()
	}
}

func TestHTTPBackend_Predict_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	b, err := NewHTTPBackend(HTTPBackendConfig{Endpoint: url, Timeout: time.Second}, nil)
	require.NoError(t, err)

	_, err = b.Predict(context.Background(), newTestPredictRequest())
	assert.ErrorIs(t, err, ErrServingUnavailable)
}

func TestHTTPBackend_Predict_InvalidRequest(t *testing.T) {
	b, err := NewHTTPBackend(HTTPBackendConfig{Endpoint: "http://localhost:1/ner"}, nil)
	require.NoError(t, err)

	_, err = b.Predict(context.Background(), &PredictRequest{ModelName: "m"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestHTTPBackend_Closed(t *testing.T) {
	b, err := NewHTTPBackend(HTTPBackendConfig{Endpoint: "http://localhost:1/ner"}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	_, err = b.Predict(context.Background(), newTestPredictRequest())
	assert.ErrorIs(t, err, ErrClientClosed)
	assert.ErrorIs(t, b.Healthy(context.Background()), ErrClientClosed)
}

func TestHTTPBackend_Healthy(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	b, err := NewHTTPBackend(HTTPBackendConfig{Endpoint: srv.URL + "/predict", HealthURL: srv.URL + "/health"}, nil)
	require.NoError(t, err)
	assert.NoError(t, b.Healthy(context.Background()))

	status = http.StatusServiceUnavailable
	assert.ErrorIs(t, b.Healthy(context.Background()), ErrServingUnavailable)
}

func TestMockBackend_CountsCalls(t *testing.T) {
	m := NewMockBackend()
	m.PredictFunc = func(ctx context.Context, req *PredictRequest) (*PredictResponse, error) {
		return nil, ErrServingUnavailable
	}
	_, err := m.Predict(context.Background(), newTestPredictRequest())
	assert.ErrorIs(t, err, ErrServingUnavailable)
	assert.Equal(t, 1, m.Calls())
	assert.Equal(t, "biobert", m.Requests()[0].ModelName)
}
