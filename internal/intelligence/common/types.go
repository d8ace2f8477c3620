package common

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// ModelBackend interface
// ---------------------------------------------------------------------------

// ModelBackend defines the interface for invoking a hosted inference model
// (Hugging Face inference endpoints, text-generation-inference, a local
// token-classification server).
type ModelBackend interface {
	Predict(ctx context.Context, req *PredictRequest) (*PredictResponse, error)
	Healthy(ctx context.Context) error
	Close() error
}

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrServingUnavailable = errors.New("serving unavailable")
	ErrModelNotDeployed   = errors.New("model not deployed")
	ErrInferenceTimeout   = errors.New("inference timeout")
	ErrClientClosed       = errors.New("client closed")
)

// OutputBody is the Outputs key under which HTTP backends store the raw
// response body.
const OutputBody = "body"

// ---------------------------------------------------------------------------
// Predict types
// ---------------------------------------------------------------------------

// PredictRequest carries the input payload for model inference.
type PredictRequest struct {
	ModelName string            `json:"model_name"`
	InputData []byte            `json:"input_data"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Validate checks if the request is valid.
func (r *PredictRequest) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil request", ErrInvalidInput)
	}
	if r.ModelName == "" {
		return fmt.Errorf("%w: model_name is required", ErrInvalidInput)
	}
	if len(r.InputData) == 0 {
		return fmt.Errorf("%w: input_data is required", ErrInvalidInput)
	}
	return nil
}

// PredictResponse carries the raw outputs from model inference.
type PredictResponse struct {
	ModelName       string            `json:"model_name"`
	Outputs         map[string][]byte `json:"outputs"`
	InferenceTimeMs int64             `json:"inference_time_ms"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// ---------------------------------------------------------------------------
// Token classification payloads
// ---------------------------------------------------------------------------

// TokenClassificationRequest is the JSON body accepted by token
// classification endpoints.
type TokenClassificationRequest struct {
	Inputs     string                        `json:"inputs"`
	Parameters TokenClassificationParameters `json:"parameters"`
}

// TokenClassificationParameters carries the optional request parameters.
type TokenClassificationParameters struct {
	AggregationStrategy string `json:"aggregation_strategy,omitempty"`
}

// TokenPrediction is one element of a token classification response. Raw
// token output carries Entity; aggregated output carries EntityGroup.
type TokenPrediction struct {
	Word        string  `json:"word"`
	Entity      string  `json:"entity,omitempty"`
	EntityGroup string  `json:"entity_group,omitempty"`
	Score       float64 `json:"score"`
	Start       int     `json:"start"`
	End         int     `json:"end"`
	Index       int     `json:"index,omitempty"`
}

// Label returns the entity label with the entity -> entity_group -> "Unknown"
// fallback.
func (p TokenPrediction) Label() string {
	if p.Entity != "" {
		return p.Entity
	}
	if p.EntityGroup != "" {
		return p.EntityGroup
	}
	return "Unknown"
}

// Aggregated reports whether the prediction was already merged by the server.
func (p TokenPrediction) Aggregated() bool {
	return p.Entity == "" && p.EntityGroup != ""
}

// EncodeTokenClassificationRequest builds the request payload for text.
func EncodeTokenClassificationRequest(text, strategy string) ([]byte, error) {
	return json.Marshal(TokenClassificationRequest{
		Inputs:     text,
		Parameters: TokenClassificationParameters{AggregationStrategy: strategy},
	})
}

// DecodeTokenPredictions decodes a token classification response body. Some
// servers wrap the list for single inputs as [[...]]; both forms are accepted.
func DecodeTokenPredictions(data []byte) ([]TokenPrediction, error) {
	var flat []TokenPrediction
	if err := json.Unmarshal(data, &flat); err == nil {
		return flat, nil
	}
	var nested [][]TokenPrediction
	if err := json.Unmarshal(data, &nested); err != nil {
		return nil, fmt.Errorf("decode token predictions: %w", err)
	}
	out := make([]TokenPrediction, 0)
	for _, inner := range nested {
		out = append(out, inner...)
	}
	return out, nil
}
