package biomed_ner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/turtacn/BioRx-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/BioRx-Intelligence/internal/intelligence/common"
	"github.com/turtacn/BioRx-Intelligence/pkg/errors"
)

// ---------------------------------------------------------------------------
// Interfaces
// ---------------------------------------------------------------------------

// Recognizer labels biomedical spans in free text.
type Recognizer interface {
	Recognize(ctx context.Context, text string) ([]Span, error)
	AggregationStrategy() string
}

// Span is one labeled region of the input. Start and End are character
// (rune) offsets into the recognized text, as token-classification endpoints
// report them; both are zero when the backend does not report offsets.
type Span struct {
	Word  string  `json:"word"`
	Label string  `json:"label"`
	Score float64 `json:"score"`
	Start int     `json:"start"`
	End   int     `json:"end"`
}

// Aggregation strategies.
const (
	AggregationSimple = "simple"
	AggregationNone   = "none"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// Config holds configuration for the recognizer adapter.
type Config struct {
	ModelName           string        `json:"model_name" yaml:"model_name"`
	AggregationStrategy string        `json:"aggregation_strategy" yaml:"aggregation_strategy"`
	MinScore            float64       `json:"min_score" yaml:"min_score"`
	Timeout             time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		ModelName:           "biobert-ner-bc5cdr-jnlpba",
		AggregationStrategy: AggregationSimple,
		MinScore:            0,
		Timeout:             30 * time.Second,
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.ModelName == "" {
		return errors.InvalidParam("model_name is required")
	}
	switch c.AggregationStrategy {
	case AggregationSimple, AggregationNone:
	default:
		return errors.InvalidParam(fmt.Sprintf("unsupported aggregation_strategy %q", c.AggregationStrategy))
	}
	if c.MinScore < 0 || c.MinScore > 1 {
		return errors.InvalidParam("min_score must be in [0, 1]")
	}
	return nil
}

// ---------------------------------------------------------------------------
// recognizerImpl
// ---------------------------------------------------------------------------

type recognizerImpl struct {
	backend common.ModelBackend
	config  *Config
	logger  logging.Logger
	metrics common.IntelligenceMetrics
}

// NewRecognizer creates a recognizer over backend.
func NewRecognizer(
	backend common.ModelBackend,
	config *Config,
	logger logging.Logger,
	metrics common.IntelligenceMetrics,
) (Recognizer, error) {
	if backend == nil {
		return nil, errors.InvalidParam("backend is required")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = common.NewNoopIntelligenceMetrics()
	}
	return &recognizerImpl{
		backend: backend,
		config:  config,
		logger:  logging.OrNop(logger).Named("biomed_ner"),
		metrics: metrics,
	}, nil
}

func (r *recognizerImpl) AggregationStrategy() string { return r.config.AggregationStrategy }

// Recognize sends text to the backend and returns spans in backend order.
// Any backend failure is reported as ModelUnavailable.
func (r *recognizerImpl) Recognize(ctx context.Context, text string) ([]Span, error) {
	if strings.TrimSpace(text) == "" {
		return []Span{}, nil
	}

	start := time.Now()
	preds, err := r.invokeBackend(ctx, text)
	r.metrics.RecordInference(ctx, &common.InferenceMetricParams{
		ModelName:   r.config.ModelName,
		TaskType:    common.TaskNER,
		DurationMs:  float64(time.Since(start).Milliseconds()),
		Success:     err == nil,
		InputLength: len(text),
	})
	if err != nil {
		r.logger.Error("recognizer backend failed",
			logging.String(logging.FieldModel, r.config.ModelName),
			logging.Err(err),
		)
		return nil, errors.ModelUnavailable(err, r.config.ModelName)
	}

	var spans []Span
	switch {
	case allAggregated(preds):
		spans = fromPredictions(preds)
	case r.config.AggregationStrategy == AggregationNone:
		spans = fromPredictions(preds)
	default:
		spans = aggregateSimple(text, preds)
	}

	out := make([]Span, 0, len(spans))
	for _, s := range spans {
		if s.Score < r.config.MinScore {
			continue
		}
		out = append(out, s)
	}

	r.logger.Debug("recognized spans",
		logging.Int("tokens", len(preds)),
		logging.Int("spans", len(out)),
		logging.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

func (r *recognizerImpl) invokeBackend(ctx context.Context, text string) ([]common.TokenPrediction, error) {
	payload, err := common.EncodeTokenClassificationRequest(text, r.config.AggregationStrategy)
	if err != nil {
		return nil, err
	}
	req := &common.PredictRequest{
		ModelName: r.config.ModelName,
		InputData: payload,
		Metadata:  map[string]string{"task": common.TaskNER},
	}

	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	resp, err := r.backend.Predict(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: empty response", common.ErrServingUnavailable)
	}
	return common.DecodeTokenPredictions(resp.Outputs[common.OutputBody])
}

var _ Recognizer = (*recognizerImpl)(nil)
