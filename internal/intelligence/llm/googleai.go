package llm

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"

	"github.com/turtacn/BioRx-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/BioRx-Intelligence/pkg/errors"
)

var errMissingAPIKey = stderrors.New("api key is empty")

// GoogleAI answers prompts with a Gemini model through langchaingo.
type GoogleAI struct {
	client      llms.Model
	model       string
	temperature float64
	timeout     time.Duration
	logger      logging.Logger
}

// NewGoogleAI connects to the Gemini API with cfg.APIKey.
func NewGoogleAI(ctx context.Context, cfg Config, logger logging.Logger) (*GoogleAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.ModelUnavailable(errMissingAPIKey, cfg.Model)
	}
	client, err := googleai.New(ctx,
		googleai.WithAPIKey(cfg.APIKey),
		googleai.WithDefaultModel(cfg.Model),
	)
	if err != nil {
		return nil, errors.ModelUnavailable(err, cfg.Model)
	}
	return NewGoogleAIWithClient(client, cfg, logger), nil
}

// NewGoogleAIWithClient wraps an existing langchaingo model.
func NewGoogleAIWithClient(client llms.Model, cfg Config, logger logging.Logger) *GoogleAI {
	return &GoogleAI{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		logger:      logging.OrNop(logger).Named("googleai"),
	}
}

func (g *GoogleAI) Name() string { return g.model }

// Generate sends prompt as a single human message and returns the trimmed
// answer. Failures are reported as GenerativeCallFailed.
func (g *GoogleAI) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	out, err := llms.GenerateFromSinglePrompt(ctx, g.client, prompt,
		llms.WithModel(g.model),
		llms.WithTemperature(g.temperature),
	)
	if err != nil {
		return "", errors.GenerativeCallFailed(err, g.model)
	}
	return strings.TrimSpace(out), nil
}

var _ Model = (*GoogleAI)(nil)
