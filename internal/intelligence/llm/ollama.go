package llm

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/turtacn/BioRx-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/BioRx-Intelligence/pkg/errors"
)

// ollamaGenerator is the subset of *api.Client used here.
type ollamaGenerator interface {
	Generate(ctx context.Context, req *api.GenerateRequest, fn api.GenerateResponseFunc) error
}

// Ollama answers prompts with a locally served model.
type Ollama struct {
	client      ollamaGenerator
	model       string
	temperature float64
	timeout     time.Duration
	logger      logging.Logger
}

// NewOllama connects to cfg.OllamaHost, or to OLLAMA_HOST when it is empty.
func NewOllama(cfg Config, logger logging.Logger) (*Ollama, error) {
	var client *api.Client
	if cfg.OllamaHost != "" {
		base, err := url.Parse(cfg.OllamaHost)
		if err != nil {
			return nil, errors.ModelUnavailable(err, cfg.Model)
		}
		client = api.NewClient(base, http.DefaultClient)
	} else {
		c, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, errors.ModelUnavailable(err, cfg.Model)
		}
		client = c
	}
	return newOllama(client, cfg, logger), nil
}

func newOllama(client ollamaGenerator, cfg Config, logger logging.Logger) *Ollama {
	return &Ollama{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		logger:      logging.OrNop(logger).Named("ollama"),
	}
}

func (o *Ollama) Name() string { return o.model }

// Generate runs a non-streaming completion.
func (o *Ollama) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := withTimeout(ctx, o.timeout)
	defer cancel()

	stream := false
	req := &api.GenerateRequest{
		Model:   o.model,
		Prompt:  prompt,
		Stream:  &stream,
		Options: map[string]interface{}{"temperature": o.temperature},
	}

	var sb strings.Builder
	err := o.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		sb.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", errors.GenerativeCallFailed(err, o.model)
	}
	return strings.TrimSpace(sb.String()), nil
}

var _ Model = (*Ollama)(nil)
