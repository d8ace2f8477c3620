// Package llm wraps generative language models behind a single-prompt
// interface and provides caching, retry and instrumentation decorators.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/turtacn/BioRx-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/BioRx-Intelligence/pkg/errors"
)

// Model is a generative model that answers a single text prompt.
type Model interface {
	Generate(ctx context.Context, prompt string) (string, error)
	// Name identifies the underlying model, e.g. "gemini-2.0-flash".
	Name() string
}

// Provider names.
const (
	ProviderGoogleAI = "googleai"
	ProviderOllama   = "ollama"
)

// Config holds provider settings.
type Config struct {
	Provider    string        `json:"provider" yaml:"provider"`
	Model       string        `json:"model" yaml:"model"`
	APIKey      string        `json:"-" yaml:"api_key"`
	OllamaHost  string        `json:"ollama_host" yaml:"ollama_host"`
	Temperature float64       `json:"temperature" yaml:"temperature"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Model == "" {
		return errors.InvalidParam("model is required")
	}
	if c.Temperature < 0 || c.Temperature > 2.0 {
		return errors.InvalidParam("temperature must be between 0 and 2.0")
	}
	switch c.Provider {
	case ProviderGoogleAI, ProviderOllama:
	default:
		return errors.InvalidParam(fmt.Sprintf("unknown provider %q", c.Provider))
	}
	return nil
}

// New builds the provider named by cfg.Provider.
func New(ctx context.Context, cfg Config, logger logging.Logger) (Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case ProviderOllama:
		return NewOllama(cfg, logger)
	default:
		return NewGoogleAI(ctx, cfg, logger)
	}
}

// withTimeout applies d to ctx when d is positive.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
