// Package config provides configuration loading, defaults, and validation for
// the BioRx-Intelligence service.
package config

import (
	"fmt"
	"time"

	"github.com/turtacn/BioRx-Intelligence/internal/infrastructure/monitoring/logging"
)

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	// RateLimitRPS limits requests per client on the model-backed routes.
	// Zero disables limiting.
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DocumentConfig holds upload limits for the document loader.
type DocumentConfig struct {
	MaxBytes int64 `mapstructure:"max_bytes"`
}

// ExtractionConfig selects the extraction variant.
type ExtractionConfig struct {
	// Variant is "recognizer" or "generative".
	Variant string `mapstructure:"variant"`
}

// NERConfig holds settings for the entity recognizer backend.
type NERConfig struct {
	Endpoint            string        `mapstructure:"endpoint"`
	ModelName           string        `mapstructure:"model_name"`
	APIToken            string        `mapstructure:"api_token"`
	AggregationStrategy string        `mapstructure:"aggregation_strategy"`
	MinScore            float64       `mapstructure:"min_score"`
	Timeout             time.Duration `mapstructure:"timeout"`
}

// RetryConfig controls exponential backoff for generative calls.
type RetryConfig struct {
	MaxRetries        int           `mapstructure:"max_retries"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
}

// LLMConfig holds settings for the generative model.
type LLMConfig struct {
	// Provider is "googleai" or "ollama".
	Provider    string        `mapstructure:"provider"`
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	OllamaHost  string        `mapstructure:"ollama_host"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Retry       RetryConfig   `mapstructure:"retry"`
}

// RecommendationConfig selects the recommendation mode.
type RecommendationConfig struct {
	// Mode is "per_disease" or "batch".
	Mode     string `mapstructure:"mode"`
	MaxDrugs int    `mapstructure:"max_drugs"`
}

// RedisConfig holds the response cache connection.
type RedisConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
}

// MinIOConfig holds the upload archive connection.
type MinIOConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
}

// KafkaConfig holds the analysis event stream connection.
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	GroupID string   `mapstructure:"group_id"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Path      string `mapstructure:"path"`
}

// Config is the root configuration object.
type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Log            logging.LogConfig    `mapstructure:"log"`
	Document       DocumentConfig       `mapstructure:"document"`
	Extraction     ExtractionConfig     `mapstructure:"extraction"`
	NER            NERConfig            `mapstructure:"ner"`
	LLM            LLMConfig            `mapstructure:"llm"`
	Recommendation RecommendationConfig `mapstructure:"recommendation"`
	Redis          RedisConfig          `mapstructure:"redis"`
	MinIO          MinIOConfig          `mapstructure:"minio"`
	Kafka          KafkaConfig          `mapstructure:"kafka"`
	Metrics        MetricsConfig        `mapstructure:"metrics"`
}

// Validate checks cross-field constraints. It assumes ApplyDefaults has run.
func (c *Config) Validate() error {
	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}

	// Document
	if c.Document.MaxBytes < 1 {
		return fmt.Errorf("config: document.max_bytes must be ≥ 1, got %d", c.Document.MaxBytes)
	}

	// Extraction
	switch c.Extraction.Variant {
	case ExtractionRecognizer:
		if c.NER.Endpoint == "" {
			return fmt.Errorf("config: ner.endpoint is required when extraction.variant is %q", ExtractionRecognizer)
		}
	case ExtractionGenerative:
	default:
		return fmt.Errorf("config: extraction.variant %q is invalid; expected recognizer|generative", c.Extraction.Variant)
	}
	switch c.NER.AggregationStrategy {
	case "simple", "none":
	default:
		return fmt.Errorf("config: ner.aggregation_strategy %q is invalid; expected simple|none", c.NER.AggregationStrategy)
	}
	if c.NER.MinScore < 0 || c.NER.MinScore > 1 {
		return fmt.Errorf("config: ner.min_score %v is out of range [0, 1]", c.NER.MinScore)
	}

	// LLM
	switch c.LLM.Provider {
	case ProviderGoogleAI:
		if c.LLM.APIKey == "" {
			return fmt.Errorf("config: llm.api_key (or GOOGLE_API_KEY) is required for provider %q", ProviderGoogleAI)
		}
	case ProviderOllama:
		if c.LLM.OllamaHost == "" {
			return fmt.Errorf("config: llm.ollama_host is required for provider %q", ProviderOllama)
		}
	default:
		return fmt.Errorf("config: llm.provider %q is invalid; expected googleai|ollama", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("config: llm.model is required")
	}
	if c.LLM.Retry.MaxRetries < 0 {
		return fmt.Errorf("config: llm.retry.max_retries must be ≥ 0, got %d", c.LLM.Retry.MaxRetries)
	}

	// Recommendation
	switch c.Recommendation.Mode {
	case RecommendPerDisease, RecommendBatch:
	default:
		return fmt.Errorf("config: recommendation.mode %q is invalid; expected per_disease|batch", c.Recommendation.Mode)
	}
	if c.Recommendation.MaxDrugs < 1 || c.Recommendation.MaxDrugs > 3 {
		return fmt.Errorf("config: recommendation.max_drugs %d is out of range [1, 3]", c.Recommendation.MaxDrugs)
	}

	// Infrastructure
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required when redis is enabled")
	}
	if c.MinIO.Enabled {
		if c.MinIO.Endpoint == "" {
			return fmt.Errorf("config: minio.endpoint is required when minio is enabled")
		}
		if c.MinIO.Bucket == "" {
			return fmt.Errorf("config: minio.bucket is required when minio is enabled")
		}
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
	}

	// Log
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	return nil
}
