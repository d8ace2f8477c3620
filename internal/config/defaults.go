package config

import "time"

// Enumerated values.
const (
	ExtractionRecognizer = "recognizer"
	ExtractionGenerative = "generative"

	ProviderGoogleAI = "googleai"
	ProviderOllama   = "ollama"

	RecommendPerDisease = "per_disease"
	RecommendBatch      = "batch"
)

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultServerHost            = "0.0.0.0"
	DefaultServerPort            = 8080
	DefaultServerMode            = "release"
	DefaultServerReadTimeout     = 30 * time.Second
	DefaultServerWriteTimeout    = 120 * time.Second
	DefaultServerShutdownTimeout = 30 * time.Second
	DefaultServerRequestTimeout  = 90 * time.Second
	DefaultServerRateLimitBurst  = 5

	DefaultDocumentMaxBytes = 10 << 20

	DefaultExtractionVariant = ExtractionGenerative

	DefaultNERModelName   = "biobert-ner-bc5cdr-jnlpba"
	DefaultNERAggregation = "simple"
	DefaultNERTimeout     = 30 * time.Second

	DefaultLLMProvider       = ProviderGoogleAI
	DefaultLLMModel          = "gemini-2.0-flash"
	DefaultOllamaModel       = "llama3.1"
	DefaultOllamaHost        = "http://localhost:11434"
	DefaultLLMTimeout        = 60 * time.Second
	DefaultLLMMaxRetries     = 2
	DefaultLLMInitialBackoff = 500 * time.Millisecond
	DefaultLLMMaxBackoff     = 8 * time.Second
	DefaultLLMBackoffFactor  = 2.0

	DefaultRecommendationMode = RecommendPerDisease
	DefaultMaxDrugs           = 3

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisKeyPrefix = "biorx:"
	DefaultRedisCacheTTL  = 24 * time.Hour

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIORegion   = "us-east-1"
	DefaultMinIOBucket   = "biorx-uploads"

	DefaultKafkaBroker  = "localhost:9092"
	DefaultKafkaGroupID = "biorx-worker"

	DefaultMetricsNamespace = "biorx"
	DefaultMetricsPath      = "/metrics"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// GoogleAPIKeyEnv is read when llm.api_key is not configured.
const GoogleAPIKeyEnv = "GOOGLE_API_KEY"

// ApplyDefaults fills every zero-value field in cfg with the service default.
// Explicitly set fields are left unchanged.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultServerHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultServerReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultServerWriteTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultServerShutdownTimeout
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = DefaultServerRequestTimeout
	}
	if cfg.Server.RateLimitRPS > 0 && cfg.Server.RateLimitBurst == 0 {
		cfg.Server.RateLimitBurst = DefaultServerRateLimitBurst
	}

	// ── Document / extraction ─────────────────────────────────────────────────
	if cfg.Document.MaxBytes == 0 {
		cfg.Document.MaxBytes = DefaultDocumentMaxBytes
	}
	if cfg.Extraction.Variant == "" {
		cfg.Extraction.Variant = DefaultExtractionVariant
	}

	// ── NER ───────────────────────────────────────────────────────────────────
	if cfg.NER.ModelName == "" {
		cfg.NER.ModelName = DefaultNERModelName
	}
	if cfg.NER.AggregationStrategy == "" {
		cfg.NER.AggregationStrategy = DefaultNERAggregation
	}
	if cfg.NER.Timeout == 0 {
		cfg.NER.Timeout = DefaultNERTimeout
	}

	// ── LLM ───────────────────────────────────────────────────────────────────
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = DefaultLLMProvider
	}
	if cfg.LLM.Model == "" {
		if cfg.LLM.Provider == ProviderOllama {
			cfg.LLM.Model = DefaultOllamaModel
		} else {
			cfg.LLM.Model = DefaultLLMModel
		}
	}
	if cfg.LLM.OllamaHost == "" {
		cfg.LLM.OllamaHost = DefaultOllamaHost
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = DefaultLLMTimeout
	}
	if cfg.LLM.Retry.MaxRetries == 0 {
		cfg.LLM.Retry.MaxRetries = DefaultLLMMaxRetries
	}
	if cfg.LLM.Retry.InitialBackoff == 0 {
		cfg.LLM.Retry.InitialBackoff = DefaultLLMInitialBackoff
	}
	if cfg.LLM.Retry.MaxBackoff == 0 {
		cfg.LLM.Retry.MaxBackoff = DefaultLLMMaxBackoff
	}
	if cfg.LLM.Retry.BackoffMultiplier == 0 {
		cfg.LLM.Retry.BackoffMultiplier = DefaultLLMBackoffFactor
	}

	// ── Recommendation ────────────────────────────────────────────────────────
	if cfg.Recommendation.Mode == "" {
		cfg.Recommendation.Mode = DefaultRecommendationMode
	}
	if cfg.Recommendation.MaxDrugs == 0 {
		cfg.Recommendation.MaxDrugs = DefaultMaxDrugs
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if cfg.Redis.CacheTTL == 0 {
		cfg.Redis.CacheTTL = DefaultRedisCacheTTL
	}

	// ── MinIO ─────────────────────────────────────────────────────────────────
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Region == "" {
		cfg.MinIO.Region = DefaultMinIORegion
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}

	// ── Metrics ───────────────────────────────────────────────────────────────
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}
