package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix used by all service settings.
const envPrefix = "BIORX"

// envKeys lists every leaf key so AutomaticEnv can resolve it without a
// config file. Viper only consults the environment for keys it knows about.
var envKeys = []string{
	"server.host", "server.port", "server.mode", "server.read_timeout",
	"server.write_timeout", "server.shutdown_timeout", "server.request_timeout",
	"server.cors_origins", "server.rate_limit_rps", "server.rate_limit_burst",
	"log.level", "log.format", "log.output_paths", "log.error_output_paths",
	"document.max_bytes",
	"extraction.variant",
	"ner.endpoint", "ner.model_name", "ner.api_token", "ner.aggregation_strategy",
	"ner.min_score", "ner.timeout",
	"llm.provider", "llm.model", "llm.api_key", "llm.ollama_host", "llm.temperature",
	"llm.timeout", "llm.retry.max_retries", "llm.retry.initial_backoff",
	"llm.retry.max_backoff", "llm.retry.backoff_multiplier",
	"recommendation.mode", "recommendation.max_drugs",
	"redis.enabled", "redis.addr", "redis.password", "redis.db", "redis.key_prefix",
	"redis.cache_ttl",
	"minio.enabled", "minio.endpoint", "minio.access_key_id", "minio.secret_access_key",
	"minio.use_ssl", "minio.region", "minio.bucket",
	"kafka.enabled", "kafka.brokers", "kafka.group_id",
	"metrics.enabled", "metrics.namespace", "metrics.path",
}

// newViper builds a Viper instance with YAML file type, the BIORX_ env prefix,
// automatic env binding, and a "." → "_" key replacer so "llm.api_key"
// resolves to BIORX_LLM_API_KEY.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}
	return v
}

// loadDotEnv loads .env files into the process environment. A missing file is
// not an error; existing variables are never overridden.
func loadDotEnv(files ...string) {
	_ = godotenv.Load(files...)
}

// Load reads the YAML file at configPath, merges BIORX_* environment
// overrides, applies defaults for unset fields, and validates the result.
func Load(configPath string) (*Config, error) {
	loadDotEnv()

	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
	}

	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config entirely from BIORX_* environment variables
// (and .env), with no config file required.
//
//	BIORX_<SECTION>_<FIELD>   e.g.  BIORX_LLM_PROVIDER, BIORX_REDIS_ADDR
func LoadFromEnv() (*Config, error) {
	loadDotEnv()
	return unmarshalAndFinalize(newViper())
}

// LoadOrEnv calls Load when configPath is set and LoadFromEnv otherwise.
func LoadOrEnv(configPath string) (*Config, error) {
	if configPath == "" {
		return LoadFromEnv()
	}
	return Load(configPath)
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}

	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv(GoogleAPIKeyEnv)
	}
	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return cfg, nil
}

// Watch monitors configPath and invokes onChange with the newly parsed Config
// whenever the file changes. Invalid revisions are reported to onError and
// otherwise ignored. Watch is non-blocking.
func Watch(configPath string, onChange func(*Config), onError func(error)) {
	v := newViper()
	v.SetConfigFile(configPath)
	_ = v.ReadInConfig()

	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
}

// MustLoad wraps LoadOrEnv and panics on any error. Intended for main().
func MustLoad(configPath string) *Config {
	cfg, err := LoadOrEnv(configPath)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}
