// Package bootstrap assembles the analysis pipeline and its infrastructure
// from configuration. The CLI, the API server and the worker share it.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"github.com/turtacn/BioRx-Intelligence/internal/application/analysis"
	"github.com/turtacn/BioRx-Intelligence/internal/application/document"
	"github.com/turtacn/BioRx-Intelligence/internal/application/extraction"
	"github.com/turtacn/BioRx-Intelligence/internal/application/recommendation"
	"github.com/turtacn/BioRx-Intelligence/internal/config"
	"github.com/turtacn/BioRx-Intelligence/internal/infrastructure/database/redis"
	"github.com/turtacn/BioRx-Intelligence/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/BioRx-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/BioRx-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/BioRx-Intelligence/internal/infrastructure/storage/minio"
	"github.com/turtacn/BioRx-Intelligence/internal/intelligence/biomed_ner"
	"github.com/turtacn/BioRx-Intelligence/internal/intelligence/common"
	"github.com/turtacn/BioRx-Intelligence/internal/intelligence/llm"
	"github.com/turtacn/BioRx-Intelligence/internal/interfaces/http/handlers"
)

// App holds the assembled pipeline and the clients it owns.
type App struct {
	Config  *config.Config
	Logger  logging.Logger
	Metrics *prometheus.AppMetrics
	// Collector is nil when metrics are disabled.
	Collector prometheus.MetricsCollector

	Service analysis.Service
	Engine  *recommendation.Engine
	Mode    recommendation.Mode

	redis     *redis.Client
	cache     redis.Cache
	responses *llm.Cached
	minio     *minio.MinIOClient
	uploads   minio.UploadRepository
	producer  *kafka.Producer
	nerHealth func(ctx context.Context) error
	closers   []func() error
}

// Option customizes New.
type Option func(*options)

type options struct {
	model      llm.Model
	recognizer biomed_ner.Recognizer
	uploads    minio.UploadRepository
}

// WithModel replaces the configured provider. Decorators still apply.
func WithModel(m llm.Model) Option {
	return func(o *options) { o.model = m }
}

// WithUploads replaces the MinIO upload archive, whether or not MinIO is
// enabled in configuration.
func WithUploads(r minio.UploadRepository) Option {
	return func(o *options) { o.uploads = r }
}

// WithRecognizer replaces the HTTP recognizer backend.
func WithRecognizer(r biomed_ner.Recognizer) Option {
	return func(o *options) { o.recognizer = r }
}

// New builds the App. The model provider and the extractor are required;
// Redis, MinIO and Kafka are optional and a failing connection is logged and
// skipped.
func New(ctx context.Context, cfg *config.Config, logger logging.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger = logging.OrNop(logger)
	app := &App{Config: cfg, Logger: logger}

	mode, err := recommendation.ParseMode(cfg.Recommendation.Mode)
	if err != nil {
		return nil, err
	}
	app.Mode = mode

	intelMetrics, err := app.initMetrics()
	if err != nil {
		return nil, err
	}
	app.initCache()

	base := o.model
	if base == nil {
		base, err = llm.New(ctx, llm.Config{
			Provider:    cfg.LLM.Provider,
			Model:       cfg.LLM.Model,
			APIKey:      cfg.LLM.APIKey,
			OllamaHost:  cfg.LLM.OllamaHost,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
		}, logger)
		if err != nil {
			app.Close()
			return nil, err
		}
	}
	shared := app.decorate(base, intelMetrics)

	recognizer := o.recognizer
	if recognizer == nil && cfg.Extraction.Variant == config.ExtractionRecognizer {
		recognizer, err = app.initRecognizer(intelMetrics)
		if err != nil {
			app.Close()
			return nil, err
		}
	}
	extractor, err := extraction.New(cfg.Extraction.Variant, recognizer,
		llm.NewInstrumented(shared, common.TaskExtraction, logger, intelMetrics), logger)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.Engine = recommendation.NewEngine(
		llm.NewInstrumented(shared, common.TaskRecommendation, logger, intelMetrics),
		recommendation.WithMaxDrugs(cfg.Recommendation.MaxDrugs),
		recommendation.WithLogger(logger),
	)

	deps := analysis.Deps{
		Loader: document.NewLoader(
			document.WithMaxBytes(cfg.Document.MaxBytes),
			document.WithLogger(logger),
		),
		Extractor:   extractor,
		Recommender: app.Engine,
		Metrics:     app.Metrics,
		Logger:      logger,
	}
	app.uploads = o.uploads
	if app.uploads == nil {
		app.uploads = app.initArchive()
	}
	if app.uploads != nil {
		deps.Archiver = app.uploads
	}
	if publisher := app.initPublisher(); publisher != nil {
		deps.Publisher = publisher
	}

	app.Service, err = analysis.NewService(deps)
	if err != nil {
		app.Close()
		return nil, err
	}
	logger.Info("pipeline ready",
		logging.String("variant", cfg.Extraction.Variant),
		logging.String("provider", cfg.LLM.Provider),
		logging.String("model", base.Name()),
		logging.String("mode", string(mode)),
		logging.Bool("cache", app.cache != nil),
		logging.Bool("archive", deps.Archiver != nil),
		logging.Bool("events", deps.Publisher != nil),
	)
	return app, nil
}

func (a *App) initMetrics() (common.IntelligenceMetrics, error) {
	if !a.Config.Metrics.Enabled {
		a.Metrics = prometheus.NewNoopAppMetrics()
		return common.NewNoopIntelligenceMetrics(), nil
	}
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            a.Config.Metrics.Namespace,
		EnableProcessMetrics: true,
		EnableGoMetrics:      true,
	}, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("metrics collector: %w", err)
	}
	intel, err := common.NewPrometheusIntelligenceMetrics(collector.Registerer())
	if err != nil {
		return nil, fmt.Errorf("intelligence metrics: %w", err)
	}
	a.Collector = collector
	a.Metrics = prometheus.NewAppMetrics(collector)
	return intel, nil
}

func (a *App) initCache() {
	if !a.Config.Redis.Enabled {
		return
	}
	client, err := redis.NewClient(redis.OptionsFromConfig(a.Config.Redis), a.Logger)
	if err != nil {
		a.Logger.Warn("redis unavailable, answers will not be cached", logging.Err(err))
		return
	}
	a.redis = client
	a.cache = redis.NewRedisCache(client, a.Logger,
		redis.WithPrefix(a.Config.Redis.KeyPrefix),
		redis.WithDefaultTTL(a.Config.Redis.CacheTTL),
	)
	a.closers = append(a.closers, client.Close)
}

// decorate stacks retries under the cache so a cached answer skips the
// backoff entirely.
func (a *App) decorate(base llm.Model, metrics common.IntelligenceMetrics) llm.Model {
	r := a.Config.LLM.Retry
	var m llm.Model = llm.NewRetrying(base, llm.RetryConfig{
		MaxRetries:        r.MaxRetries,
		InitialBackoff:    r.InitialBackoff,
		MaxBackoff:        r.MaxBackoff,
		BackoffMultiplier: r.BackoffMultiplier,
	}, a.Logger)
	if a.cache != nil {
		a.responses = llm.NewCached(m, a.cache, a.Config.Redis.CacheTTL, a.Logger, metrics)
		m = a.responses
	}
	return m
}

// Responses returns the answer cache, or nil when Redis is not in use.
func (a *App) Responses() *llm.Cached { return a.responses }

// Uploads returns the upload archive, or nil when archiving is off.
func (a *App) Uploads() minio.UploadRepository { return a.uploads }

func (a *App) initRecognizer(metrics common.IntelligenceMetrics) (biomed_ner.Recognizer, error) {
	backend, err := common.NewHTTPBackend(common.HTTPBackendConfig{
		Endpoint: a.Config.NER.Endpoint,
		APIToken: a.Config.NER.APIToken,
		Timeout:  a.Config.NER.Timeout,
	}, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("ner backend: %w", err)
	}
	a.nerHealth = backend.Healthy
	a.closers = append(a.closers, backend.Close)
	return biomed_ner.NewRecognizer(backend, &biomed_ner.Config{
		ModelName:           a.Config.NER.ModelName,
		AggregationStrategy: a.Config.NER.AggregationStrategy,
		MinScore:            a.Config.NER.MinScore,
		Timeout:             a.Config.NER.Timeout,
	}, a.Logger, metrics)
}

func (a *App) initArchive() minio.UploadRepository {
	if !a.Config.MinIO.Enabled {
		return nil
	}
	client, err := minio.NewMinIOClient(a.Config.MinIO, a.Logger)
	if err != nil {
		a.Logger.Warn("minio unavailable, uploads will not be archived", logging.Err(err))
		return nil
	}
	a.minio = client
	return minio.NewMinIORepository(client, a.Logger)
}

func (a *App) initPublisher() analysis.EventPublisher {
	if !a.Config.Kafka.Enabled {
		return nil
	}
	producer, err := kafka.NewProducer(kafka.ProducerConfig{Brokers: a.Config.Kafka.Brokers}, a.Logger)
	if err != nil {
		a.Logger.Warn("kafka unavailable, events will not be published", logging.Err(err))
		return nil
	}
	a.producer = producer
	a.closers = append(a.closers, producer.Close)
	return kafka.NewEventPublisher(producer)
}

// HealthCheckers returns a readiness check per enabled dependency.
func (a *App) HealthCheckers() []handlers.HealthChecker {
	var out []handlers.HealthChecker
	if a.nerHealth != nil {
		out = append(out, handlers.CheckerFunc{ComponentName: "ner", Fn: a.nerHealth})
	}
	if a.redis != nil {
		out = append(out, handlers.CheckerFunc{ComponentName: "redis", Fn: a.redis.Ping})
	}
	if a.minio != nil {
		client := a.minio
		out = append(out, handlers.CheckerFunc{ComponentName: "minio", Fn: func(ctx context.Context) error {
			_, err := client.HealthCheck(ctx)
			return err
		}})
	}
	return out
}

// MetricsHandler serves the scrape endpoint, or nil when metrics are off.
func (a *App) MetricsHandler() http.Handler {
	if a.Collector == nil {
		return nil
	}
	return a.Collector.Handler()
}

// Close releases every client in reverse order of creation.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
