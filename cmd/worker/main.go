// Command worker consumes analysis events and warms the recommendation cache.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/turtacn/BioRx-Intelligence/internal/application/recommendation"
	"github.com/turtacn/BioRx-Intelligence/internal/bootstrap"
	"github.com/turtacn/BioRx-Intelligence/internal/config"
	"github.com/turtacn/BioRx-Intelligence/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/BioRx-Intelligence/internal/infrastructure/monitoring/logging"
	httpapi "github.com/turtacn/BioRx-Intelligence/internal/interfaces/http"
	"github.com/turtacn/BioRx-Intelligence/internal/interfaces/http/handlers"
	"github.com/turtacn/BioRx-Intelligence/internal/interfaces/worker"
)

const (
	defaultHealthPort = 8081
	maxRetries        = 3
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: BIORX_* environment)")
	healthPort := flag.Int("health-port", defaultHealthPort, "port of the health and metrics server")
	modeFlag := flag.String("mode", "", "recommendation mode to warm (default: config)")
	flag.Parse()

	cfg, err := config.LoadOrEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if !cfg.Kafka.Enabled {
		logger.Error("kafka must be enabled for the worker")
		os.Exit(1)
	}
	if !cfg.Redis.Enabled {
		logger.Warn("redis is disabled; warmed answers will not be cached")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to assemble pipeline", logging.Err(err))
		os.Exit(1)
	}
	defer app.Close()

	mode := app.Mode
	if *modeFlag != "" {
		if mode, err = recommendation.ParseMode(*modeFlag); err != nil {
			logger.Error("invalid mode", logging.Err(err))
			os.Exit(1)
		}
	}

	ensureTopics(ctx, cfg.Kafka.Brokers, logger)

	warmer := worker.NewCacheWarmer(app.Engine, mode, logger)
	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers: cfg.Kafka.Brokers,
		GroupID: cfg.Kafka.GroupID,
		Topics:  []string{warmer.Topic()},
		RetryConfig: kafka.RetryConfig{
			MaxRetries:      maxRetries,
			RetryBackoff:    time.Second,
			MaxRetryBackoff: 4 * time.Second,
			DeadLetterTopic: kafka.TopicDeadLetter,
		},
	}, logger)
	if err != nil {
		logger.Error("failed to create Kafka consumer", logging.Err(err))
		os.Exit(1)
	}
	defer consumer.Close()
	consumer.Subscribe(warmer.Topic(), warmer.Handle)

	serverCfg := cfg.Server
	serverCfg.Port = *healthPort
	healthSrv := httpapi.NewServer(serverCfg, httpapi.NewRouter(httpapi.RouterConfig{
		HealthHandler:  handlers.NewHealthHandler(version, app.HealthCheckers()...),
		Logger:         logger,
		Metrics:        app.Metrics,
		MetricsPath:    cfg.Metrics.Path,
		MetricsHandler: app.MetricsHandler(),
	}), logger)
	go func() {
		if err := healthSrv.Start(); err != nil {
			logger.Error("health server error", logging.Err(err))
		}
	}()

	if err := consumer.Start(ctx); err != nil {
		logger.Error("failed to start consumer", logging.Err(err))
		os.Exit(1)
	}
	logger.Info("worker started",
		logging.String("version", version),
		logging.String("topic", warmer.Topic()),
		logging.String("mode", string(mode)),
	)

	<-ctx.Done()
	logger.Info("shutting down worker")
	if err := consumer.Close(); err != nil {
		logger.Error("consumer close error", logging.Err(err))
	}
	if err := healthSrv.Shutdown(context.Background()); err != nil {
		logger.Error("health server shutdown error", logging.Err(err))
	}
	logger.Info("worker stopped",
		logging.Int64("processed", consumer.Processed()),
		logging.Int64("failed", consumer.Failed()),
		logging.Int64("dead_lettered", consumer.DeadLettered()),
	)
}

// ensureTopics creates the service topics. Brokers with auto-creation work
// without it, so failures are only logged.
func ensureTopics(ctx context.Context, brokers []string, logger logging.Logger) {
	tm, err := kafka.NewTopicManager(brokers, logger)
	if err != nil {
		logger.Warn("topic manager unavailable", logging.Err(err))
		return
	}
	defer tm.Close()
	if err := tm.EnsureTopics(ctx, kafka.DefaultTopics()); err != nil {
		logger.Warn("ensuring topics failed", logging.Err(err))
	}
}
