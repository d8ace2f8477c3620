// Command apiserver runs the BioRx-Intelligence HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/turtacn/BioRx-Intelligence/internal/bootstrap"
	"github.com/turtacn/BioRx-Intelligence/internal/config"
	"github.com/turtacn/BioRx-Intelligence/internal/infrastructure/monitoring/logging"
	httpapi "github.com/turtacn/BioRx-Intelligence/internal/interfaces/http"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: BIORX_* environment)")
	port := flag.Int("port", 0, "HTTP port (overrides config)")
	flag.Parse()

	cfg, err := config.LoadOrEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logging.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to assemble pipeline", logging.Err(err))
		os.Exit(1)
	}
	defer app.Close()

	logger.Info("starting BioRx-Intelligence API server",
		logging.String("version", version),
		logging.String("addr", cfg.Server.Addr()),
	)
	srv := httpapi.NewServer(cfg.Server, app.Router(version), logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server error", logging.Err(err))
		}
	case <-ctx.Done():
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error("HTTP server shutdown error", logging.Err(err))
		}
	}
	logger.Info("server stopped")
}
