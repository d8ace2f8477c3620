package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/turtacn/BioRx-Intelligence/internal/config"
	"github.com/turtacn/BioRx-Intelligence/internal/infrastructure/monitoring/logging"
	httpapi "github.com/turtacn/BioRx-Intelligence/internal/interfaces/http"
)

type serveOptions struct {
	host string
	port int
}

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.host, "host", "", "listen host (overrides config)")
	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "listen port (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	cfg := *cliCtx.Config
	if opts.host != "" {
		cfg.Server.Host = opts.host
	}
	if opts.port > 0 {
		cfg.Server.Port = opts.port
	}
	logger := cliCtx.Logger

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := cliCtx.NewApp(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	if cliCtx.ConfigPath != "" {
		config.Watch(cliCtx.ConfigPath, func(*config.Config) {
			logger.Warn("config file changed; restart to apply", logging.String("path", cliCtx.ConfigPath))
		}, func(err error) {
			logger.Error("config file changed but is invalid", logging.Err(err))
		})
	}

	srv := httpapi.NewServer(cfg.Server, app.Router(Version), logger)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	return srv.Shutdown(context.Background())
}
