package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/savaki/secret-sync/internal/di"
	"github.com/savaki/secret-sync/internal/server"
	"github.com/urfave/cli/v2"
)

const shutdownTimeout = 10 * time.Second

// ServeCommand returns the serve command, which hosts the GraphQL API over HTTP
func ServeCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the GraphQL API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "bind-addr",
				Usage:   "Address to listen on",
				Value:   "0.0.0.0:8080",
				EnvVars: []string{"BIND_ADDR"},
			},
			&cli.StringSliceFlag{
				Name:    "api-key",
				Usage:   "API key accepted as a bearer token (repeatable)",
				EnvVars: []string{"API_KEY"},
			},
			&cli.StringFlag{
				Name:    "api-key-secret",
				Usage:   "Secrets Manager secret holding rotated API key versions",
				EnvVars: []string{"API_KEY_SECRET_NAME"},
			},
		},
		Action: func(c *cli.Context) error {
			container, err := newContainer(c,
				di.WithAPIKeys(c.StringSlice("api-key")...),
				di.WithAPIKeySecret(c.String("api-key-secret")),
				di.WithProviders(
					di.ProvideOIDCProvider,
					di.ProvideAPIKeys,
					di.ProvideGraphQL,
					di.ProvideHandler,
				),
			)
			if err != nil {
				return fmt.Errorf("failed to setup DI container: %w", err)
			}

			var handler *server.Handler
			if err := container.Invoke(func(h *server.Handler) { handler = h }); err != nil {
				return fmt.Errorf("failed to initialize server: %w", err)
			}

			return listenAndServe(c.Context, logger, c.String("bind-addr"), handler.Router(*logger))
		},
	}
}

// listenAndServe serves until ctx is cancelled or the process receives SIGINT or SIGTERM
func listenAndServe(ctx context.Context, logger *zerolog.Logger, addr string, handler http.Handler) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
