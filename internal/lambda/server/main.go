package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog"
	"github.com/savaki/secret-sync/internal/di"
	"github.com/savaki/secret-sync/internal/server"
	"github.com/urfave/cli/v2"
)

// settings configure the Lambda. Outside Lambda they come from flags.
type settings struct {
	Env          string
	ConfigSource string
	ConfigFile   string
	APIKeySecret string
}

func settingsFromEnv() settings {
	s := settings{
		Env:          os.Getenv("ENV"),
		ConfigSource: os.Getenv("CONFIG_SOURCE"),
		ConfigFile:   os.Getenv("CONFIG_FILE"),
		APIKeySecret: os.Getenv("API_KEY_SECRET_NAME"),
	}
	if s.Env == "" {
		s.Env = os.Getenv("ENVIRONMENT")
	}
	if s.ConfigSource == "" {
		s.ConfigSource = string(di.ConfigSourceSSM)
	}
	return s
}

func setupContainer(s settings) (di.Container, error) {
	return di.New(s.Env,
		di.WithConfigSource(s.ConfigSource),
		di.WithConfigFile(s.ConfigFile),
		di.WithAPIKeySecret(s.APIKeySecret),
		di.WithProviders(
			di.ProvideOIDCProvider,
			di.ProvideAPIKeys,
			di.ProvideGraphQL,
			di.ProvideHandler,
		),
	)
}

// newHTTPHandler builds the router with the API Gateway stage prefix stripped
func newHTTPHandler(s settings, logger zerolog.Logger) (http.Handler, error) {
	container, err := setupContainer(s)
	if err != nil {
		return nil, fmt.Errorf("failed to setup DI container: %w", err)
	}

	handler := di.MustGet[*server.Handler](container)

	return server.StripPrefix(s.Env, handler.Router(logger)), nil
}

// serveAction starts a local HTTP server for testing
func serveAction(c *cli.Context) error {
	logger := di.ProvideLogger().With().Str("lambda", "server").Logger()

	s := settings{
		Env:          c.String("env"),
		ConfigSource: c.String("config-source"),
		ConfigFile:   c.String("config-file"),
		APIKeySecret: c.String("api-key-secret"),
	}

	httpHandler, err := newHTTPHandler(s, logger)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%s", c.String("port"))
	logger.Info().
		Str("addr", addr).
		Str("env", s.Env).
		Str("config_source", s.ConfigSource).
		Msg("Starting HTTP server with env prefix stripping")

	srv := &http.Server{
		Addr:    addr,
		Handler: httpHandler,
	}
	return srv.ListenAndServe()
}

func main() {
	logger := di.ProvideLogger().With().Str("lambda", "server").Logger()

	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		s := settingsFromEnv()
		if s.Env == "" {
			logger.Error().Msg("ENV or ENVIRONMENT variable is required")
			os.Exit(1)
		}

		logger.Info().
			Str("env", s.Env).
			Str("config_source", s.ConfigSource).
			Msg("Initializing Lambda handler")

		httpHandler, err := newHTTPHandler(s, logger)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to initialize server")
			os.Exit(1)
		}

		lambda.Start(httpadapter.NewV2(httpHandler).ProxyWithContext)
		return
	}

	// CLI mode for local testing
	app := &cli.App{
		Name:  "server",
		Usage: "secret-sync API Gateway handler",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env",
				Usage:   "Environment name (for stripping path prefix)",
				EnvVars: []string{"ENV", "ENVIRONMENT"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Start local HTTP server for testing",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "port",
						Usage: "Port to listen on",
						Value: "8080",
					},
					&cli.StringFlag{
						Name:    "config-source",
						Usage:   "Where provider configuration is read from: env, ssm, secretsmanager, or file",
						Value:   string(di.ConfigSourceEnv),
						EnvVars: []string{"CONFIG_SOURCE"},
					},
					&cli.StringFlag{
						Name:    "config-file",
						Usage:   "YAML file of configuration keys",
						EnvVars: []string{"CONFIG_FILE"},
					},
					&cli.StringFlag{
						Name:    "api-key-secret",
						Usage:   "Secrets Manager secret holding rotated API key versions",
						EnvVars: []string{"API_KEY_SECRET_NAME"},
					},
				},
				Action: serveAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
