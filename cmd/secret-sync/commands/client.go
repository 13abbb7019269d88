package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/savaki/secret-sync/internal/auth"
	"github.com/savaki/secret-sync/internal/di"
	"github.com/savaki/secret-sync/internal/models"
	"github.com/urfave/cli/v2"
)

var clientConfigFlags = []cli.Flag{
	&cli.StringFlag{
		Name:     "name",
		Aliases:  []string{"n"},
		Usage:    "Client name (used as the client id)",
		Required: true,
	},
	&cli.BoolFlag{
		Name:  "public",
		Usage: "Public client (no secret)",
	},
	&cli.StringSliceFlag{
		Name:    "redirect-url",
		Aliases: []string{"r"},
		Usage:   "Allowed redirect URL (repeatable)",
	},
}

// ClientCommand returns the client command for one-off create and validate calls
func ClientCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "client",
		Usage: "Create or validate an OIDC client",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create the client, or reconcile it if it already exists",
				Description: `Examples:
  secret-sync client create --name grafana \
    --redirect-url https://grafana.example.com/login/generic_oauth`,
				Flags: clientConfigFlags,
				Action: func(c *cli.Context) error {
					ctx, provider, err := resolveProvider(c)
					if err != nil {
						return err
					}

					result, err := provider.CreateClient(ctx, c.String("name"), desiredConfig(c))
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}

					return printJSON(result)
				},
			},
			{
				Name:  "validate",
				Usage: "Check that a client exists with the given secret and configuration",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:    "secret",
						Usage:   "Client secret to check",
						EnvVars: []string{"CLIENT_SECRET"},
					},
				}, clientConfigFlags...),
				Action: func(c *cli.Context) error {
					ctx, provider, err := resolveProvider(c)
					if err != nil {
						return err
					}

					valid, err := provider.ValidateClient(ctx, c.String("name"), c.String("secret"), desiredConfig(c))
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}

					if err := printJSON(map[string]bool{"valid": valid}); err != nil {
						return err
					}
					if !valid {
						return cli.Exit("", 2)
					}
					return nil
				},
			},
		},
	}
}

func resolveProvider(c *cli.Context) (context.Context, *auth.OIDCProvider, error) {
	container, err := newContainer(c, di.WithProviders(di.ProvideOIDCProvider))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to setup DI container: %w", err)
	}

	var (
		ctx      context.Context
		provider *auth.OIDCProvider
	)
	err = container.Invoke(func(x context.Context, p *auth.OIDCProvider) {
		ctx, provider = x, p
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve OIDC provider: %w", err)
	}

	return ctx, provider, nil
}

func desiredConfig(c *cli.Context) models.OIDCClientConfig {
	return models.OIDCClientConfig{
		IsPublic:     c.Bool("public"),
		RedirectURLs: c.StringSlice("redirect-url"),
	}
}
