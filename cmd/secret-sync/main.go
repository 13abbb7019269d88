package main

import (
	"context"
	"os"

	"github.com/savaki/secret-sync/cmd/secret-sync/commands"
	"github.com/savaki/secret-sync/internal/di"
	"github.com/urfave/cli/v2"
)

func main() {
	logger := di.ProvideLogger()
	ctx := logger.WithContext(context.Background())

	app := &cli.App{
		Name:  "secret-sync",
		Usage: "OIDC client provisioning for Keycloak and Authentik",
		Description: `Creates and validates OIDC client registrations on the configured identity provider.

The provider is chosen once at startup from OIDC_PROVIDER, or by probing the
Keycloak configuration (KEYCLOAK_*) and then the Authentik configuration (AUTHENTIK_*).`,
		Flags: commands.GlobalFlags(),
		Commands: []*cli.Command{
			commands.ServeCommand(&logger),
			commands.DetectCommand(&logger),
			commands.ClientCommand(&logger),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}
