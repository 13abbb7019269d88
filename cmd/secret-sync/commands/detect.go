package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/savaki/secret-sync/internal/auth"
	"github.com/savaki/secret-sync/internal/di"
	"github.com/savaki/secret-sync/internal/services"
	"github.com/urfave/cli/v2"
)

// DetectCommand returns the detect command, which reports the provider TryInit selects
func DetectCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "detect",
		Usage: "Report which OIDC provider the configuration selects",
		Description: `Runs provider resolution exactly as serve does and prints the result.
Every provider configuration that cannot be used is reported as a warning.
Exits non-zero when no provider is configured.`,
		Action: func(c *cli.Context) error {
			container, err := newContainer(c)
			if err != nil {
				return fmt.Errorf("failed to setup DI container: %w", err)
			}

			ctx := di.MustGet[context.Context](container)
			store := di.MustGet[services.ParameterStore](container)

			provider := auth.TryInit(ctx, store)
			if provider == nil {
				return cli.Exit("no OIDC provider configured", 1)
			}

			return printJSON(map[string]string{
				"provider": string(provider.Kind()),
			})
		},
	}
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
