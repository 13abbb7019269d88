package di

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/rs/zerolog"
	"github.com/savaki/secret-sync/internal/auth"
	"github.com/savaki/secret-sync/internal/errors"
	"github.com/savaki/secret-sync/internal/services"
)

// APIKeys are the bearer tokens accepted by the server
type APIKeys []string

// ProvideOIDCProvider resolves the active provider once at startup
func ProvideOIDCProvider(ctx context.Context, store services.ParameterStore) (*auth.OIDCProvider, error) {
	provider := auth.TryInit(ctx, store)
	if provider == nil {
		return nil, errors.ErrNoProviderConfigured
	}
	return provider, nil
}

// ProvideAPIKeys merges keys from flags, SECRET_SYNC_API_KEYS and, when a secret
// name is configured, the rotated versions in Secrets Manager.
func ProvideAPIKeys(ctx context.Context, flags APIKeyFlags, secretName APIKeySecret, config *services.Config, smClient *secretsmanager.Client) (APIKeys, error) {
	logger := zerolog.Ctx(ctx)

	var keys APIKeys
	keys = append(keys, flags...)
	keys = append(keys, config.APIKeys...)

	if secretName != "" {
		rotated, err := services.NewAPIKeyService(smClient, string(secretName)).GetAPIKeys(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load API keys: %w", err)
		}
		keys = append(keys, rotated...)
	}

	if len(keys) == 0 {
		logger.Warn().Msg("⚠️  No API keys configured - GraphQL endpoint is unauthenticated (development only)")
	}

	return keys, nil
}
