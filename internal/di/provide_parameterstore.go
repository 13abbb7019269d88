package di

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog"
	"github.com/savaki/secret-sync/internal/services"
)

// ProvideParameterStore provides the ParameterStore selected by source.
// Environment variables are used when source is empty.
func ProvideParameterStore(ctx context.Context, env string, source ConfigSource, file ConfigFile, ssmClient *ssm.Client, smClient *secretsmanager.Client) (services.ParameterStore, error) {
	logger := zerolog.Ctx(ctx)

	switch source {
	case "", ConfigSourceEnv:
		logger.Info().Msg("Using environment variables for configuration")
		return services.NewEnvParameterStore(), nil

	case ConfigSourceSSM:
		if env == "" {
			return nil, fmt.Errorf("env is required for the %s config source", source)
		}
		logger.Info().
			Str("path", services.ParameterName(env, "")).
			Msg("Using AWS Systems Manager Parameter Store for configuration")
		return services.NewSSMParameterStore(ssmClient, env), nil

	case ConfigSourceSecretsManager:
		if env == "" {
			return nil, fmt.Errorf("env is required for the %s config source", source)
		}
		secretName := services.ConfigSecretName(env)
		logger.Info().
			Str("secret_name", secretName).
			Msg("Using AWS Secrets Manager for configuration")
		return services.NewSecretsManagerParameterStore(smClient, secretName), nil

	case ConfigSourceFile:
		if file == "" {
			return nil, fmt.Errorf("config file is required for the %s config source", source)
		}
		logger.Info().Str("file", string(file)).Msg("Using YAML file for configuration")
		store, err := services.NewFileParameterStore(string(file))
		if err != nil {
			return nil, err
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unsupported config source: %s", source)
	}
}

// ProvideAppConfig loads service configuration from the ParameterStore
func ProvideAppConfig(ctx context.Context, store services.ParameterStore) (*services.Config, error) {
	logger := zerolog.Ctx(ctx)

	config, err := store.GetConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger.Info().
		Str("oidc_provider", config.ProviderKind).
		Int("api_key_count", len(config.APIKeys)).
		Msg("Configuration loaded successfully")

	return config, nil
}
