package gql

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/savaki/secret-sync/internal/models"
)

// CreateClient resolves the createClient mutation - provisions or reconciles a client
func (r *Resolver) CreateClient(ctx context.Context, args struct {
	Name   string
	Config ClientConfigInput
}) (*SecretResultResolver, error) {
	zerolog.Ctx(ctx).Info().
		Str("client", args.Name).
		Bool("public", args.Config.IsPublic).
		Msg("CreateClient mutation called")

	result, err := r.provider.CreateClient(ctx, args.Name, args.Config.ToModel())
	if err != nil {
		return nil, err
	}

	return newSecretResultResolver(result), nil
}

// SyncClient resolves the syncClient mutation. When the caller's secret is still
// valid for the desired configuration nothing changes and ALREADY_VALID is returned;
// otherwise the client is created or reconciled.
func (r *Resolver) SyncClient(ctx context.Context, args struct {
	Name   string
	Secret *string
	Config ClientConfigInput
}) (*SecretResultResolver, error) {
	logger := zerolog.Ctx(ctx)
	desired := args.Config.ToModel()

	if args.Secret != nil && *args.Secret != "" {
		valid, err := r.provider.ValidateClient(ctx, args.Name, *args.Secret, desired)
		if err != nil {
			return nil, err
		}
		if valid {
			logger.Info().Str("client", args.Name).Msg("Client secret already valid")
			return newSecretResultResolver(models.AlreadyValid()), nil
		}
	}

	logger.Info().Str("client", args.Name).Msg("Client secret missing or stale, creating client")

	result, err := r.provider.CreateClient(ctx, args.Name, desired)
	if err != nil {
		return nil, err
	}

	return newSecretResultResolver(result), nil
}
