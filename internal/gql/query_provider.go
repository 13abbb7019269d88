package gql

import (
	"context"

	"github.com/savaki/secret-sync/internal/auth"
)

// Provider resolves the provider query - the backend selected at startup
func (r *Resolver) Provider() ProviderType {
	return FromAuthProviderType(r.provider.Kind())
}

// SupportedProviders resolves the supportedProviders query in priority order
func (r *Resolver) SupportedProviders() []ProviderType {
	kinds := auth.SupportedProviders()
	types := make([]ProviderType, 0, len(kinds))
	for _, kind := range kinds {
		types = append(types, FromAuthProviderType(kind))
	}
	return types
}

// ValidateClient resolves the validateClient query. Failures surface only as the
// fixed validation error; details are in the server log.
func (r *Resolver) ValidateClient(ctx context.Context, args struct {
	Name   string
	Secret string
	Config ClientConfigInput
}) (bool, error) {
	return r.provider.ValidateClient(ctx, args.Name, args.Secret, args.Config.ToModel())
}
