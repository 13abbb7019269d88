package di

import (
	"fmt"

	"github.com/graph-gophers/graphql-go"
	"github.com/savaki/secret-sync/internal/auth"
	"github.com/savaki/secret-sync/internal/gql"
	"github.com/savaki/secret-sync/internal/server"
)

func ProvideGraphQL(config gql.Config) (*graphql.Schema, error) {
	resolver := gql.NewResolver(config)
	schema, err := gql.NewSchema(resolver)
	if err != nil {
		return nil, fmt.Errorf("failed to create GraphQL schema: %w", err)
	}
	return schema, nil
}

func ProvideHandler(provider *auth.OIDCProvider, schema *graphql.Schema, keys APIKeys) *server.Handler {
	return server.NewHandler(provider, schema, keys)
}
