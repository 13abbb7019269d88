package gql

import (
	"strings"

	"github.com/savaki/secret-sync/internal/auth"
	"github.com/savaki/secret-sync/internal/models"
)

// ProviderType represents the GraphQL ProviderType enum
type ProviderType string

// FromAuthProviderType converts an auth.ProviderType to gql.ProviderType
func FromAuthProviderType(kind auth.ProviderType) ProviderType {
	return ProviderType(strings.ToUpper(string(kind)))
}

// SecretStatus represents the GraphQL SecretStatus enum
type SecretStatus string

// FromModelSecretStatus converts a models.SecretStatus to gql.SecretStatus
func FromModelSecretStatus(status models.SecretStatus) SecretStatus {
	return SecretStatus(status)
}

// ClientConfigInput represents the GraphQL ClientConfigInput input type
type ClientConfigInput struct {
	IsPublic     bool
	RedirectURLs []string
}

// ToModel converts the input to the desired client configuration
func (c ClientConfigInput) ToModel() models.OIDCClientConfig {
	return models.OIDCClientConfig{
		IsPublic:     c.IsPublic,
		RedirectURLs: c.RedirectURLs,
	}
}
