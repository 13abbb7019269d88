package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/savaki/secret-sync/internal/models"
)

// ProviderType identifies an identity-provider backend
type ProviderType string

const (
	ProviderKeycloak  ProviderType = "keycloak"
	ProviderAuthentik ProviderType = "authentik"
)

// Backend defines the interface for identity-provider backends.
// Different backends (Keycloak, Authentik) implement this interface against their
// own admin APIs; the errors they return are never shown to callers.
type Backend interface {
	// CreateClient provisions the client registration name with the desired configuration.
	// If name already exists it is brought in line with desired and its secret returned.
	CreateClient(ctx context.Context, name string, desired models.OIDCClientConfig) (models.SecretResult, error)

	// ValidateClient reports whether name exists, uses secret, and matches desired.
	// It must not modify backend state.
	ValidateClient(ctx context.Context, name string, desired models.OIDCClientConfig, secret string) (bool, error)
}

// RedactedSecret replaces secret values wherever they are printed or serialized
const RedactedSecret = "[REDACTED]"

// Secret holds credential material from provider configuration.
// It never prints or marshals its value.
type Secret string

func (s Secret) String() string {
	return RedactedSecret
}

func (s Secret) GoString() string {
	return RedactedSecret
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedSecret)
}

// Reveal returns the underlying value for use on the wire
func (s Secret) Reveal() string {
	return string(s)
}

// generateSecureSecret returns 256 bits of random data, base64url encoded
func generateSecureSecret() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
