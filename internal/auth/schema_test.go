package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/savaki/secret-sync/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeycloakConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults", func(t *testing.T) {
		config, err := ParseKeycloakConfig(ctx, services.NewStaticParameterStore(keycloakValues))
		require.NoError(t, err)

		assert.Equal(t, "https://sso.example.com", config.URL.String())
		assert.Equal(t, "secret-sync", config.ClientID)
		assert.Equal(t, "keycloak-admin-secret", config.ClientSecret.Reveal())
		assert.Equal(t, "master", config.Realm)
		assert.Empty(t, config.ServiceAccountRoles)
		assert.Equal(t, 30*time.Second, config.Timeout)
	})

	t.Run("optional fields", func(t *testing.T) {
		config, err := ParseKeycloakConfig(ctx, services.NewStaticParameterStore(merge(keycloakValues, map[string]string{
			"KEYCLOAK_REALM":                 "apps",
			"KEYCLOAK_SERVICE_ACCOUNT_ROLES": "offline_access, uma_authorization,,",
		})))
		require.NoError(t, err)

		assert.Equal(t, "apps", config.Realm)
		assert.Equal(t, []string{"offline_access", "uma_authorization"}, config.ServiceAccountRoles)
	})

	t.Run("blank values count as missing", func(t *testing.T) {
		_, err := ParseKeycloakConfig(ctx, services.NewStaticParameterStore(merge(keycloakValues, map[string]string{
			"KEYCLOAK_ID": "   ",
		})))
		assert.EqualError(t, err, "keycloak config: missing required KEYCLOAK_ID")
	})

	t.Run("timeout", func(t *testing.T) {
		config, err := ParseKeycloakConfig(ctx, services.NewStaticParameterStore(merge(keycloakValues, map[string]string{
			"KEYCLOAK_TIMEOUT": "5s",
		})))
		require.NoError(t, err)
		assert.Equal(t, 5*time.Second, config.Timeout)

		for _, raw := range []string{"soon", "-1s", "0s"} {
			_, err := ParseKeycloakConfig(ctx, services.NewStaticParameterStore(merge(keycloakValues, map[string]string{
				"KEYCLOAK_TIMEOUT": raw,
			})))
			assert.EqualError(t, err, fmt.Sprintf("keycloak config: invalid KEYCLOAK_TIMEOUT %q: must be a positive duration such as 30s", raw))
		}
	})
}

func TestParseAuthentikConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults", func(t *testing.T) {
		config, err := ParseAuthentikConfig(ctx, services.NewStaticParameterStore(authentikValues))
		require.NoError(t, err)

		assert.Equal(t, "https://auth.example.com", config.URL.String())
		assert.Equal(t, "authentik-api-key", config.APIKey.Reveal())
		assert.Equal(t, "default-provider-authorization-implicit-consent", config.AuthorizationFlow)
		assert.Equal(t, "default-provider-invalidation-flow", config.InvalidationFlow)
		assert.Empty(t, config.PropertyMappings)
		assert.Equal(t, 30*time.Second, config.Timeout)
	})

	t.Run("timeout", func(t *testing.T) {
		config, err := ParseAuthentikConfig(ctx, services.NewStaticParameterStore(merge(authentikValues, map[string]string{
			"AUTHENTIK_TIMEOUT": "1m",
		})))
		require.NoError(t, err)
		assert.Equal(t, time.Minute, config.Timeout)

		_, err = ParseAuthentikConfig(ctx, services.NewStaticParameterStore(merge(authentikValues, map[string]string{
			"AUTHENTIK_TIMEOUT": "soon",
		})))
		assert.EqualError(t, err, `authentik config: invalid AUTHENTIK_TIMEOUT "soon": must be a positive duration such as 30s`)
	})

	t.Run("missing url", func(t *testing.T) {
		_, err := ParseAuthentikConfig(ctx, services.NewStaticParameterStore(map[string]string{
			"AUTHENTIK_SERVICE_API_KEY": "key",
		}))
		assert.EqualError(t, err, "authentik config: missing required AUTHENTIK_URL")
	})
}

func TestSecret(t *testing.T) {
	secret := Secret("hunter2")

	assert.Equal(t, RedactedSecret, secret.String())
	assert.Equal(t, RedactedSecret, fmt.Sprintf("%v", secret))
	assert.Equal(t, RedactedSecret, fmt.Sprintf("%#v", secret))
	assert.Equal(t, "hunter2", secret.Reveal())

	data, err := json.Marshal(KeycloakConfig{ClientID: "id", ClientSecret: secret})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hunter2")
	assert.Contains(t, string(data), RedactedSecret)
}

func TestGenerateSecureSecret(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		secret, err := generateSecureSecret()
		require.NoError(t, err)
		assert.Len(t, secret, 43)
		assert.False(t, seen[secret], "duplicate secret generated")
		seen[secret] = true
	}
}
