package di

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/savaki/secret-sync/internal/auth"
	"github.com/savaki/secret-sync/internal/errors"
	"github.com/savaki/secret-sync/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvideParameterStore(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults to environment", func(t *testing.T) {
		store, err := ProvideParameterStore(ctx, "dev", "", "", nil, nil)
		require.NoError(t, err)
		assert.IsType(t, &services.EnvParameterStore{}, store)
	})

	t.Run("ssm", func(t *testing.T) {
		store, err := ProvideParameterStore(ctx, "dev", ConfigSourceSSM, "", nil, nil)
		require.NoError(t, err)
		assert.IsType(t, &services.SSMParameterStore{}, store)
	})

	t.Run("secrets manager requires env", func(t *testing.T) {
		_, err := ProvideParameterStore(ctx, "", ConfigSourceSecretsManager, "", nil, nil)
		assert.EqualError(t, err, "env is required for the secretsmanager config source")
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("OIDC_PROVIDER: keycloak\n"), 0o600))

		store, err := ProvideParameterStore(ctx, "", ConfigSourceFile, ConfigFile(path), nil, nil)
		require.NoError(t, err)

		config, err := ProvideAppConfig(ctx, store)
		require.NoError(t, err)
		assert.Equal(t, "keycloak", config.ProviderKind)
	})

	t.Run("file requires path", func(t *testing.T) {
		_, err := ProvideParameterStore(ctx, "", ConfigSourceFile, "", nil, nil)
		assert.Error(t, err)
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := ProvideParameterStore(ctx, "dev", "vault", "", nil, nil)
		assert.EqualError(t, err, "unsupported config source: vault")
	})
}

func TestProvideOIDCProvider(t *testing.T) {
	ctx := context.Background()

	_, err := ProvideOIDCProvider(ctx, services.NewStaticParameterStore(nil))
	assert.Equal(t, errors.ErrNoProviderConfigured, err)

	provider, err := ProvideOIDCProvider(ctx, services.NewStaticParameterStore(map[string]string{
		"AUTHENTIK_URL":             "https://auth.example.com",
		"AUTHENTIK_SERVICE_API_KEY": "key",
	}))
	require.NoError(t, err)
	assert.Equal(t, auth.ProviderAuthentik, provider.Kind())
}

func TestProvideAPIKeys(t *testing.T) {
	keys, err := ProvideAPIKeys(context.Background(), APIKeyFlags{"flag-key"}, "", &services.Config{APIKeys: []string{"config-key"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, APIKeys{"flag-key", "config-key"}, keys)

	keys, err = ProvideAPIKeys(context.Background(), nil, "", &services.Config{}, nil)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestNew_ServeGraph(t *testing.T) {
	container, err := New("dev",
		WithConfigSource(string(ConfigSourceFile)),
		WithConfigFile(writeConfig(t)),
		WithAPIKeys("k1"),
		WithProviders(ProvideOIDCProvider, ProvideAPIKeys, ProvideGraphQL, ProvideHandler),
	)
	require.NoError(t, err)

	var keys APIKeys
	require.NoError(t, container.Invoke(func(k APIKeys) { keys = k }))
	assert.Equal(t, APIKeys{"k1", "k2"}, keys)

	provider := MustGet[*auth.OIDCProvider](container)
	assert.Equal(t, auth.ProviderKeycloak, provider.Kind())
}

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
KEYCLOAK_URL: https://sso.example.com
KEYCLOAK_ID: secret-sync
KEYCLOAK_SECRET: admin-secret
SECRET_SYNC_API_KEYS: k2
`), 0o600))
	return path
}
