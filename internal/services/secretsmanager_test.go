package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSecretsManager struct {
	secrets map[string]string
	calls   atomic.Int32
}

func (f *fakeSecretsManager) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls.Add(1)
	value, ok := f.secrets[*params.SecretId]
	if !ok {
		return nil, errors.New("ResourceNotFoundException")
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(value)}, nil
}

func TestConfigSecretName(t *testing.T) {
	assert.Equal(t, "secret-sync/stg/config", ConfigSecretName("stg"))
}

func TestSecretsManagerParameterStore(t *testing.T) {
	client := &fakeSecretsManager{secrets: map[string]string{
		"secret-sync/dev/config": `{
			"KEYCLOAK_URL": "https://sso.example.com",
			"keycloak_realm": "apps",
			"KEYCLOAK_SERVICE_ACCOUNT_ROLES": ["offline_access", "uma_authorization"],
			"SECRET_SYNC_API_KEYS": "k1"
		}`,
	}}
	store := NewSecretsManagerParameterStore(client, ConfigSecretName("dev"))
	ctx := context.Background()

	value, ok, err := store.Lookup(ctx, "KEYCLOAK_REALM")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "apps", value)

	value, _, err = store.Lookup(ctx, "KEYCLOAK_SERVICE_ACCOUNT_ROLES")
	require.NoError(t, err)
	assert.Equal(t, "offline_access,uma_authorization", value)

	config, err := store.GetConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", config.ProviderKind)
	assert.Equal(t, []string{"k1"}, config.APIKeys)

	assert.Equal(t, int32(1), client.calls.Load())
}

func TestSecretsManagerParameterStore_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing secret", func(t *testing.T) {
		store := NewSecretsManagerParameterStore(&fakeSecretsManager{}, "missing")
		_, _, err := store.Lookup(ctx, "KEYCLOAK_URL")
		assert.ErrorContains(t, err, "failed to get secret missing")
	})

	t.Run("not a JSON object", func(t *testing.T) {
		store := NewSecretsManagerParameterStore(&fakeSecretsManager{secrets: map[string]string{"s": `["a"]`}}, "s")
		_, _, err := store.Lookup(ctx, "KEYCLOAK_URL")
		assert.ErrorContains(t, err, "failed to unmarshal config secret s")
	})
}

func key(seed byte) string {
	return base64.StdEncoding.EncodeToString([]byte(strings.Repeat(string(rune('a'+seed)), 32)))
}

func TestAPIKeyService(t *testing.T) {
	versions, err := json.Marshal([]SecretVersion{
		{Secret: key(0), Timestamp: "2026-10-02T00:00:00Z"},
		{Secret: "not base64!", Timestamp: "2026-10-01T00:00:00Z"},
		{Secret: base64.StdEncoding.EncodeToString([]byte("short")), Timestamp: "2026-09-30T00:00:00Z"},
		{Secret: key(1), Timestamp: "2026-09-29T00:00:00Z"},
	})
	require.NoError(t, err)

	client := &fakeSecretsManager{secrets: map[string]string{"secret-sync/dev/api-keys": string(versions)}}
	service := NewAPIKeyService(client, "secret-sync/dev/api-keys")

	keys, err := service.GetAPIKeys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{key(0), key(1)}, keys)

	_, err = service.GetAPIKeys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), client.calls.Load())
}

func TestAPIKeyService_NoValidKeys(t *testing.T) {
	client := &fakeSecretsManager{secrets: map[string]string{"s": `[{"secret":"c2hvcnQ=","timestamp":""}]`}}

	_, err := NewAPIKeyService(client, "s").GetAPIKeys(context.Background())
	assert.EqualError(t, err, "no valid API keys found in secret s")
}
