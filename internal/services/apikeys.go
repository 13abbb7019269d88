package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/rs/zerolog"
)

// MaxKeyVersions is the number of rotated API key versions kept in the secret
const MaxKeyVersions = 3

// SecretVersion represents a single rotated API key version
type SecretVersion struct {
	Secret    string `json:"secret"`
	Timestamp string `json:"timestamp"`
}

// APIKeyService provides the API keys accepted by the server from Secrets Manager.
// The secret holds a JSON array of versions, newest first; every version is valid
// so callers can move to a new key while the previous one is still accepted.
type APIKeyService struct {
	client     SecretsManagerAPI
	secretName string
	onceFunc   func() ([]string, error)
}

// NewAPIKeyService creates a new API key service
func NewAPIKeyService(client SecretsManagerAPI, secretName string) *APIKeyService {
	s := &APIKeyService{
		client:     client,
		secretName: secretName,
	}

	s.onceFunc = sync.OnceValues(func() ([]string, error) {
		return s.fetchAPIKeys(context.Background())
	})

	return s
}

// GetAPIKeys returns the API keys, fetched once per process lifetime
func (s *APIKeyService) GetAPIKeys(ctx context.Context) ([]string, error) {
	return s.onceFunc()
}

func (s *APIKeyService) fetchAPIKeys(ctx context.Context) ([]string, error) {
	logger := zerolog.Ctx(ctx)

	logger.Info().Str("secret_name", s.secretName).Msg("Fetching API keys from Secrets Manager")

	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.secretName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get secret %s: %w", s.secretName, err)
	}

	if result.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", s.secretName)
	}

	var versions []SecretVersion
	if err := json.Unmarshal([]byte(*result.SecretString), &versions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal secret versions: %w", err)
	}

	keys := ValidVersions(ctx, versions)
	if len(keys) == 0 {
		return nil, fmt.Errorf("no valid API keys found in secret %s", s.secretName)
	}

	logger.Info().Int("key_count", len(keys)).Msg("Successfully loaded API keys")

	return keys, nil
}

// ValidVersions returns the secrets of versions that decode to 32 bytes of base64,
// preserving order. Invalid versions are logged and skipped.
func ValidVersions(ctx context.Context, versions []SecretVersion) []string {
	logger := zerolog.Ctx(ctx)

	keys := make([]string, 0, len(versions))
	for i, version := range versions {
		decoded, err := base64.StdEncoding.DecodeString(version.Secret)
		if err != nil {
			logger.Warn().
				Int("index", i).
				Str("timestamp", version.Timestamp).
				Err(err).
				Msg("Failed to decode API key version, skipping")
			continue
		}

		if len(decoded) != 32 {
			logger.Warn().
				Int("index", i).
				Int("length", len(decoded)).
				Str("timestamp", version.Timestamp).
				Msg("API key version has invalid length, skipping")
			continue
		}

		keys = append(keys, version.Secret)
	}
	return keys
}
