package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsManagerAPI is the subset of the Secrets Manager client used by this package
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// ConfigSecretName returns the Secrets Manager secret holding configuration for env
func ConfigSecretName(env string) string {
	return fmt.Sprintf("secret-sync/%s/config", env)
}

// SecretsManagerParameterStore implements ParameterStore over a single JSON object
// secret whose keys are configuration keys, e.g.
//
//	{"KEYCLOAK_URL": "https://sso.example.com", "KEYCLOAK_SECRET": "..."}
type SecretsManagerParameterStore struct {
	client     SecretsManagerAPI
	secretName string
	onceFunc   func() (map[string]string, error)
}

// NewSecretsManagerParameterStore creates a store that reads secretName once per process
func NewSecretsManagerParameterStore(client SecretsManagerAPI, secretName string) *SecretsManagerParameterStore {
	s := &SecretsManagerParameterStore{
		client:     client,
		secretName: secretName,
	}
	s.onceFunc = sync.OnceValues(func() (map[string]string, error) {
		return s.fetch(context.Background())
	})
	return s
}

func (s *SecretsManagerParameterStore) Lookup(ctx context.Context, key string) (string, bool, error) {
	values, err := s.onceFunc()
	if err != nil {
		return "", false, err
	}
	value, ok := values[key]
	return value, ok, nil
}

func (s *SecretsManagerParameterStore) GetConfig(ctx context.Context) (*Config, error) {
	return loadConfig(ctx, s)
}

func (s *SecretsManagerParameterStore) fetch(ctx context.Context) (map[string]string, error) {
	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.secretName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get secret %s: %w", s.secretName, err)
	}

	if result.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", s.secretName)
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(*result.SecretString), &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config secret %s: %w", s.secretName, err)
	}

	return flatten(raw), nil
}

// flatten converts decoded JSON or YAML values into configuration strings.
// Keys are upper-cased; lists become comma separated values.
func flatten(raw map[string]any) map[string]string {
	values := make(map[string]string, len(raw))
	for k, v := range raw {
		values[strings.ToUpper(k)] = stringify(v)
	}
	return values
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []any:
		items := make([]string, 0, len(t))
		for _, item := range t {
			items = append(items, stringify(item))
		}
		return strings.Join(items, ",")
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		items := make([]string, 0, len(keys))
		for _, k := range keys {
			items = append(items, k+"="+stringify(t[k]))
		}
		return strings.Join(items, ",")
	default:
		return fmt.Sprint(t)
	}
}
