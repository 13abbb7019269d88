package services

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

const (
	// KeyProvider selects the active OIDC provider explicitly ("keycloak" or "authentik").
	// When unset, provider schemas are tried in priority order.
	KeyProvider = "OIDC_PROVIDER"

	// KeyAPIKeys holds a comma separated list of API keys accepted by the server
	KeyAPIKeys = "SECRET_SYNC_API_KEYS"
)

// Config holds service-level configuration resolved from a ParameterStore
type Config struct {
	ProviderKind string
	APIKeys      []string
}

// ParameterStore defines the interface for accessing configuration parameters.
// Keys use environment variable naming (e.g. KEYCLOAK_URL) regardless of backing store.
type ParameterStore interface {
	// Lookup returns the value for key and whether it was set
	Lookup(ctx context.Context, key string) (string, bool, error)

	// GetConfig loads the service-level configuration
	GetConfig(ctx context.Context) (*Config, error)
}

func loadConfig(ctx context.Context, store ParameterStore) (*Config, error) {
	kind, _, err := store.Lookup(ctx, KeyProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", KeyProvider, err)
	}

	keys, _, err := store.Lookup(ctx, KeyAPIKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", KeyAPIKeys, err)
	}

	return &Config{
		ProviderKind: strings.ToLower(strings.TrimSpace(kind)),
		APIKeys:      SplitList(keys),
	}, nil
}

// SplitList splits a comma separated value, trimming whitespace and dropping empty entries
func SplitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// SSMParameterStore implements ParameterStore using AWS Systems Manager Parameter Store.
// All parameters below /{env}/secret-sync are fetched on first use and cached.
type SSMParameterStore struct {
	client ssm.GetParametersByPathAPIClient
	env    string
	mu     sync.RWMutex
	cache  map[string]string
	loaded bool
}

// NewSSMParameterStore creates a new SSM-backed parameter store
func NewSSMParameterStore(client ssm.GetParametersByPathAPIClient, env string) *SSMParameterStore {
	return &SSMParameterStore{
		client: client,
		env:    env,
		cache:  make(map[string]string),
	}
}

// ParameterName maps a configuration key to its SSM parameter name,
// e.g. KEYCLOAK_URL -> /dev/secret-sync/keycloak-url
func ParameterName(env, key string) string {
	return fmt.Sprintf("/%s/secret-sync/%s", env, strings.ReplaceAll(strings.ToLower(key), "_", "-"))
}

// Lookup retrieves a single parameter from SSM Parameter Store
func (s *SSMParameterStore) Lookup(ctx context.Context, key string) (string, bool, error) {
	if err := s.load(ctx); err != nil {
		return "", false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.cache[ParameterName(s.env, key)]
	return value, ok, nil
}

// GetConfig loads service configuration from Parameter Store
func (s *SSMParameterStore) GetConfig(ctx context.Context) (*Config, error) {
	return loadConfig(ctx, s)
}

func (s *SSMParameterStore) load(ctx context.Context) error {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}

	path := fmt.Sprintf("/%s/secret-sync", s.env)
	paginator := ssm.NewGetParametersByPathPaginator(s.client, &ssm.GetParametersByPathInput{
		Path:           aws.String(path),
		Recursive:      aws.Bool(true),
		WithDecryption: aws.Bool(true),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to get parameters by path %s: %w", path, err)
		}
		for _, param := range page.Parameters {
			if param.Name != nil && param.Value != nil {
				s.cache[*param.Name] = *param.Value
			}
		}
	}

	s.loaded = true
	return nil
}

// EnvParameterStore implements ParameterStore using environment variables
type EnvParameterStore struct{}

// NewEnvParameterStore creates a new environment variable-backed parameter store
func NewEnvParameterStore() *EnvParameterStore {
	return &EnvParameterStore{}
}

// Lookup retrieves a parameter from environment variables
func (e *EnvParameterStore) Lookup(ctx context.Context, key string) (string, bool, error) {
	value, ok := os.LookupEnv(key)
	return value, ok, nil
}

// GetConfig loads service configuration from environment variables
func (e *EnvParameterStore) GetConfig(ctx context.Context) (*Config, error) {
	return loadConfig(ctx, e)
}

// StaticParameterStore implements ParameterStore over a fixed set of values
type StaticParameterStore struct {
	values map[string]string
}

// NewStaticParameterStore creates a parameter store backed by a copy of values
func NewStaticParameterStore(values map[string]string) *StaticParameterStore {
	m := make(map[string]string, len(values))
	for k, v := range values {
		m[k] = v
	}
	return &StaticParameterStore{values: m}
}

func (s *StaticParameterStore) Lookup(ctx context.Context, key string) (string, bool, error) {
	value, ok := s.values[key]
	return value, ok, nil
}

func (s *StaticParameterStore) GetConfig(ctx context.Context) (*Config, error) {
	return loadConfig(ctx, s)
}
