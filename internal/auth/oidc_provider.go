package auth

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/savaki/secret-sync/internal/errors"
	"github.com/savaki/secret-sync/internal/metrics"
	"github.com/savaki/secret-sync/internal/models"
	"github.com/savaki/secret-sync/internal/services"
)

const (
	operationCreate   = "create_client"
	operationValidate = "validate_client"
)

// schema is one provider configuration that TryInit can attempt to parse
type schema struct {
	kind  ProviderType
	parse func(ctx context.Context, store services.ParameterStore) (Backend, error)
}

// schemas lists the supported providers in priority order. When the
// configuration satisfies more than one schema, the earliest entry wins, so
// Keycloak is selected over Authentik. Set OIDC_PROVIDER to choose explicitly.
var schemas = []schema{
	{kind: ProviderKeycloak, parse: parseKeycloak},
	{kind: ProviderAuthentik, parse: parseAuthentik},
}

// SupportedProviders returns the provider types in priority order
func SupportedProviders() []ProviderType {
	kinds := make([]ProviderType, 0, len(schemas))
	for _, s := range schemas {
		kinds = append(kinds, s.kind)
	}
	return kinds
}

// OIDCProvider is the identity-provider backend selected at startup. It is
// immutable after construction and safe for concurrent use.
type OIDCProvider struct {
	kind    ProviderType
	backend Backend
}

// NewOIDCProvider wraps backend as the active provider of the given kind
func NewOIDCProvider(kind ProviderType, backend Backend) *OIDCProvider {
	return &OIDCProvider{
		kind:    kind,
		backend: backend,
	}
}

// TryInit determines the active provider from store. When OIDC_PROVIDER is set
// only that schema is parsed. Otherwise each schema is attempted in priority
// order and the first that parses is used. Schemas that fail to parse are
// reported as warnings on the context logger and never abort probing.
// TryInit returns nil when no provider is configured.
func TryInit(ctx context.Context, store services.ParameterStore) *OIDCProvider {
	logger := zerolog.Ctx(ctx)

	config, err := store.GetConfig(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to load provider selection")
		return nil
	}

	candidates := schemas
	if config.ProviderKind != "" {
		s, ok := findSchema(ProviderType(config.ProviderKind))
		if !ok {
			logger.Warn().
				Str("provider", config.ProviderKind).
				Strs("supported", providerNames()).
				Msg("Unknown OIDC provider requested")
			return nil
		}
		candidates = []schema{s}
	}

	for _, s := range candidates {
		backend, err := s.parse(ctx, store)
		if err != nil {
			logger.Warn().
				Str("provider", string(s.kind)).
				Err(err).
				Msg("OIDC provider configuration not usable")
			continue
		}

		logger.Info().
			Str("provider", string(s.kind)).
			Bool("explicit", config.ProviderKind != "").
			Msg("OIDC provider selected")
		return NewOIDCProvider(s.kind, backend)
	}

	return nil
}

func findSchema(kind ProviderType) (schema, bool) {
	for _, s := range schemas {
		if s.kind == kind {
			return s, true
		}
	}
	return schema{}, false
}

func providerNames() []string {
	names := make([]string, 0, len(schemas))
	for _, s := range schemas {
		names = append(names, string(s.kind))
	}
	return names
}

// Kind returns the active provider type
func (p *OIDCProvider) Kind() ProviderType {
	return p.kind
}

// CreateClient provisions name on the active backend. The backend result is
// returned unchanged; any failure is logged and reported as errors.ErrCreateClient.
func (p *OIDCProvider) CreateClient(ctx context.Context, name string, desired models.OIDCClientConfig) (models.SecretResult, error) {
	start := time.Now()

	if name == "" {
		return models.SecretResult{}, p.sanitize(ctx, operationCreate, name, errors.ErrEmptyClientName, start)
	}

	result, err := p.backend.CreateClient(ctx, name, desired)
	if err != nil {
		return models.SecretResult{}, p.sanitize(ctx, operationCreate, name, err, start)
	}

	metrics.ObserveOperation(string(p.kind), operationCreate, strings.ToLower(string(result.Status)), time.Since(start))

	return result, nil
}

// ValidateClient checks name against secret and desired on the active backend.
// A mismatch is false, not an error; any failure is logged and reported as
// errors.ErrValidateClient.
func (p *OIDCProvider) ValidateClient(ctx context.Context, name, secret string, desired models.OIDCClientConfig) (bool, error) {
	start := time.Now()

	if name == "" {
		return false, p.sanitize(ctx, operationValidate, name, errors.ErrEmptyClientName, start)
	}

	valid, err := p.backend.ValidateClient(ctx, name, desired, secret)
	if err != nil {
		return false, p.sanitize(ctx, operationValidate, name, err, start)
	}

	outcome := metrics.OutcomeInvalid
	if valid {
		outcome = metrics.OutcomeValid
	}
	metrics.ObserveOperation(string(p.kind), operationValidate, outcome, time.Since(start))

	return valid, nil
}

// sanitize logs the full cause of a failed operation and returns the fixed
// caller-visible error for that operation.
func (p *OIDCProvider) sanitize(ctx context.Context, operation, name string, cause error, start time.Time) error {
	zerolog.Ctx(ctx).Error().
		Err(cause).
		Str("provider", string(p.kind)).
		Str("operation", operation).
		Str("client", name).
		Msg("OIDC provider operation failed")

	metrics.ObserveOperation(string(p.kind), operation, metrics.OutcomeError, time.Since(start))

	if operation == operationValidate {
		return errors.ErrValidateClient
	}
	return errors.ErrCreateClient
}
