package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/savaki/gox/slicex"
	"github.com/savaki/secret-sync/internal/models"
	"github.com/savaki/secret-sync/internal/services"
	"golang.org/x/oauth2"
)

const (
	defaultAuthorizationFlow = "default-provider-authorization-implicit-consent"
	defaultInvalidationFlow  = "default-provider-invalidation-flow"

	authentikClientConfidential = "confidential"
	authentikClientPublic       = "public"
	authentikMatchingStrict     = "strict"
)

// AuthentikConfig holds the connection parameters for an Authentik instance
type AuthentikConfig struct {
	URL               *url.URL
	APIKey            Secret
	AuthorizationFlow string   // flow slug
	InvalidationFlow  string   // flow slug
	PropertyMappings  []string // scope mapping names attached to new providers
	Timeout           time.Duration
}

// ParseAuthentikConfig reads AUTHENTIK_* keys from store
func ParseAuthentikConfig(ctx context.Context, store services.ParameterStore) (*AuthentikConfig, error) {
	r := newFieldReader(ctx, store)
	config := &AuthentikConfig{
		URL:               r.url("AUTHENTIK_URL"),
		APIKey:            Secret(r.required("AUTHENTIK_SERVICE_API_KEY")),
		AuthorizationFlow: r.optional("AUTHENTIK_AUTHORIZATION_FLOW", defaultAuthorizationFlow),
		InvalidationFlow:  r.optional("AUTHENTIK_INVALIDATION_FLOW", defaultInvalidationFlow),
		PropertyMappings:  r.list("AUTHENTIK_PROPERTY_MAPPINGS"),
		Timeout:           r.duration("AUTHENTIK_TIMEOUT", defaultRequestTimeout),
	}
	if err := r.err(ProviderAuthentik); err != nil {
		return nil, err
	}
	return config, nil
}

func parseAuthentik(ctx context.Context, store services.ParameterStore) (Backend, error) {
	config, err := ParseAuthentikConfig(ctx, store)
	if err != nil {
		return nil, err
	}
	return NewAuthentikBackend(config), nil
}

// AuthentikBackend implements Backend against the Authentik v3 API. Each client
// is an OAuth2 provider plus an application of the same name.
type AuthentikBackend struct {
	config *AuthentikConfig
	admin  *adminClient
}

// NewAuthentikBackend creates a backend authenticating with the configured API token
func NewAuthentikBackend(config *AuthentikConfig) *AuthentikBackend {
	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: config.APIKey.Reveal(),
		TokenType:   "Bearer",
	})
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, newHTTPClient(config.Timeout))
	return &AuthentikBackend{
		config: config,
		admin:  newAdminClient(ProviderAuthentik, config.URL.JoinPath("api", "v3"), oauth2.NewClient(ctx, tokenSource)),
	}
}

type authentikRedirectURI struct {
	MatchingMode string `json:"matching_mode"`
	URL          string `json:"url"`
}

type authentikProvider struct {
	PK                int                    `json:"pk,omitempty"`
	Name              string                 `json:"name"`
	ClientType        string                 `json:"client_type"`
	ClientID          string                 `json:"client_id"`
	ClientSecret      string                 `json:"client_secret,omitempty"`
	RedirectURIs      []authentikRedirectURI `json:"redirect_uris"`
	AuthorizationFlow string                 `json:"authorization_flow,omitempty"`
	InvalidationFlow  string                 `json:"invalidation_flow,omitempty"`
	PropertyMappings  []string               `json:"property_mappings,omitempty"`
}

type authentikProviderPatch struct {
	ClientType   string                 `json:"client_type"`
	RedirectURIs []authentikRedirectURI `json:"redirect_uris"`
}

type authentikApplication struct {
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	Provider int    `json:"provider"`
}

type authentikFlow struct {
	PK   string `json:"pk"`
	Slug string `json:"slug"`
}

type authentikPropertyMapping struct {
	PK   string `json:"pk"`
	Name string `json:"name"`
}

type authentikPage[T any] struct {
	Results []T `json:"results"`
}

func clientType(desired models.OIDCClientConfig) string {
	if desired.IsPublic {
		return authentikClientPublic
	}
	return authentikClientConfidential
}

func authentikRedirectURIs(urls []string) []authentikRedirectURI {
	uris := slicex.Map(urls, func(u string) authentikRedirectURI {
		return authentikRedirectURI{MatchingMode: authentikMatchingStrict, URL: u}
	})
	if uris == nil {
		return []authentikRedirectURI{}
	}
	return uris
}

func authentikProviderMatches(existing *authentikProvider, desired models.OIDCClientConfig) bool {
	urls := slicex.Map(existing.RedirectURIs, func(r authentikRedirectURI) string { return r.URL })
	return existing.ClientType == clientType(desired) && desired.SameRedirectURLs(urls)
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9_-]+`)

// slugify converts a client name into an Authentik application slug
func slugify(name string) string {
	slug := slugInvalid.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(slug, "-")
}

// CreateClient provisions an OAuth2 provider and application for name. An existing
// provider with the same client id is patched to the desired configuration and its
// stored secret returned.
func (b *AuthentikBackend) CreateClient(ctx context.Context, name string, desired models.OIDCClientConfig) (models.SecretResult, error) {
	if slugify(name) == "" {
		return models.SecretResult{}, fmt.Errorf("client name %q has no characters usable in an authentik application slug", name)
	}

	existing, err := b.findProvider(ctx, name)
	if err != nil {
		return models.SecretResult{}, err
	}

	if existing != nil {
		return b.reconcile(ctx, name, existing, desired)
	}

	provider, err := b.newProvider(ctx, name, desired)
	if err != nil {
		return models.SecretResult{}, err
	}

	var created authentikProvider
	if err := b.admin.do(ctx, http.MethodPost, "/providers/oauth2/", nil, provider, &created); err != nil {
		return models.SecretResult{}, fmt.Errorf("failed to create authentik provider %s: %w", name, err)
	}

	if err := b.ensureApplication(ctx, name, created.PK); err != nil {
		return models.SecretResult{}, err
	}

	return models.Created(provider.ClientSecret), nil
}

func (b *AuthentikBackend) reconcile(ctx context.Context, name string, existing *authentikProvider, desired models.OIDCClientConfig) (models.SecretResult, error) {
	if !authentikProviderMatches(existing, desired) {
		zerolog.Ctx(ctx).Info().
			Str("client", name).
			Bool("public", desired.IsPublic).
			Msg("Updating Authentik provider to desired configuration")

		patch := authentikProviderPatch{
			ClientType:   clientType(desired),
			RedirectURIs: authentikRedirectURIs(desired.RedirectURLs),
		}
		path := fmt.Sprintf("/providers/oauth2/%d/", existing.PK)
		if err := b.admin.do(ctx, http.MethodPatch, path, nil, patch, existing); err != nil {
			return models.SecretResult{}, fmt.Errorf("failed to update authentik provider %s: %w", name, err)
		}
	}

	if err := b.ensureApplication(ctx, name, existing.PK); err != nil {
		return models.SecretResult{}, err
	}

	if desired.IsPublic {
		return models.AlreadyExisted(""), nil
	}
	return models.AlreadyExisted(existing.ClientSecret), nil
}

// ValidateClient compares the stored provider with desired and secret without modifying it
func (b *AuthentikBackend) ValidateClient(ctx context.Context, name string, desired models.OIDCClientConfig, secret string) (bool, error) {
	existing, err := b.findProvider(ctx, name)
	if err != nil {
		return false, err
	}
	if existing == nil || !authentikProviderMatches(existing, desired) {
		return false, nil
	}

	if desired.IsPublic {
		return true, nil
	}

	return subtle.ConstantTimeCompare([]byte(existing.ClientSecret), []byte(secret)) == 1, nil
}

func (b *AuthentikBackend) newProvider(ctx context.Context, name string, desired models.OIDCClientConfig) (*authentikProvider, error) {
	authorizationFlow, err := b.flowPK(ctx, b.config.AuthorizationFlow)
	if err != nil {
		return nil, err
	}

	invalidationFlow, err := b.flowPK(ctx, b.config.InvalidationFlow)
	if err != nil {
		return nil, err
	}

	mappings := make([]string, 0, len(b.config.PropertyMappings))
	for _, mapping := range b.config.PropertyMappings {
		pk, err := b.propertyMappingPK(ctx, mapping)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, pk)
	}

	var secret string
	if !desired.IsPublic {
		if secret, err = generateSecureSecret(); err != nil {
			return nil, err
		}
	}

	return &authentikProvider{
		Name:              name,
		ClientType:        clientType(desired),
		ClientID:          name,
		ClientSecret:      secret,
		RedirectURIs:      authentikRedirectURIs(desired.RedirectURLs),
		AuthorizationFlow: authorizationFlow,
		InvalidationFlow:  invalidationFlow,
		PropertyMappings:  mappings,
	}, nil
}

func (b *AuthentikBackend) findProvider(ctx context.Context, name string) (*authentikProvider, error) {
	var page authentikPage[authentikProvider]
	if err := b.admin.get(ctx, "/providers/oauth2/", url.Values{"client_id": {name}}, &page); err != nil {
		return nil, fmt.Errorf("failed to look up authentik provider %s: %w", name, err)
	}

	for i := range page.Results {
		if page.Results[i].ClientID == name {
			return &page.Results[i], nil
		}
	}
	return nil, nil
}

func (b *AuthentikBackend) flowPK(ctx context.Context, slug string) (string, error) {
	var page authentikPage[authentikFlow]
	if err := b.admin.get(ctx, "/flows/instances/", url.Values{"slug": {slug}}, &page); err != nil {
		return "", fmt.Errorf("failed to look up authentik flow %s: %w", slug, err)
	}

	for _, flow := range page.Results {
		if flow.Slug == slug {
			return flow.PK, nil
		}
	}
	return "", fmt.Errorf("authentik flow %s not found", slug)
}

func (b *AuthentikBackend) propertyMappingPK(ctx context.Context, name string) (string, error) {
	var page authentikPage[authentikPropertyMapping]
	if err := b.admin.get(ctx, "/propertymappings/provider/scope/", url.Values{"name": {name}}, &page); err != nil {
		return "", fmt.Errorf("failed to look up authentik property mapping %s: %w", name, err)
	}

	for _, mapping := range page.Results {
		if mapping.Name == name {
			return mapping.PK, nil
		}
	}
	return "", fmt.Errorf("authentik property mapping %s not found", name)
}

// ensureApplication creates the application for provider unless one with the slug exists
func (b *AuthentikBackend) ensureApplication(ctx context.Context, name string, provider int) error {
	slug := slugify(name)
	if slug == "" {
		return fmt.Errorf("client name %q has no characters usable in an authentik application slug", name)
	}

	err := b.admin.get(ctx, "/core/applications/"+slug+"/", nil, nil)
	if err == nil {
		return nil
	}
	if !IsNotFound(err) {
		return fmt.Errorf("failed to look up authentik application %s: %w", slug, err)
	}

	app := authentikApplication{
		Name:     name,
		Slug:     slug,
		Provider: provider,
	}
	if err := b.admin.do(ctx, http.MethodPost, "/core/applications/", nil, app, nil); err != nil {
		return fmt.Errorf("failed to create authentik application %s: %w", slug, err)
	}

	zerolog.Ctx(ctx).Info().
		Str("application", slug).
		Int("provider_pk", provider).
		Msg("Created Authentik application")

	return nil
}
