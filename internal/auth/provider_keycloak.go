package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/rs/zerolog"
	"github.com/savaki/secret-sync/internal/models"
	"github.com/savaki/secret-sync/internal/services"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// KeycloakConfig holds the connection parameters for a Keycloak realm.
// ClientID and ClientSecret identify a confidential client with the realm-management
// roles needed to manage clients (manage-clients, view-clients, and for service
// account roles, view-realm and manage-users).
type KeycloakConfig struct {
	URL                 *url.URL // base URL, e.g. https://sso.example.com
	ClientID            string
	ClientSecret        Secret
	Realm               string
	ServiceAccountRoles []string // realm roles granted to service accounts of new confidential clients
	Timeout             time.Duration
}

// ParseKeycloakConfig reads KEYCLOAK_* keys from store
func ParseKeycloakConfig(ctx context.Context, store services.ParameterStore) (*KeycloakConfig, error) {
	r := newFieldReader(ctx, store)
	config := &KeycloakConfig{
		URL:                 r.url("KEYCLOAK_URL"),
		ClientID:            r.required("KEYCLOAK_ID"),
		ClientSecret:        Secret(r.required("KEYCLOAK_SECRET")),
		Realm:               r.optional("KEYCLOAK_REALM", "master"),
		ServiceAccountRoles: r.list("KEYCLOAK_SERVICE_ACCOUNT_ROLES"),
		Timeout:             r.duration("KEYCLOAK_TIMEOUT", defaultRequestTimeout),
	}
	if err := r.err(ProviderKeycloak); err != nil {
		return nil, err
	}
	return config, nil
}

func parseKeycloak(ctx context.Context, store services.ParameterStore) (Backend, error) {
	config, err := ParseKeycloakConfig(ctx, store)
	if err != nil {
		return nil, err
	}
	return NewKeycloakBackend(config), nil
}

// IssuerURL returns the OIDC issuer of the configured realm
func (c *KeycloakConfig) IssuerURL() string {
	return c.URL.JoinPath("realms", c.Realm).String()
}

// KeycloakBackend implements Backend against the Keycloak admin REST API
type KeycloakBackend struct {
	config     *KeycloakConfig
	httpClient *http.Client
	mu         sync.Mutex
	admin      *adminClient
}

// NewKeycloakBackend creates a backend for config. No network calls are made
// until the first operation.
func NewKeycloakBackend(config *KeycloakConfig) *KeycloakBackend {
	return &KeycloakBackend{
		config:     config,
		httpClient: newHTTPClient(config.Timeout),
	}
}

type keycloakClient struct {
	ID                     string   `json:"id,omitempty"`
	ClientID               string   `json:"clientId"`
	Name                   string   `json:"name,omitempty"`
	Protocol               string   `json:"protocol,omitempty"`
	Enabled                bool     `json:"enabled"`
	PublicClient           bool     `json:"publicClient"`
	Secret                 string   `json:"secret,omitempty"`
	RedirectURIs           []string `json:"redirectUris"`
	StandardFlowEnabled    bool     `json:"standardFlowEnabled"`
	ServiceAccountsEnabled bool     `json:"serviceAccountsEnabled"`
}

type keycloakCredential struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type keycloakUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type keycloakRole struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func keycloakClientFor(name string, desired models.OIDCClientConfig, secret string) keycloakClient {
	redirectURIs := desired.RedirectURLs
	if redirectURIs == nil {
		redirectURIs = []string{}
	}
	return keycloakClient{
		ClientID:               name,
		Name:                   name,
		Protocol:               "openid-connect",
		Enabled:                true,
		PublicClient:           desired.IsPublic,
		Secret:                 secret,
		RedirectURIs:           redirectURIs,
		StandardFlowEnabled:    true,
		ServiceAccountsEnabled: !desired.IsPublic,
	}
}

func keycloakClientMatches(existing *keycloakClient, desired models.OIDCClientConfig) bool {
	return existing.PublicClient == desired.IsPublic &&
		existing.ServiceAccountsEnabled == !desired.IsPublic &&
		desired.SameRedirectURLs(existing.RedirectURIs)
}

// adminClient returns the realm admin API client, discovering the token endpoint
// on first use. The mutex guards only the cached client; concurrent first calls
// each run discovery and the first to finish is kept. Failures are not cached.
func (b *KeycloakBackend) adminClient(ctx context.Context) (*adminClient, error) {
	b.mu.Lock()
	admin := b.admin
	b.mu.Unlock()
	if admin != nil {
		return admin, nil
	}

	admin, err := b.discover(ctx)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.admin == nil {
		b.admin = admin
	}
	return b.admin, nil
}

// discover reads the realm discovery document and builds an admin client that
// authenticates with the service account credentials. Keycloak reached on an
// internal address still reports its public hostname as the issuer, so the
// issuer is not required to match KEYCLOAK_URL.
func (b *KeycloakBackend) discover(ctx context.Context) (*adminClient, error) {
	issuerURL := b.config.IssuerURL()
	zerolog.Ctx(ctx).Info().
		Str("issuer_url", issuerURL).
		Msg("Initializing Keycloak OIDC provider")

	discoveryCtx := oidc.InsecureIssuerURLContext(oidc.ClientContext(ctx, b.httpClient), issuerURL)
	provider, err := oidc.NewProvider(discoveryCtx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider for %s: %w", issuerURL, err)
	}

	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, b.httpClient)
	tokenSource := (&clientcredentials.Config{
		ClientID:     b.config.ClientID,
		ClientSecret: b.config.ClientSecret.Reveal(),
		TokenURL:     provider.Endpoint().TokenURL,
	}).TokenSource(tokenCtx)

	baseURL := b.config.URL.JoinPath("admin", "realms", b.config.Realm)
	return newAdminClient(ProviderKeycloak, baseURL, oauth2.NewClient(tokenCtx, tokenSource)), nil
}

// CreateClient creates the client, or reconciles it when Keycloak reports it already exists
func (b *KeycloakBackend) CreateClient(ctx context.Context, name string, desired models.OIDCClientConfig) (models.SecretResult, error) {
	admin, err := b.adminClient(ctx)
	if err != nil {
		return models.SecretResult{}, err
	}

	var secret string
	if !desired.IsPublic {
		if secret, err = generateSecureSecret(); err != nil {
			return models.SecretResult{}, err
		}
	}

	err = admin.do(ctx, http.MethodPost, "/clients", nil, keycloakClientFor(name, desired, secret), nil)
	switch {
	case err == nil:
		existing, err := b.findClient(ctx, admin, name)
		if err != nil {
			return models.SecretResult{}, err
		}
		if existing == nil {
			return models.SecretResult{}, fmt.Errorf("keycloak client %s not found after creation", name)
		}
		if err := b.assignServiceAccountRoles(ctx, admin, existing.ID, desired); err != nil {
			return models.SecretResult{}, err
		}
		return models.Created(secret), nil

	case IsConflict(err):
		return b.reconcile(ctx, admin, name, desired)

	default:
		return models.SecretResult{}, fmt.Errorf("failed to create keycloak client %s: %w", name, err)
	}
}

// reconcile updates an existing client to the desired configuration and returns its secret
func (b *KeycloakBackend) reconcile(ctx context.Context, admin *adminClient, name string, desired models.OIDCClientConfig) (models.SecretResult, error) {
	logger := zerolog.Ctx(ctx)

	existing, err := b.findClient(ctx, admin, name)
	if err != nil {
		return models.SecretResult{}, err
	}
	if existing == nil {
		return models.SecretResult{}, fmt.Errorf("keycloak reported a conflict for client %s but it was not found", name)
	}

	if !keycloakClientMatches(existing, desired) {
		logger.Info().
			Str("client", name).
			Bool("public", desired.IsPublic).
			Msg("Updating Keycloak client to desired configuration")

		update := keycloakClientFor(name, desired, "")
		update.ID = existing.ID
		if err := admin.do(ctx, http.MethodPut, "/clients/"+existing.ID, nil, update, nil); err != nil {
			return models.SecretResult{}, fmt.Errorf("failed to update keycloak client %s: %w", name, err)
		}
	}

	if desired.IsPublic {
		return models.AlreadyExisted(""), nil
	}

	if err := b.assignServiceAccountRoles(ctx, admin, existing.ID, desired); err != nil {
		return models.SecretResult{}, err
	}

	secret, err := b.clientSecret(ctx, admin, existing.ID)
	if err != nil {
		return models.SecretResult{}, err
	}
	return models.AlreadyExisted(secret), nil
}

// ValidateClient compares the stored client with desired and secret without modifying it.
// Public clients carry no secret, so only their configuration is compared.
func (b *KeycloakBackend) ValidateClient(ctx context.Context, name string, desired models.OIDCClientConfig, secret string) (bool, error) {
	admin, err := b.adminClient(ctx)
	if err != nil {
		return false, err
	}

	existing, err := b.findClient(ctx, admin, name)
	if err != nil {
		return false, err
	}
	if existing == nil || !keycloakClientMatches(existing, desired) {
		return false, nil
	}

	if desired.IsPublic {
		return true, nil
	}

	actual, err := b.clientSecret(ctx, admin, existing.ID)
	if err != nil {
		return false, err
	}

	return subtle.ConstantTimeCompare([]byte(actual), []byte(secret)) == 1, nil
}

func (b *KeycloakBackend) findClient(ctx context.Context, admin *adminClient, name string) (*keycloakClient, error) {
	var clients []keycloakClient
	if err := admin.get(ctx, "/clients", url.Values{"clientId": {name}}, &clients); err != nil {
		return nil, fmt.Errorf("failed to look up keycloak client %s: %w", name, err)
	}

	for i := range clients {
		if clients[i].ClientID == name {
			return &clients[i], nil
		}
	}
	return nil, nil
}

func (b *KeycloakBackend) clientSecret(ctx context.Context, admin *adminClient, id string) (string, error) {
	var credential keycloakCredential
	if err := admin.get(ctx, "/clients/"+id+"/client-secret", nil, &credential); err != nil {
		return "", fmt.Errorf("failed to get keycloak client secret: %w", err)
	}
	return credential.Value, nil
}

// assignServiceAccountRoles grants the configured realm roles to the client's service
// account user. Keycloak ignores roles that are already mapped.
func (b *KeycloakBackend) assignServiceAccountRoles(ctx context.Context, admin *adminClient, id string, desired models.OIDCClientConfig) error {
	if desired.IsPublic || len(b.config.ServiceAccountRoles) == 0 {
		return nil
	}

	var user keycloakUser
	if err := admin.get(ctx, "/clients/"+id+"/service-account-user", nil, &user); err != nil {
		return fmt.Errorf("failed to get keycloak service account user: %w", err)
	}

	roles := make([]keycloakRole, 0, len(b.config.ServiceAccountRoles))
	for _, name := range b.config.ServiceAccountRoles {
		var role keycloakRole
		if err := admin.get(ctx, "/roles/"+name, nil, &role); err != nil {
			return fmt.Errorf("failed to get keycloak realm role %s: %w", name, err)
		}
		roles = append(roles, role)
	}

	if err := admin.do(ctx, http.MethodPost, "/users/"+user.ID+"/role-mappings/realm", nil, roles, nil); err != nil {
		return fmt.Errorf("failed to assign service account roles: %w", err)
	}

	zerolog.Ctx(ctx).Info().
		Str("service_account", user.Username).
		Strs("roles", b.config.ServiceAccountRoles).
		Msg("Assigned realm roles to Keycloak service account")

	return nil
}
