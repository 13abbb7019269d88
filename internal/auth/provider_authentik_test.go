package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/savaki/secret-sync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fakeAuthentikToken = "authentik-token"

// fakeAuthentik serves the parts of the Authentik v3 API the backend uses
type fakeAuthentik struct {
	mu           sync.Mutex
	nextPK       int
	providers    map[int]*authentikProvider
	applications map[string]authentikApplication
	flows        map[string]string // slug -> pk
	mappings     map[string]string // name -> pk
	patches      int
}

func newFakeAuthentik(t *testing.T) (*fakeAuthentik, *httptest.Server) {
	f := &fakeAuthentik{
		nextPK:       1,
		providers:    map[int]*authentikProvider{},
		applications: map[string]authentikApplication{},
		flows: map[string]string{
			defaultAuthorizationFlow: "flow-authz",
			defaultInvalidationFlow:  "flow-invalidate",
		},
		mappings: map[string]string{
			"authentik default OAuth Mapping: OpenID 'openid'": "mapping-openid",
			"authentik default OAuth Mapping: OpenID 'email'":  "mapping-email",
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/providers/oauth2/{$}", func(w http.ResponseWriter, r *http.Request) {
		page := authentikPage[authentikProvider]{Results: []authentikProvider{}}
		for _, p := range f.providers {
			if p.ClientID == r.URL.Query().Get("client_id") {
				page.Results = append(page.Results, *p)
			}
		}
		writeJSON(w, http.StatusOK, page)
	})
	mux.HandleFunc("POST /api/v3/providers/oauth2/{$}", func(w http.ResponseWriter, r *http.Request) {
		var p authentikProvider
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		p.PK = f.nextPK
		f.nextPK++
		f.providers[p.PK] = &p
		writeJSON(w, http.StatusCreated, p)
	})
	mux.HandleFunc("PATCH /api/v3/providers/oauth2/{pk}/{$}", func(w http.ResponseWriter, r *http.Request) {
		pk, _ := strconv.Atoi(r.PathValue("pk"))
		p, ok := f.providers[pk]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
			return
		}
		var patch authentikProviderPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		f.patches++
		p.ClientType = patch.ClientType
		p.RedirectURIs = patch.RedirectURIs
		writeJSON(w, http.StatusOK, p)
	})
	mux.HandleFunc("GET /api/v3/flows/instances/{$}", func(w http.ResponseWriter, r *http.Request) {
		page := authentikPage[authentikFlow]{Results: []authentikFlow{}}
		slug := r.URL.Query().Get("slug")
		if pk, ok := f.flows[slug]; ok {
			page.Results = append(page.Results, authentikFlow{PK: pk, Slug: slug})
		}
		writeJSON(w, http.StatusOK, page)
	})
	mux.HandleFunc("GET /api/v3/propertymappings/provider/scope/{$}", func(w http.ResponseWriter, r *http.Request) {
		page := authentikPage[authentikPropertyMapping]{Results: []authentikPropertyMapping{}}
		name := r.URL.Query().Get("name")
		if pk, ok := f.mappings[name]; ok {
			page.Results = append(page.Results, authentikPropertyMapping{PK: pk, Name: name})
		}
		writeJSON(w, http.StatusOK, page)
	})
	mux.HandleFunc("GET /api/v3/core/applications/{slug}/{$}", func(w http.ResponseWriter, r *http.Request) {
		app, ok := f.applications[r.PathValue("slug")]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
			return
		}
		writeJSON(w, http.StatusOK, app)
	})
	mux.HandleFunc("POST /api/v3/core/applications/{$}", func(w http.ResponseWriter, r *http.Request) {
		var app authentikApplication
		if err := json.NewDecoder(r.Body).Decode(&app); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		f.applications[app.Slug] = app
		writeJSON(w, http.StatusCreated, app)
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+fakeAuthentikToken {
			writeJSON(w, http.StatusForbidden, map[string]string{"detail": "Authentication credentials were not provided."})
			return
		}

		f.mu.Lock()
		defer f.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	return f, srv
}

func (f *fakeAuthentik) seed(p authentikProvider) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.PK = f.nextPK
	f.nextPK++
	f.providers[p.PK] = &p
	return p.PK
}

func (f *fakeAuthentik) patchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.patches
}

func (f *fakeAuthentik) application(slug string) (authentikApplication, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	app, ok := f.applications[slug]
	return app, ok
}

func (f *fakeAuthentik) setApplication(app authentikApplication) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applications[app.Slug] = app
}

func (f *fakeAuthentik) deleteFlow(slug string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.flows, slug)
}

func (f *fakeAuthentik) provider(clientID string) *authentikProvider {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.providers {
		if p.ClientID == clientID {
			return p
		}
	}
	return nil
}

func newTestAuthentikBackend(t *testing.T, srv *httptest.Server, token string, mappings ...string) *AuthentikBackend {
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	return NewAuthentikBackend(&AuthentikConfig{
		URL:               u,
		APIKey:            Secret(token),
		AuthorizationFlow: defaultAuthorizationFlow,
		InvalidationFlow:  defaultInvalidationFlow,
		PropertyMappings:  mappings,
	})
}

func TestAuthentikBackend_CreateClient(t *testing.T) {
	ctx := context.Background()

	t.Run("creates provider and application", func(t *testing.T) {
		fake, srv := newFakeAuthentik(t)
		backend := newTestAuthentikBackend(t, srv, fakeAuthentikToken, "authentik default OAuth Mapping: OpenID 'openid'")

		result, err := backend.CreateClient(ctx, "Grafana", confidential)
		require.NoError(t, err)

		assert.Equal(t, models.SecretStatusCreated, result.Status)
		assert.Len(t, result.Secret, 43)

		p := fake.provider("Grafana")
		require.NotNil(t, p)
		assert.Equal(t, result.Secret, p.ClientSecret)
		assert.Equal(t, authentikClientConfidential, p.ClientType)
		assert.Equal(t, "flow-authz", p.AuthorizationFlow)
		assert.Equal(t, "flow-invalidate", p.InvalidationFlow)
		assert.Equal(t, []string{"mapping-openid"}, p.PropertyMappings)
		assert.Equal(t, []authentikRedirectURI{{MatchingMode: "strict", URL: confidential.RedirectURLs[0]}}, p.RedirectURIs)

		app, ok := fake.application("grafana")
		require.True(t, ok)
		assert.Equal(t, p.PK, app.Provider)
		assert.Equal(t, "Grafana", app.Name)
	})

	t.Run("existing provider returns stored secret", func(t *testing.T) {
		fake, srv := newFakeAuthentik(t)
		pk := fake.seed(authentikProvider{
			Name:         "grafana",
			ClientType:   authentikClientConfidential,
			ClientID:     "grafana",
			ClientSecret: "existing-secret",
			RedirectURIs: authentikRedirectURIs(confidential.RedirectURLs),
		})
		fake.setApplication(authentikApplication{Name: "grafana", Slug: "grafana", Provider: pk})
		backend := newTestAuthentikBackend(t, srv, fakeAuthentikToken)

		result, err := backend.CreateClient(ctx, "grafana", confidential)
		require.NoError(t, err)

		assert.Equal(t, models.AlreadyExisted("existing-secret"), result)
		assert.Equal(t, 0, fake.patchCount())
	})

	t.Run("existing provider is patched when configuration drifted", func(t *testing.T) {
		fake, srv := newFakeAuthentik(t)
		fake.seed(authentikProvider{
			Name:         "grafana",
			ClientType:   authentikClientPublic,
			ClientID:     "grafana",
			ClientSecret: "existing-secret",
			RedirectURIs: authentikRedirectURIs([]string{"https://old.example.com"}),
		})
		backend := newTestAuthentikBackend(t, srv, fakeAuthentikToken)

		result, err := backend.CreateClient(ctx, "grafana", confidential)
		require.NoError(t, err)

		assert.Equal(t, models.AlreadyExisted("existing-secret"), result)
		assert.Equal(t, 1, fake.patchCount())

		p := fake.provider("grafana")
		assert.Equal(t, authentikClientConfidential, p.ClientType)
		assert.Equal(t, confidential.RedirectURLs[0], p.RedirectURIs[0].URL)
		_, ok := fake.application("grafana")
		assert.True(t, ok)
	})

	t.Run("unknown flow", func(t *testing.T) {
		fake, srv := newFakeAuthentik(t)
		fake.deleteFlow(defaultInvalidationFlow)
		backend := newTestAuthentikBackend(t, srv, fakeAuthentikToken)

		_, err := backend.CreateClient(ctx, "grafana", confidential)
		assert.EqualError(t, err, "authentik flow default-provider-invalidation-flow not found")
		assert.Nil(t, fake.provider("grafana"))
	})

	t.Run("rejected token", func(t *testing.T) {
		_, srv := newFakeAuthentik(t)
		backend := newTestAuthentikBackend(t, srv, "wrong-token")

		_, err := backend.CreateClient(ctx, "grafana", confidential)

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
		assert.Equal(t, ProviderAuthentik, apiErr.Backend)
		assert.NotContains(t, err.Error(), "wrong-token")
	})
}

func TestAuthentikBackend_ValidateClient(t *testing.T) {
	ctx := context.Background()
	fake, srv := newFakeAuthentik(t)
	fake.seed(authentikProvider{
		Name:         "grafana",
		ClientType:   authentikClientConfidential,
		ClientID:     "grafana",
		ClientSecret: "the-secret",
		RedirectURIs: authentikRedirectURIs(confidential.RedirectURLs),
	})
	backend := newTestAuthentikBackend(t, srv, fakeAuthentikToken)

	tests := []struct {
		name    string
		client  string
		secret  string
		desired models.OIDCClientConfig
		want    bool
	}{
		{name: "matching", client: "grafana", secret: "the-secret", desired: confidential, want: true},
		{name: "wrong secret", client: "grafana", secret: "stale", desired: confidential, want: false},
		{name: "missing", client: "unknown", secret: "the-secret", desired: confidential, want: false},
		{
			name:    "client type drift",
			client:  "grafana",
			secret:  "the-secret",
			desired: models.OIDCClientConfig{IsPublic: true, RedirectURLs: confidential.RedirectURLs},
			want:    false,
		},
		{
			name:    "redirect drift",
			client:  "grafana",
			secret:  "the-secret",
			desired: models.OIDCClientConfig{RedirectURLs: []string{"https://other.example.com"}},
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, err := backend.ValidateClient(ctx, tt.client, tt.desired, tt.secret)
			require.NoError(t, err)
			assert.Equal(t, tt.want, valid)
		})
	}

	assert.Equal(t, 0, fake.patchCount())
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"grafana":         "grafana",
		"Grafana":         "grafana",
		"my app.prod":     "my-app-prod",
		"--edge_case--":   "edge_case",
		"Argo CD (admin)": "argo-cd-admin",
	}

	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, slugify(in))
		})
	}
}

func TestAuthentikBackend_CreateClientRejectsEmptySlug(t *testing.T) {
	fake, srv := newFakeAuthentik(t)
	backend := newTestAuthentikBackend(t, srv, fakeAuthentikToken)

	_, err := backend.CreateClient(context.Background(), "!!!", confidential)
	assert.ErrorContains(t, err, "authentik application slug")
	assert.Nil(t, fake.provider("!!!"))
}

func TestAuthentikBackend_RequestTimeout(t *testing.T) {
	srv := newHangingServer(t)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	backend := NewAuthentikBackend(&AuthentikConfig{
		URL:     u,
		APIKey:  Secret(fakeAuthentikToken),
		Timeout: 100 * time.Millisecond,
	})

	start := time.Now()
	_, err = backend.ValidateClient(context.Background(), "grafana", confidential, "secret")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
