// Package server exposes the OIDC provider over HTTP.
package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"
	"github.com/rs/zerolog"
	"github.com/savaki/secret-sync/internal/auth"
	"github.com/savaki/secret-sync/internal/metrics"
	"github.com/segmentio/ksuid"
)

// requestIDHeader carries the request id back to the caller. Only a valid
// KSUID is accepted from the caller; anything else is replaced.
const requestIDHeader = "X-Request-Id"

type Handler struct {
	provider *auth.OIDCProvider
	schema   *graphql.Schema
	apiKeys  []string
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Provider string `json:"provider"`
}

// NewHandler creates a handler. An empty apiKeys disables API key checks.
func NewHandler(provider *auth.OIDCProvider, schema *graphql.Schema, apiKeys []string) *Handler {
	return &Handler{
		provider: provider,
		schema:   schema,
		apiKeys:  apiKeys,
	}
}

// loggingMiddleware injects logger, tagged with a request id, into each request
// context and logs the request and response
func loggingMiddleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(requestIDHeader)
			if _, err := ksuid.Parse(requestID); err != nil {
				requestID = ksuid.New().String()
			}
			w.Header().Set(requestIDHeader, requestID)

			ctx := logger.With().Str("request_id", requestID).Logger().WithContext(r.Context())
			r = r.WithContext(ctx)

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			zerolog.Ctx(ctx).Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Str("user_agent", r.UserAgent()).
				Msg("Incoming request")

			next.ServeHTTP(rw, r)

			zerolog.Ctx(ctx).Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status_code", rw.statusCode).
				Dur("duration", time.Since(start)).
				Msg("Request completed")
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// StripPrefix removes the /{stage} prefix API Gateway adds to request paths.
// An empty stage returns next unchanged.
func StripPrefix(stage string, next http.Handler) http.Handler {
	if stage == "" {
		return next
	}

	prefix := "/" + stage
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.URL.Path = strings.TrimPrefix(r.URL.Path, prefix)
		if r.URL.Path == "" {
			r.URL.Path = "/"
		}
		next.ServeHTTP(w, r)
	})
}

// handleGraphQL serves the GraphQL API
func (h *Handler) handleGraphQL() http.Handler {
	return &relay.Handler{Schema: h.schema}
}

// handleHealth reports liveness and the selected provider
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Provider: string(h.provider.Kind()),
	})
}

// jsonResponse writes a JSON response
func (h *Handler) jsonResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"failed to marshal response"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(body)
}

// notFound writes a JSON 404
func (h *Handler) notFound(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, http.StatusNotFound, ErrorResponse{Error: "not found"})
}

// Router configures all HTTP routes wrapped in the logging middleware
func (h *Handler) Router(logger zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	requireAPIKey := auth.RequireAPIKey(h.apiKeys)
	mux.Handle("POST /graphql", requireAPIKey(h.handleGraphQL()))

	mux.HandleFunc("/", h.notFound)

	return loggingMiddleware(logger)(mux)
}
