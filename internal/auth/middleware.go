package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/savaki/secret-sync/internal/errors"
)

// RequireAPIKey creates middleware that ensures the request carries one of keys
// as a bearer token. Rotation keeps several versions valid at once, so any match
// is accepted. An empty keys list disables the check (local development only).
func RequireAPIKey(keys []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := zerolog.Ctx(r.Context())

			if len(keys) == 0 {
				logger.Debug().
					Str("path", r.URL.Path).
					Msg("⚠️  API key check BYPASSED (no keys configured)")
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				handleAuthFailure(w, r, "Missing bearer token")
				return
			}

			if !matchesAny(token, keys) {
				handleAuthFailure(w, r, "Invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// matchesAny compares token against every key so timing does not reveal which matched
func matchesAny(token string, keys []string) bool {
	var matched int
	for _, key := range keys {
		matched |= subtle.ConstantTimeCompare([]byte(token), []byte(key))
	}
	return matched == 1
}

// handleAuthFailure returns a 401 JSON response
func handleAuthFailure(w http.ResponseWriter, r *http.Request, reason string) {
	zerolog.Ctx(r.Context()).Warn().
		Str("path", r.URL.Path).
		Str("reason", reason).
		Msg("API authentication failed")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error": errors.ErrUnauthorized.Error(),
	})
}
