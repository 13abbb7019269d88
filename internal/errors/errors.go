package errors

import "errors"

// Caller-visible errors. These are the only errors that cross the provider
// boundary; backend detail is logged, never returned.
var (
	ErrCreateClient   = errors.New("Error creating OIDC client")
	ErrValidateClient = errors.New("Failed to validate client. See upstream logs.")
)

var (
	ErrNoProviderConfigured = errors.New("no OIDC provider configured")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrEmptyClientName      = errors.New("client name must not be empty")
)
