package models

import "slices"

// OIDCClientConfig describes the desired shape of an OIDC client registration.
// It is supplied by the caller and passed through to the active backend unchanged.
type OIDCClientConfig struct {
	IsPublic     bool     `json:"is_public"`     // public clients have no secret
	RedirectURLs []string `json:"redirect_urls"` // allowed redirect URIs
}

// SameRedirectURLs reports whether got contains exactly the redirect URLs of c,
// ignoring order and duplicates.
func (c OIDCClientConfig) SameRedirectURLs(got []string) bool {
	want := slices.Clone(c.RedirectURLs)
	have := slices.Clone(got)
	slices.Sort(want)
	slices.Sort(have)
	return slices.Equal(slices.Compact(want), slices.Compact(have))
}

// SecretStatus describes how a SecretResult was obtained
type SecretStatus string

const (
	SecretStatusAlreadyValid   SecretStatus = "ALREADY_VALID"
	SecretStatusCreated        SecretStatus = "CREATED"
	SecretStatusAlreadyExisted SecretStatus = "ALREADY_EXISTED"
)

// SecretResult is the credential bundle returned after provisioning a client.
// Secret is empty for ALREADY_VALID and for public clients.
type SecretResult struct {
	Status SecretStatus `json:"status"`
	Secret string       `json:"secret,omitempty"`
}

func AlreadyValid() SecretResult {
	return SecretResult{Status: SecretStatusAlreadyValid}
}

func Created(secret string) SecretResult {
	return SecretResult{Status: SecretStatusCreated, Secret: secret}
}

func AlreadyExisted(secret string) SecretResult {
	return SecretResult{Status: SecretStatusAlreadyExisted, Secret: secret}
}
