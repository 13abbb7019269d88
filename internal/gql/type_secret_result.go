package gql

import (
	"time"

	"github.com/savaki/secret-sync/internal/models"
)

// SecretResultResolver resolves the SecretResult GraphQL type
type SecretResultResolver struct {
	result      models.SecretResult
	completedAt time.Time
}

func newSecretResultResolver(result models.SecretResult) *SecretResultResolver {
	return &SecretResultResolver{
		result:      result,
		completedAt: time.Now(),
	}
}

// Status resolves the status field
func (r *SecretResultResolver) Status() SecretStatus {
	return FromModelSecretStatus(r.result.Status)
}

// Secret resolves the secret field, null when no secret accompanies the status
func (r *SecretResultResolver) Secret() *string {
	if r.result.Secret == "" {
		return nil
	}
	return &r.result.Secret
}

// CompletedAt resolves the completedAt field
func (r *SecretResultResolver) CompletedAt() DateTime {
	return NewDateTime(r.completedAt)
}
