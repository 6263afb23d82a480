package domain

import (
	"fmt"
	"time"
)

// APIKey represents an API key for authentication
type APIKey struct {
	ID          string
	WorkspaceID string
	Name        string
	KeyHash     string // Never store plaintext keys
	CreatedAt   time.Time
	RevokedAt   *time.Time
}

// NewAPIKey creates a new APIKey instance
func NewAPIKey(id, workspaceID, name, keyHash string, createdAt time.Time, revokedAt *time.Time) *APIKey {
	return &APIKey{
		ID:          id,
		WorkspaceID: workspaceID,
		Name:        name,
		KeyHash:     keyHash,
		CreatedAt:   createdAt,
		RevokedAt:   revokedAt,
	}
}

// IsRevoked reports whether the key has been revoked.
func (a *APIKey) IsRevoked() bool {
	return a.RevokedAt != nil
}

// ValidateAPIKey checks that all identifying fields are set.
func ValidateAPIKey(a *APIKey) error {
	if a == nil {
		return fmt.Errorf("api key cannot be nil")
	}
	required := []struct{ field, value string }{
		{"ID", a.ID},
		{"WorkspaceID", a.WorkspaceID},
		{"Name", a.Name},
		{"KeyHash", a.KeyHash},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("api key %s is required", r.field)
		}
	}
	return nil
}
